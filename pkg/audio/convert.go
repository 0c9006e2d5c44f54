package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter converts capture Blocks to a target format. It logs a
// warning on the first format mismatch and drops blocks with corrupt channel
// alignment. Create one per stream; not designed for shared use across
// goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a block to the target format. If the source format already
// matches the target, the block's samples are returned unchanged (zero
// allocation). Conversion order: downmix to mono first, then resample, so the
// interpolation loop never runs over interleaved data.
func (c *FormatConverter) Convert(block Block) []float32 {
	if block.Channels <= 0 || len(block.Samples)%block.Channels != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: misaligned sample count, dropping block",
				"samples", len(block.Samples),
				"sampleRate", block.SampleRate,
				"channels", block.Channels,
			)
		})
		return nil
	}

	// Fast path: source matches target.
	if block.SampleRate == c.Target.SampleRate && block.Channels == c.Target.Channels {
		return block.Samples
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(block.SampleRate, block.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := block.Samples
	if block.Channels != 1 {
		pcm = DownmixMono(pcm, block.Channels)
	}
	if block.SampleRate != c.Target.SampleRate {
		pcm = ResampleMono(pcm, block.SampleRate, c.Target.SampleRate)
	}
	return pcm
}

// DownmixMono averages each frame of interleaved multi-channel float32 PCM
// into a single mono sample. Channels must be >= 1; the input length is
// truncated to whole frames.
func DownmixMono(pcm []float32, channels int) []float32 {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / channels
	out := make([]float32, frames)
	inv := 1.0 / float32(channels)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += pcm[i*channels+ch]
		}
		out[i] = sum * inv
	}
	return out
}

// ResampleMono resamples mono float32 PCM from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate, the input is returned
// unchanged.
func ResampleMono(pcm []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) == 0 {
		return pcm
	}
	srcSamples := len(pcm)
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := pcm[srcIdx]
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = pcm[srcIdx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
