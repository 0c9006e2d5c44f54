package audio

import "time"

// DefaultSampleRate is the internal sample rate of the pipeline. All audio
// entering the rolling window has been converted to mono float32 at this rate.
const DefaultSampleRate = 16000

// Block represents one hardware capture callback's worth of audio as it
// arrives from the device, before conversion. Blocks are the atomic unit of
// transport between the capture callback and the rolling window.
type Block struct {
	// Samples is interleaved float32 PCM in the device's delivery format.
	Samples []float32

	// SampleRate in Hz as delivered by the device (e.g., 48000).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this block was captured, relative to stream start.
	Timestamp time.Duration
}
