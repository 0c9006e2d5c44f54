package audio_test

import (
	"math"
	"testing"

	"github.com/emberhill/turnsense/pkg/audio"
)

func TestDownmixMono(t *testing.T) {
	stereo := []float32{0.1, 0.3, -0.2, -0.4}
	mono := audio.DownmixMono(stereo, 2)
	want := []float32{0.2, -0.3}
	if len(mono) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(mono), len(want))
	}
	for i := range want {
		if math.Abs(float64(mono[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %f, want %f", i, mono[i], want[i])
		}
	}
}

func TestDownmixMono_SingleChannelPassthrough(t *testing.T) {
	mono := []float32{0.5, -0.5}
	out := audio.DownmixMono(mono, 1)
	if &out[0] != &mono[0] {
		t.Error("expected mono input to be returned unchanged")
	}
}

func TestResampleMono_SameRate(t *testing.T) {
	pcm := []float32{0.1, 0.2, 0.3}
	out := audio.ResampleMono(pcm, 16000, 16000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono_Downsample(t *testing.T) {
	// 48 kHz -> 16 kHz keeps one of every three samples.
	pcm := make([]float32, 48)
	for i := range pcm {
		pcm[i] = float32(i)
	}
	out := audio.ResampleMono(pcm, 48000, 16000)
	if len(out) != 16 {
		t.Fatalf("expected 16 output samples, got %d", len(out))
	}
	// With an exact 3:1 ratio the interpolation lands on source samples.
	for i, s := range out {
		if want := float32(i * 3); s != want {
			t.Errorf("sample %d: got %f, want %f", i, s, want)
		}
	}
}

func TestResampleMono_UpsampleInterpolates(t *testing.T) {
	pcm := []float32{0, 1}
	out := audio.ResampleMono(pcm, 8000, 16000)
	if len(out) != 4 {
		t.Fatalf("expected 4 output samples, got %d", len(out))
	}
	if out[1] != 0.5 {
		t.Errorf("expected midpoint interpolation 0.5, got %f", out[1])
	}
}

func TestFormatConverter_FastPath(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	samples := []float32{0.1, 0.2}
	out := conv.Convert(audio.Block{Samples: samples, SampleRate: 16000, Channels: 1})
	if &out[0] != &samples[0] {
		t.Error("expected matching format to pass through without copying")
	}
}

func TestFormatConverter_StereoDownsample(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	// 6 stereo frames at 48 kHz -> 2 mono samples at 16 kHz.
	block := audio.Block{
		Samples:    make([]float32, 12),
		SampleRate: 48000,
		Channels:   2,
	}
	out := conv.Convert(block)
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(out))
	}
}

func TestFormatConverter_MisalignedDropped(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	out := conv.Convert(audio.Block{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 48000, Channels: 2})
	if out != nil {
		t.Errorf("expected misaligned stereo block to be dropped, got %d samples", len(out))
	}
}
