package melspec_test

import (
	"errors"
	"math"
	"testing"

	"github.com/emberhill/turnsense/pkg/melspec"
)

func newExtractor(t *testing.T) *melspec.Extractor {
	t.Helper()
	e, err := melspec.NewExtractor()
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return e
}

func sine(freq float64, amplitude float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amplitude * float32(math.Sin(2*math.Pi*freq*float64(i)/melspec.SampleRate))
	}
	return out
}

func TestExtract_ShapeForAnyValidLength(t *testing.T) {
	e := newExtractor(t)
	for _, n := range []int{1, 160, 400, 16000, melspec.MaxSamples} {
		out, err := e.Extract(make([]float32, n))
		if err != nil {
			t.Fatalf("length %d: unexpected error %v", n, err)
		}
		if len(out) != melspec.MelBands*melspec.TargetFrames {
			t.Fatalf("length %d: got %d values, want %d", n, len(out), melspec.MelBands*melspec.TargetFrames)
		}
	}
}

func TestExtract_InvalidLength(t *testing.T) {
	e := newExtractor(t)
	for _, n := range []int{0, melspec.MaxSamples + 1, melspec.MaxSamples * 2} {
		_, err := e.Extract(make([]float32, n))
		if !errors.Is(err, melspec.ErrInvalidLength) {
			t.Errorf("length %d: got %v, want ErrInvalidLength", n, err)
		}
	}
}

func TestExtract_NonFiniteRejected(t *testing.T) {
	e := newExtractor(t)
	for name, bad := range map[string]float32{
		"nan":     float32(math.NaN()),
		"pos-inf": float32(math.Inf(1)),
		"neg-inf": float32(math.Inf(-1)),
	} {
		samples := make([]float32, 1600)
		samples[800] = bad
		if _, err := e.Extract(samples); !errors.Is(err, melspec.ErrNonFinite) {
			t.Errorf("%s: got %v, want ErrNonFinite", name, err)
		}
	}
}

func TestExtract_AllZeroNormalizesToZero(t *testing.T) {
	e := newExtractor(t)
	out, err := e.Extract(make([]float32, 16000))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// Pre-normalization every value is log10(1e-10); mean equals every value
	// and std is 0, so dividing by the epsilon yields exactly 0 everywhere.
	for i, v := range out {
		if v != 0 {
			t.Fatalf("value %d: got %g, want exactly 0", i, v)
		}
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := newExtractor(t)
	samples := sine(440, 0.1, 32000)

	first, err := e.Extract(samples)
	if err != nil {
		t.Fatalf("first Extract: %v", err)
	}
	// Run an unrelated extraction in between to exercise scratch reuse.
	if _, err := e.Extract(sine(1000, 0.5, 8000)); err != nil {
		t.Fatalf("interleaved Extract: %v", err)
	}
	second, err := e.Extract(samples)
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("value %d: %g != %g — cross-call state leaked", i, first[i], second[i])
		}
	}
}

func TestExtract_RecentAudioAnchoredAtTail(t *testing.T) {
	e := newExtractor(t)
	// Half the max length of tone: with left zero-padding, energy must sit
	// in the later frames and the early frames must look like silence.
	samples := sine(440, 0.5, melspec.MaxSamples/2)
	out, err := e.Extract(samples)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	colEnergy := func(f int) float64 {
		var sum float64
		for m := range melspec.MelBands {
			sum += float64(out[m*melspec.TargetFrames+f])
		}
		return sum / melspec.MelBands
	}

	early := colEnergy(10)
	late := colEnergy(melspec.TargetFrames - 10)
	if late <= early {
		t.Errorf("expected tail frames to carry the tone energy: early=%g late=%g", early, late)
	}
}

func TestExtract_ValuesRoughlyUnitScale(t *testing.T) {
	e := newExtractor(t)
	out, err := e.Extract(sine(440, 0.1, 32000))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// Globally normalized output has zero mean and unit variance; spot-check
	// the mean and that values are not wildly outside the expected range.
	var sum float64
	for _, v := range out {
		sum += float64(v)
	}
	mean := sum / float64(len(out))
	if math.Abs(mean) > 1e-3 {
		t.Errorf("expected near-zero mean, got %g", mean)
	}
	for i, v := range out {
		if math.Abs(float64(v)) > 50 {
			t.Fatalf("value %d out of plausible range: %g", i, v)
		}
	}
}

func TestFilterbank_Shape(t *testing.T) {
	e := newExtractor(t)
	fb := e.Filterbank()
	if len(fb) != melspec.MelBands {
		t.Fatalf("expected %d rows, got %d", melspec.MelBands, len(fb))
	}
	for m, row := range fb {
		if len(row) != melspec.FFTSize/2+1 {
			t.Fatalf("row %d: expected %d bins, got %d", m, melspec.FFTSize/2+1, len(row))
		}
	}
}

func TestFilterbank_RowSumsPositive(t *testing.T) {
	e := newExtractor(t)
	for m, row := range e.Filterbank() {
		var sum float64
		for _, w := range row {
			if w < 0 {
				t.Fatalf("row %d: negative weight %g", m, w)
			}
			sum += w
		}
		if sum <= 0 {
			t.Errorf("row %d: sum %g, want > 0", m, sum)
		}
	}
}

func TestFilterbank_ZeroOutsideSupport(t *testing.T) {
	e := newExtractor(t)
	fb := e.Filterbank()
	// For each band, weights must rise to a single peak and be exactly zero
	// outside a contiguous support region.
	for m, row := range fb {
		first, last := -1, -1
		for i, w := range row {
			if w > 0 {
				if first == -1 {
					first = i
				}
				last = i
			}
		}
		if first == -1 {
			t.Fatalf("row %d has no support", m)
		}
		for i, w := range row {
			if (i < first || i > last) && w != 0 {
				t.Errorf("row %d bin %d: weight %g outside support, want exactly 0", m, i, w)
			}
		}
	}
}

func TestExtract_ToneExcitesMatchingBand(t *testing.T) {
	e := newExtractor(t)
	out, err := e.Extract(sine(440, 0.5, melspec.MaxSamples))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	// Average each band over all frames and find the hottest band.
	best, bestVal := 0, math.Inf(-1)
	for m := range melspec.MelBands {
		var sum float64
		for f := range melspec.TargetFrames {
			sum += float64(out[m*melspec.TargetFrames+f])
		}
		if avg := sum / melspec.TargetFrames; avg > bestVal {
			best, bestVal = m, avg
		}
	}

	// 440 Hz sits in the lower third of the mel axis for a 16 kHz signal.
	if best > melspec.MelBands/3 {
		t.Errorf("expected the hottest band in the lower third for a 440 Hz tone, got band %d", best)
	}
}
