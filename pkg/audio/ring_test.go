package audio_test

import (
	"math"
	"testing"

	"github.com/emberhill/turnsense/pkg/audio"
)

func seq(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func TestRing_AppendAndSnapshot(t *testing.T) {
	r := audio.NewRing(10, 16000)
	r.Append(seq(0, 4))
	got := r.Snapshot()
	if len(got) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(got))
	}
	for i := range got {
		if got[i] != float32(i) {
			t.Errorf("sample %d: got %f, want %d", i, got[i], i)
		}
	}
}

func TestRing_NeverExceedsCapacity(t *testing.T) {
	const capacity = 100
	r := audio.NewRing(capacity, 16000)

	// Append in a mix of block sizes until well past capacity.
	next := 0
	for _, n := range []int{7, 64, 100, 3, 51, 120, 9} {
		r.Append(seq(next, n))
		next += n
	}

	got := r.Snapshot()
	if len(got) != capacity {
		t.Fatalf("expected snapshot of %d samples, got %d", capacity, len(got))
	}
	// The window must hold the most-recently-appended samples in order.
	for i := range got {
		want := float32(next - capacity + i)
		if got[i] != want {
			t.Fatalf("sample %d: got %f, want %f", i, got[i], want)
		}
	}
}

func TestRing_OversizedBlockKeepsTail(t *testing.T) {
	r := audio.NewRing(8, 16000)
	r.Append(seq(0, 20))
	got := r.Snapshot()
	if len(got) != 8 {
		t.Fatalf("expected 8 samples, got %d", len(got))
	}
	for i := range got {
		if want := float32(12 + i); got[i] != want {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want)
		}
	}
}

func TestRing_Level(t *testing.T) {
	r := audio.NewRing(100, 16000)
	r.Append([]float32{0.5, -0.5, 0.5, -0.5})
	if lvl := r.Level(); math.Abs(float64(lvl)-0.5) > 1e-6 {
		t.Errorf("expected RMS level 0.5, got %f", lvl)
	}
}

func TestRing_TailRMS(t *testing.T) {
	r := audio.NewRing(100, 16000)
	// Loud first, quiet tail.
	loud := make([]float32, 50)
	for i := range loud {
		loud[i] = 0.8
	}
	r.Append(loud)
	r.Append(make([]float32, 30)) // silence

	if rms := r.TailRMS(30); rms != 0 {
		t.Errorf("expected tail RMS 0 over the silent samples, got %f", rms)
	}
	if rms := r.TailRMS(80); rms == 0 {
		t.Error("expected non-zero RMS once the loud samples are included")
	}
}

func TestRing_TailRMSShortBuffer(t *testing.T) {
	r := audio.NewRing(100, 16000)
	if rms := r.TailRMS(1600); rms != 0 {
		t.Errorf("expected 0 RMS on empty ring, got %f", rms)
	}
	r.Append([]float32{0.3, 0.3})
	if rms := r.TailRMS(1600); math.Abs(float64(rms)-0.3) > 1e-6 {
		t.Errorf("expected RMS over available samples, got %f", rms)
	}
}

func TestRing_ClearAndDuration(t *testing.T) {
	r := audio.NewRing(32000, 16000)
	r.Append(make([]float32, 16000))
	if d := r.Duration(); math.Abs(d-1.0) > 1e-9 {
		t.Errorf("expected 1s duration, got %f", d)
	}
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("expected empty ring after Clear, got %d samples", r.Len())
	}
	if r.Level() != 0 {
		t.Errorf("expected level reset after Clear, got %f", r.Level())
	}
	if d := r.Duration(); d != 0 {
		t.Errorf("expected 0 duration after Clear, got %f", d)
	}
}

func TestRing_SnapshotIsCopy(t *testing.T) {
	r := audio.NewRing(10, 16000)
	r.Append(seq(0, 5))
	snap := r.Snapshot()
	snap[0] = 999
	again := r.Snapshot()
	if again[0] == 999 {
		t.Error("snapshot must not alias internal storage")
	}
}
