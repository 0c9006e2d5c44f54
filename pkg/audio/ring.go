package audio

import (
	"math"
	"sync"
	"sync/atomic"
)

// Ring is a thread-safe rolling window of mono float32 samples with a fixed
// capacity. When an append would overflow, the oldest samples are dropped to
// make room — the window always holds the most recent samples. This is
// intentional for a live capture path: the hardware callback must never
// block or fail on a full buffer.
//
// The mutex is held only for the duration of an append or a snapshot copy,
// never across I/O or inference. The last-block RMS level is published
// through an atomic so readers never contend with the capture callback.
type Ring struct {
	mu   sync.Mutex
	buf  []float32
	cap  int
	head int // index of next write position
	len  int // number of valid samples

	sampleRate int
	level      atomic.Uint32 // math.Float32bits of the last appended block's RMS
}

// NewRing creates a Ring holding up to capacity samples at the given sample
// rate. Capacity and sampleRate must be positive.
func NewRing(capacity, sampleRate int) *Ring {
	if capacity <= 0 {
		panic("audio: ring capacity must be positive")
	}
	if sampleRate <= 0 {
		panic("audio: ring sample rate must be positive")
	}
	return &Ring{
		buf:        make([]float32, capacity),
		cap:        capacity,
		sampleRate: sampleRate,
	}
}

// Append adds samples to the window, evicting the oldest samples when the
// window is full. Eviction is implicit in the circular write: cost is
// proportional to len(samples), never to the window size. It also computes
// and publishes the RMS level of the appended block.
func (r *Ring) Append(samples []float32) {
	if len(samples) == 0 {
		return
	}

	// RMS of this block, published before taking the lock so level reads
	// never wait on a snapshot in progress.
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := float32(math.Sqrt(sum / float64(len(samples))))
	r.level.Store(math.Float32bits(rms))

	r.mu.Lock()
	defer r.mu.Unlock()

	// If a single block exceeds capacity only its tail survives.
	if len(samples) > r.cap {
		samples = samples[len(samples)-r.cap:]
	}

	n := copy(r.buf[r.head:], samples)
	if n < len(samples) {
		copy(r.buf, samples[n:])
	}
	r.head = (r.head + len(samples)) % r.cap
	r.len += len(samples)
	if r.len > r.cap {
		r.len = r.cap
	}
}

// Snapshot returns a copy of the current window, oldest sample first. The
// returned slice is owned by the caller.
func (r *Ring) Snapshot() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]float32, r.len)
	r.copyTail(out)
	return out
}

// TailRMS computes the root-mean-square over the most recent n samples. When
// fewer than n samples are buffered it uses all of them; an empty window
// yields 0. The lock is held only for the O(n) scan.
func (r *Ring) TailRMS(n int) float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.len {
		n = r.len
	}
	if n == 0 {
		return 0
	}

	start := (r.head - n + r.cap) % r.cap
	var sum float64
	for i := range n {
		s := float64(r.buf[(start+i)%r.cap])
		sum += s * s
	}
	return float32(math.Sqrt(sum / float64(n)))
}

// Level returns the RMS of the most recently appended block without taking
// the buffer lock.
func (r *Ring) Level() float32 {
	return math.Float32frombits(r.level.Load())
}

// Len returns the number of samples currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.len
}

// Capacity returns the fixed capacity in samples.
func (r *Ring) Capacity() int { return r.cap }

// Duration returns the buffered audio duration in seconds.
func (r *Ring) Duration() float64 {
	return float64(r.Len()) / float64(r.sampleRate)
}

// Clear empties the window and resets the published level. Capture, if
// running, continues to append.
func (r *Ring) Clear() {
	r.mu.Lock()
	r.head = 0
	r.len = 0
	r.mu.Unlock()
	r.level.Store(0)
}

// copyTail writes the newest len(dst) samples into dst in order, oldest
// first. Caller must hold the lock and ensure len(dst) <= r.len.
func (r *Ring) copyTail(dst []float32) {
	n := len(dst)
	start := (r.head - n + r.cap) % r.cap
	first := copy(dst, r.buf[start:min(start+n, r.cap)])
	if first < n {
		copy(dst[first:], r.buf[:n-first])
	}
}
