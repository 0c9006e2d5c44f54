// Package capture connects a hardware microphone to the rolling audio
// window. It owns the platform audio context (miniaudio via malgo), converts
// each device callback block to mono float32 at the pipeline rate, and
// appends it to a [audio.Ring].
//
// The capture callback runs on a real-time thread owned by the audio
// subsystem: it only converts, appends, and publishes the block level. It
// never blocks on downstream work and conversion failures on a single block
// are dropped silently — a missed block must never halt capture.
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/emberhill/turnsense/internal/observe"
	"github.com/emberhill/turnsense/pkg/audio"
)

// ErrAlreadyRunning is returned by Start when capture is already active.
var ErrAlreadyRunning = errors.New("capture: already running")

// StartError wraps a platform audio subsystem failure surfaced at the
// Start boundary (context init, device init, device start, or an
// unauthorized/unusable device).
type StartError struct {
	Stage string // "context", "device-init", "device-start"
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("capture: %s: %v", e.Stage, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Config holds the capture device parameters.
type Config struct {
	// SampleRate requested from the device in Hz. The converter handles any
	// rate the device actually delivers. Default 48000.
	SampleRate int

	// Channels requested from the device. Default 1.
	Channels int

	// BlockSize is the preferred callback period in frames. Zero lets the
	// platform choose.
	BlockSize int
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
}

// Recorder captures from the default microphone into a rolling window.
// All exported methods are safe for concurrent use.
type Recorder struct {
	cfg  Config
	ring *audio.Ring

	// onBlock, when non-nil, is invoked after every successful append with
	// the block RMS level and the new buffer duration in seconds. It runs on
	// the capture thread and must be cheap.
	onBlock func(level float32, duration float64)

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running bool
	started time.Time

	// scratch is reused across callbacks for the byte -> float32 decode.
	// Only the capture thread touches it.
	scratch []float32

	metrics *observe.Metrics
}

// NewRecorder creates a Recorder that appends converted audio into ring.
// onBlock may be nil.
func NewRecorder(cfg Config, ring *audio.Ring, onBlock func(level float32, duration float64)) *Recorder {
	cfg.applyDefaults()
	return &Recorder{cfg: cfg, ring: ring, onBlock: onBlock, metrics: observe.DefaultMetrics()}
}

// Start configures the platform audio subsystem and begins receiving capture
// callbacks. It returns a [StartError] when the subsystem cannot be
// configured or the device is unauthorized.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return &StartError{Stage: "context", Err: err}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(r.cfg.Channels)
	deviceConfig.SampleRate = uint32(r.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(r.cfg.BlockSize)
	deviceConfig.Alsa.NoMMap = 1

	conv := &audio.FormatConverter{
		Target: audio.Format{SampleRate: audio.DefaultSampleRate, Channels: 1},
	}
	r.started = time.Now()

	onRecvFrames := func(_, pInput []byte, frameCount uint32) {
		if frameCount == 0 {
			return
		}
		r.handleBlock(conv, pInput, int(frameCount))
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return &StartError{Stage: "device-init", Err: err}
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return &StartError{Stage: "device-start", Err: err}
	}

	r.ctx = mctx
	r.device = device
	r.running = true

	slog.Info("capture started",
		"requested_rate", r.cfg.SampleRate,
		"requested_channels", r.cfg.Channels,
	)
	return nil
}

// Stop halts callbacks, releases the device and platform context, and clears
// the rolling window. Stopping an idle recorder is a no-op.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	if r.ctx != nil {
		_ = r.ctx.Uninit()
		r.ctx.Free()
		r.ctx = nil
	}
	r.running = false
	r.ring.Clear()
	slog.Info("capture stopped")
}

// Running reports whether capture callbacks are active.
func (r *Recorder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// handleBlock converts one callback's raw bytes and appends the result.
// Errors are swallowed: the real-time path drops a bad block rather than
// propagate.
func (r *Recorder) handleBlock(conv *audio.FormatConverter, pInput []byte, frames int) {
	n := frames * r.cfg.Channels
	if len(pInput) < n*4 {
		r.metrics.DroppedBlocks.Add(context.Background(), 1)
		return
	}
	if cap(r.scratch) < n {
		r.scratch = make([]float32, n)
	}
	samples := r.scratch[:n]
	for i := range n {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(pInput[i*4:]))
	}

	converted := conv.Convert(audio.Block{
		Samples:    samples,
		SampleRate: r.cfg.SampleRate,
		Channels:   r.cfg.Channels,
		Timestamp:  time.Since(r.started),
	})
	if len(converted) == 0 {
		r.metrics.DroppedBlocks.Add(context.Background(), 1)
		return
	}

	r.ring.Append(converted)
	if r.onBlock != nil {
		r.onBlock(r.ring.Level(), r.ring.Duration())
	}
}
