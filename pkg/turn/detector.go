// Package turn coordinates silence detection and classifier invocation over
// a rolling audio window.
//
// The coordinator polls the window's recent energy on a fixed cadence and
// tracks a single silence episode at a time. When an episode has lasted the
// configured duration, it issues exactly one feature-extraction + inference
// round trip; a new episode — preceded by audible speech — is required
// before another trigger can fire.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emberhill/turnsense/internal/eventlog"
	"github.com/emberhill/turnsense/internal/observe"
	"github.com/emberhill/turnsense/pkg/audio"
	"github.com/emberhill/turnsense/pkg/infer"
	"github.com/emberhill/turnsense/pkg/melspec"
)

// ErrInsufficientAudio is reported when a trigger fires with less buffered
// audio than the configured minimum. It does not alter episode state.
var ErrInsufficientAudio = errors.New("turn: insufficient buffered audio for detection")

// episode is the Active arm of the silence state machine. A nil *episode is
// the None state.
type episode struct {
	start     time.Time
	triggered bool
}

// Detector is the silence/turn-state coordinator. It holds a read-only
// reference to the rolling window and owns all episode state.
//
// Concurrency: the poll goroutine mutates episode state under mu; a trigger
// round trip runs on its own goroutine, serialized by runMu so no two
// extractions overlap (the extractor's scratch buffers are single-caller).
// An in-flight round trip whose episode has since reset is discarded via the
// generation counter.
type Detector struct {
	cfg       Config
	ring      *audio.Ring
	extractor *melspec.Extractor
	engine    infer.Engine
	cb        Callbacks
	log       *eventlog.Log
	metrics   *observe.Metrics

	// now is the clock; replaceable in tests.
	now func() time.Time

	mu         sync.Mutex
	ep         *episode
	generation uint64
	lastResult *Result
	expiry     *time.Timer

	runMu sync.Mutex // serializes trigger round trips

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// NewDetector creates a coordinator over ring using the given extractor and
// classifier engine. log and the Callbacks fields may each be nil.
func NewDetector(cfg Config, ring *audio.Ring, extractor *melspec.Extractor, engine infer.Engine, log *eventlog.Log, cb Callbacks) *Detector {
	cfg.applyDefaults()
	if log == nil {
		log = eventlog.New(0)
	}
	return &Detector{
		cfg:       cfg,
		ring:      ring,
		extractor: extractor,
		engine:    engine,
		cb:        cb,
		log:       log,
		metrics:   observe.DefaultMetrics(),
		now:       time.Now,
		stopped:   make(chan struct{}),
	}
}

// Log returns the detector's event log.
func (d *Detector) Log() *eventlog.Log { return d.log }

// Start launches the poll loop. It returns immediately; polling continues
// until ctx is cancelled or Stop is called.
func (d *Detector) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopped:
				return
			case <-ticker.C:
				d.tick(ctx, d.now())
			}
		}
	}()
}

// Stop cancels polling and clears episode state. An in-flight inference is
// allowed to complete but its result is discarded.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() { close(d.stopped) })
	d.wg.Wait()
	d.Clear()
}

// Clear forces the state machine to None and removes any published result.
// It does not stop capture or polling.
func (d *Detector) Clear() {
	d.mu.Lock()
	d.ep = nil
	d.generation++
	cleared := d.clearResultLocked()
	d.mu.Unlock()

	if cleared && d.cb.OnResultCleared != nil {
		d.cb.OnResultCleared()
	}
}

// NotifyRecording publishes a capture start/stop transition. Stopping also
// resets the state machine, matching the capture contract: a stopped stream
// cannot be mid-episode.
func (d *Detector) NotifyRecording(recording bool) {
	if !recording {
		d.Clear()
	}
	if recording {
		d.log.Append(eventlog.Info, "recording started")
	} else {
		d.log.Append(eventlog.Info, "recording stopped")
	}
	if d.cb.OnRecordingChanged != nil {
		d.cb.OnRecordingChanged(recording)
	}
}

// NotifyBlock publishes per-block level and buffer duration updates. It is
// wired to the capture callback and must stay cheap.
func (d *Detector) NotifyBlock(level float32, duration float64) {
	if d.cb.OnLevelChanged != nil {
		d.cb.OnLevelChanged(level)
	}
	if d.cb.OnBufferDurationChanged != nil {
		d.cb.OnBufferDurationChanged(duration)
	}
}

// LastResult returns the currently published detection, or nil when none is
// active.
func (d *Detector) LastResult() *Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastResult == nil {
		return nil
	}
	r := *d.lastResult
	return &r
}

// tick advances the state machine one poll step. The RMS window spans the
// most recent poll interval of audio.
func (d *Detector) tick(ctx context.Context, now time.Time) {
	sliceSamples := int(d.cfg.PollInterval.Seconds() * float64(audio.DefaultSampleRate))
	rms := d.ring.TailRMS(sliceSamples)
	duration := d.ring.Duration()

	d.metrics.BufferSeconds.Record(ctx, duration)

	var (
		fireTrigger   bool
		speechResumed bool
		resultCleared bool
		gen           uint64
	)

	d.mu.Lock()
	switch {
	case rms < d.cfg.SilenceThreshold && duration >= d.cfg.MinBufferDuration.Seconds():
		if d.ep == nil {
			d.ep = &episode{start: now}
		} else if !d.ep.triggered && now.Sub(d.ep.start) >= d.cfg.SilenceDuration {
			d.ep.triggered = true
			fireTrigger = true
			gen = d.generation
		}
	case rms >= d.cfg.SilenceThreshold:
		if d.ep != nil {
			speechResumed = true
			resultCleared = d.clearResultLocked()
		}
		d.ep = nil
		d.generation++
	}
	d.mu.Unlock()

	if speechResumed {
		d.log.Append(eventlog.Info, "speech resumed")
		if d.cb.OnSpeechResumed != nil {
			d.cb.OnSpeechResumed()
		}
		if resultCleared && d.cb.OnResultCleared != nil {
			d.cb.OnResultCleared()
		}
	}

	if fireTrigger {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.runTrigger(ctx, gen)
		}()
	}
}

// runTrigger executes the single snapshot -> extract -> infer round trip for
// a triggered episode. The buffer lock is held only inside Snapshot; all
// computation happens on a private copy.
func (d *Detector) runTrigger(ctx context.Context, gen uint64) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	ctx, span := observe.StartSpan(ctx, "turn.trigger")
	defer span.End()

	started := d.now()
	duration := d.ring.Duration()

	if duration < d.cfg.MinBufferDuration.Seconds() {
		d.metrics.RecordTrigger(ctx, "insufficient_audio")
		d.log.Append(eventlog.Warning,
			fmt.Sprintf("detection skipped: only %.2fs audio buffered", duration))
		return
	}

	snapshot := d.ring.Snapshot()

	extractStart := d.now()
	features, err := d.extractor.Extract(snapshot)
	d.metrics.ExtractionDuration.Record(ctx, d.now().Sub(extractStart).Seconds())
	if err != nil {
		d.metrics.RecordTrigger(ctx, "error")
		d.metrics.InferenceErrors.Add(ctx, 1)
		d.log.Append(eventlog.Error, fmt.Sprintf("feature extraction failed: %v", err))
		observe.Logger(ctx).Error("feature extraction failed", "err", err)
		return
	}

	inferStart := d.now()
	prob, err := d.engine.Predict(ctx, features)
	inferElapsed := d.now().Sub(inferStart)
	d.metrics.InferenceDuration.Record(ctx, inferElapsed.Seconds())
	d.metrics.RoundTripDuration.Record(ctx, d.now().Sub(started).Seconds())
	if err != nil {
		// The episode stays triggered: no retry within the same silence
		// episode, a new one is required.
		d.metrics.RecordTrigger(ctx, "error")
		d.metrics.InferenceErrors.Add(ctx, 1)
		d.log.Append(eventlog.Error, fmt.Sprintf("inference failed: %v", err))
		observe.Logger(ctx).Error("inference failed", "err", err)
		return
	}

	result := Result{
		Probability:           prob,
		IsTurnComplete:        prob >= d.cfg.CompleteThreshold,
		TimestampMs:           d.now().UnixMilli(),
		BufferDurationSeconds: duration,
		InferenceTimeMs:       float64(inferElapsed) / float64(time.Millisecond),
	}

	d.mu.Lock()
	if gen != d.generation {
		// Speech resumed while inference was in flight; discard.
		d.mu.Unlock()
		d.log.Append(eventlog.Info, "detection discarded: episode reset during inference")
		return
	}
	d.lastResult = &result
	d.armExpiryLocked(gen)
	d.mu.Unlock()

	d.metrics.RecordTrigger(ctx, "ok")
	if result.IsTurnComplete {
		d.metrics.TurnsComplete.Add(ctx, 1)
		d.log.Append(eventlog.Success,
			fmt.Sprintf("turn complete (p=%.3f, %.1fms)", prob, result.InferenceTimeMs))
	} else {
		d.log.Append(eventlog.Info,
			fmt.Sprintf("turn incomplete (p=%.3f, %.1fms)", prob, result.InferenceTimeMs))
	}
	slog.Debug("detection reported",
		"probability", prob,
		"complete", result.IsTurnComplete,
		"inference_ms", result.InferenceTimeMs,
	)

	if d.cb.OnDetectionResult != nil {
		d.cb.OnDetectionResult(result)
	}
}

// armExpiryLocked (re)schedules the automatic result clear. A newer result
// supersedes the pending timer. Caller holds mu.
func (d *Detector) armExpiryLocked(gen uint64) {
	if d.expiry != nil {
		d.expiry.Stop()
	}
	d.expiry = time.AfterFunc(d.cfg.ResultTTL, func() {
		d.mu.Lock()
		expired := gen == d.generation && d.lastResult != nil
		if expired {
			d.lastResult = nil
		}
		d.mu.Unlock()
		if expired && d.cb.OnResultCleared != nil {
			d.cb.OnResultCleared()
		}
	})
}

// clearResultLocked removes the published result and cancels its expiry
// timer. Caller holds mu. Reports whether a result was actually cleared.
func (d *Detector) clearResultLocked() bool {
	if d.expiry != nil {
		d.expiry.Stop()
		d.expiry = nil
	}
	if d.lastResult == nil {
		return false
	}
	d.lastResult = nil
	return true
}
