package turn

import "time"

// Result is one turn-completion detection reported to the UI collaborator.
type Result struct {
	// Probability is the classifier's post-sigmoid estimate in [0, 1].
	Probability float32 `json:"probability"`

	// IsTurnComplete is Probability measured against the configured
	// completion threshold.
	IsTurnComplete bool `json:"is_turn_complete"`

	// TimestampMs is when the detection completed, in Unix milliseconds.
	TimestampMs int64 `json:"timestamp_ms"`

	// BufferDurationSeconds is the rolling window fill at trigger time.
	BufferDurationSeconds float64 `json:"buffer_duration_seconds"`

	// InferenceTimeMs is how long the classifier call took.
	InferenceTimeMs float64 `json:"inference_time_ms"`
}

// Callbacks are invoked synchronously by the detector as observable state
// changes. All fields are optional (nil is allowed). OnLevelChanged and
// OnBufferDurationChanged run on the capture thread and must be cheap; the
// remaining callbacks run on the detector's poll goroutine or a trigger
// round-trip goroutine.
type Callbacks struct {
	// OnRecordingChanged reports capture starting or stopping.
	OnRecordingChanged func(recording bool)

	// OnLevelChanged reports the RMS level of the latest capture block.
	OnLevelChanged func(level float32)

	// OnBufferDurationChanged reports the rolling window fill in seconds.
	OnBufferDurationChanged func(seconds float64)

	// OnSpeechResumed fires when audible speech ends a silence episode.
	OnSpeechResumed func()

	// OnDetectionResult delivers each completed detection.
	OnDetectionResult func(Result)

	// OnResultCleared fires when the reported result expires or is cleared
	// by speech resumption.
	OnResultCleared func()
}

// Config holds the coordinator thresholds. These are configuration, not
// protocol: the zero value of each field selects its default.
type Config struct {
	// SilenceThreshold is the RMS level below which audio counts as
	// silence. Default 0.005.
	SilenceThreshold float32

	// SilenceDuration is how long an episode must last before the single
	// trigger fires. Default 1.5s.
	SilenceDuration time.Duration

	// MinBufferDuration is the minimum buffered audio before detection is
	// eligible. Default 500ms.
	MinBufferDuration time.Duration

	// CompleteThreshold is the probability at or above which a turn counts
	// as complete. Default 0.5.
	CompleteThreshold float32

	// PollInterval is the silence-poll cadence. Default 100ms. The RMS
	// slice examined each tick spans one poll interval of audio.
	PollInterval time.Duration

	// ResultTTL is how long a reported result stays published before it is
	// automatically cleared, unless superseded. Default 3s.
	ResultTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 0.005
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = 1500 * time.Millisecond
	}
	if c.MinBufferDuration <= 0 {
		c.MinBufferDuration = 500 * time.Millisecond
	}
	if c.CompleteThreshold <= 0 {
		c.CompleteThreshold = 0.5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = 3 * time.Second
	}
}
