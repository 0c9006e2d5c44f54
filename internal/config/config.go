// Package config provides the configuration schema and loader for the
// turnsense detector.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for turnsense.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Capture  CaptureConfig  `yaml:"capture"`
	Detector DetectorConfig `yaml:"detector"`
	Model    ModelConfig    `yaml:"model"`
}

// ServerConfig holds the dashboard listen address and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the dashboard listens on (e.g., ":8080").
	// Empty disables the dashboard.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig holds microphone capture parameters. The converter handles
// whatever the device actually delivers; these are requests, not demands.
type CaptureConfig struct {
	// SampleRate requested from the device in Hz. Default 48000.
	SampleRate int `yaml:"sample_rate"`

	// Channels requested from the device. Default 1.
	Channels int `yaml:"channels"`

	// BlockSize is the preferred callback period in frames. Zero lets the
	// platform choose.
	BlockSize int `yaml:"block_size"`
}

// DetectorConfig exposes the silence/turn thresholds. Zero values select the
// documented defaults.
type DetectorConfig struct {
	// SilenceThreshold is the RMS level below which audio counts as
	// silence. Default 0.005.
	SilenceThreshold float32 `yaml:"silence_threshold"`

	// SilenceDurationMs is how long a silence episode must last before the
	// trigger fires. Default 1500.
	SilenceDurationMs int `yaml:"silence_duration_ms"`

	// MinBufferMs is the minimum buffered audio before detection is
	// eligible. Default 500.
	MinBufferMs int `yaml:"min_buffer_ms"`

	// CompleteThreshold is the probability at or above which a turn counts
	// as complete. Default 0.5.
	CompleteThreshold float32 `yaml:"complete_threshold"`

	// PollIntervalMs is the silence-poll cadence. Default 100.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// ResultTTLMs is how long a reported result stays published before
	// automatic expiry. Default 3000.
	ResultTTLMs int `yaml:"result_ttl_ms"`
}

// ModelConfig locates the classifier assets.
type ModelConfig struct {
	// Path is the ONNX model asset. Required; its absence is a hard
	// startup failure.
	Path string `yaml:"path"`

	// RuntimeLib locates the ONNX runtime shared library. Empty uses the
	// platform default.
	RuntimeLib string `yaml:"runtime_lib"`
}
