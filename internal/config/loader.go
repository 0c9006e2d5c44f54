package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Capture
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must not be negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Channels < 0 {
		errs = append(errs, fmt.Errorf("capture.channels %d must not be negative", cfg.Capture.Channels))
	}
	if cfg.Capture.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("capture.block_size %d must not be negative", cfg.Capture.BlockSize))
	}

	// Detector
	if cfg.Detector.SilenceThreshold < 0 || cfg.Detector.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("detector.silence_threshold %.4f is out of range [0, 1]", cfg.Detector.SilenceThreshold))
	}
	if cfg.Detector.CompleteThreshold < 0 || cfg.Detector.CompleteThreshold > 1 {
		errs = append(errs, fmt.Errorf("detector.complete_threshold %.4f is out of range [0, 1]", cfg.Detector.CompleteThreshold))
	}
	if cfg.Detector.SilenceDurationMs < 0 {
		errs = append(errs, fmt.Errorf("detector.silence_duration_ms %d must not be negative", cfg.Detector.SilenceDurationMs))
	}
	if cfg.Detector.MinBufferMs < 0 {
		errs = append(errs, fmt.Errorf("detector.min_buffer_ms %d must not be negative", cfg.Detector.MinBufferMs))
	}
	if cfg.Detector.PollIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("detector.poll_interval_ms %d must not be negative", cfg.Detector.PollIntervalMs))
	}
	if cfg.Detector.ResultTTLMs < 0 {
		errs = append(errs, fmt.Errorf("detector.result_ttl_ms %d must not be negative", cfg.Detector.ResultTTLMs))
	}
	if cfg.Detector.SilenceDurationMs > 0 && cfg.Detector.PollIntervalMs > cfg.Detector.SilenceDurationMs {
		errs = append(errs, fmt.Errorf("detector.poll_interval_ms %d exceeds detector.silence_duration_ms %d; silence would never accumulate",
			cfg.Detector.PollIntervalMs, cfg.Detector.SilenceDurationMs))
	}

	// Model
	if cfg.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}

	return errors.Join(errs...)
}
