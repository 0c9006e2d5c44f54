// Package observe provides application-wide observability primitives for
// turnsense: OpenTelemetry metrics, tracing helpers, and structured-logging
// glue.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the dashboard's /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all turnsense metrics.
const meterName = "github.com/emberhill/turnsense"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ExtractionDuration tracks mel-spectrogram extraction latency.
	ExtractionDuration metric.Float64Histogram

	// InferenceDuration tracks classifier inference latency.
	InferenceDuration metric.Float64Histogram

	// RoundTripDuration tracks the full snapshot -> extract -> infer trigger.
	RoundTripDuration metric.Float64Histogram

	// --- Counters ---

	// Triggers counts silence-episode triggers. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"insufficient_audio")
	Triggers metric.Int64Counter

	// TurnsComplete counts detections that crossed the completion threshold.
	TurnsComplete metric.Int64Counter

	// DroppedBlocks counts capture blocks discarded by the conversion path.
	DroppedBlocks metric.Int64Counter

	// InferenceErrors counts failed classifier round trips.
	InferenceErrors metric.Int64Counter

	// --- Gauges ---

	// BufferSeconds tracks the rolling window fill level in seconds.
	BufferSeconds metric.Float64Gauge
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// a real-time audio path: extraction and inference should land in the low
// milliseconds.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ExtractionDuration, err = m.Float64Histogram("turnsense.extraction.duration",
		metric.WithDescription("Latency of log-mel feature extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("turnsense.inference.duration",
		metric.WithDescription("Latency of turn-completion classifier inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RoundTripDuration, err = m.Float64Histogram("turnsense.roundtrip.duration",
		metric.WithDescription("End-to-end latency of a trigger round trip (snapshot, extract, infer)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Triggers, err = m.Int64Counter("turnsense.triggers",
		metric.WithDescription("Total silence-episode triggers by status."),
	); err != nil {
		return nil, err
	}
	if met.TurnsComplete, err = m.Int64Counter("turnsense.turns_complete",
		metric.WithDescription("Total detections crossing the turn-complete probability threshold."),
	); err != nil {
		return nil, err
	}
	if met.DroppedBlocks, err = m.Int64Counter("turnsense.capture.dropped_blocks",
		metric.WithDescription("Total capture blocks dropped by the conversion path."),
	); err != nil {
		return nil, err
	}
	if met.InferenceErrors, err = m.Int64Counter("turnsense.inference.errors",
		metric.WithDescription("Total failed classifier round trips."),
	); err != nil {
		return nil, err
	}

	if met.BufferSeconds, err = m.Float64Gauge("turnsense.buffer.seconds",
		metric.WithDescription("Rolling audio window fill level in seconds."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTrigger records one trigger with its outcome status
// ("ok", "error", or "insufficient_audio").
func (m *Metrics) RecordTrigger(ctx context.Context, status string) {
	m.Triggers.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
