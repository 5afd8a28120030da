// Package observe provides application-wide observability primitives for
// the speech-to-text gateway: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/brevity-audio/sttgateway"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TranscribeDuration tracks engine transcription latency, from lease
	// acquisition to result. Use with attribute: attribute.String("backend", ...)
	TranscribeDuration metric.Float64Histogram

	// LeaseWaitDuration tracks how long a session waited for a concurrency
	// limiter lease before its payload was handed to the engine.
	LeaseWaitDuration metric.Float64Histogram

	// --- Counters ---

	// TranscriptsEmitted counts outbound transcript messages sent to
	// clients. Use with attribute: attribute.String("backend", ...)
	TranscriptsEmitted metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts engine invocation failures. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("kind", ...)
	EngineErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live websocket sessions.
	ActiveSessions metric.Int64UpDownCounter

	// EngineLeasesInUse tracks how many concurrency limiter leases are
	// currently held, i.e. how many transcriptions are in flight.
	EngineLeasesInUse metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for interactive transcription turnaround.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscribeDuration, err = m.Float64Histogram("sttgateway.transcribe.duration",
		metric.WithDescription("Latency of a single engine transcription call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LeaseWaitDuration, err = m.Float64Histogram("sttgateway.lease_wait.duration",
		metric.WithDescription("Time a session spent waiting for a concurrency limiter lease."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TranscriptsEmitted, err = m.Int64Counter("sttgateway.transcripts.emitted",
		metric.WithDescription("Total transcript messages sent to clients, by backend."),
	); err != nil {
		return nil, err
	}
	// Error counters.
	if met.EngineErrors, err = m.Int64Counter("sttgateway.engine.errors",
		metric.WithDescription("Total engine invocation failures, by backend and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("sttgateway.active_sessions",
		metric.WithDescription("Number of live websocket sessions."),
	); err != nil {
		return nil, err
	}
	if met.EngineLeasesInUse, err = m.Int64UpDownCounter("sttgateway.engine_leases_in_use",
		metric.WithDescription("Number of concurrency limiter leases currently held."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sttgateway.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranscriptEmitted is a convenience method that records a transcript
// emission counter increment.
func (m *Metrics) RecordTranscriptEmitted(ctx context.Context, backend string) {
	m.TranscriptsEmitted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

// RecordEngineError is a convenience method that records an engine error
// counter increment.
func (m *Metrics) RecordEngineError(ctx context.Context, backend, kind string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("kind", kind),
		),
	)
}
