// Package observe provides application-wide observability primitives for
// Prepdeck: OpenTelemetry metrics, distributed tracing, structured logging
// helpers, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped from the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Prepdeck metrics.
const meterName = "github.com/prepdeck/prepdeck"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// BackendDuration tracks reasoning-backend call latency. Use with
	// attributes: kind (generate|example|evaluate), outcome.
	BackendDuration metric.Float64Histogram

	// BackendAttempts counts backend attempts and fallbacks. Use with
	// attributes: kind, outcome (attempt-1-of-2|attempt-2-of-2|fallback),
	// status (ok|error).
	BackendAttempts metric.Int64Counter

	// TranscriptEvents counts accepted speech events by role and finality.
	TranscriptEvents metric.Int64Counter

	// OrderingAnomalies counts late events discarded for closed turns.
	OrderingAnomalies metric.Int64Counter

	// RunTransitions counts complete_run and practice_again transitions by
	// operation and status (ok|conflict|invalid).
	RunTransitions metric.Int64Counter

	// ActiveSessions tracks the number of resident session handles.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// reasoning-backend round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.BackendDuration, err = m.Float64Histogram("prepdeck.backend.duration",
		metric.WithDescription("Latency of reasoning-backend calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendAttempts, err = m.Int64Counter("prepdeck.backend.attempts",
		metric.WithDescription("Backend attempts and fallbacks by kind, outcome, and status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEvents, err = m.Int64Counter("prepdeck.transcript.events",
		metric.WithDescription("Accepted speech events by role and finality."),
	); err != nil {
		return nil, err
	}
	if met.OrderingAnomalies, err = m.Int64Counter("prepdeck.transcript.anomalies",
		metric.WithDescription("Late speech events discarded for already-closed turns."),
	); err != nil {
		return nil, err
	}
	if met.RunTransitions, err = m.Int64Counter("prepdeck.run.transitions",
		metric.WithDescription("Run lifecycle transitions by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("prepdeck.active_sessions",
		metric.WithDescription("Number of resident session handles."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("prepdeck.http.request.duration",
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

// RecordBackendAttempt records one backend attempt or fallback with the
// standard attribute set.
func (m *Metrics) RecordBackendAttempt(ctx context.Context, kind, outcome, status string) {
	m.BackendAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
			attribute.String("status", status),
		),
	)
}

// RecordBackendDuration records one backend call's latency in seconds.
func (m *Metrics) RecordBackendDuration(ctx context.Context, kind, outcome string, seconds float64) {
	m.BackendDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordTranscriptEvent records one accepted speech event.
func (m *Metrics) RecordTranscriptEvent(ctx context.Context, role string, final bool) {
	m.TranscriptEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("role", role),
			attribute.Bool("final", final),
		),
	)
}

// RecordOrderingAnomaly records one discarded late event.
func (m *Metrics) RecordOrderingAnomaly(ctx context.Context, role string) {
	m.OrderingAnomalies.Add(ctx, 1,
		metric.WithAttributes(attribute.String("role", role)),
	)
}

// RecordRunTransition records one run lifecycle transition.
func (m *Metrics) RecordRunTransition(ctx context.Context, op, status string) {
	m.RunTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}
