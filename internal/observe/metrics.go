// Package observe provides application-wide observability primitives for
// Omni: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Omni metrics.
const meterName = "github.com/kryptik-dev/omni"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SessionDuration tracks the total lifetime of live voice sessions.
	SessionDuration metric.Float64Histogram

	// ToolExecutionDuration tracks capability execution latency. Use with
	// attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts capability invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// AudioFramesSent counts outbound capture frames delivered to the
	// transport.
	AudioFramesSent metric.Int64Counter

	// AudioFramesReceived counts inbound model audio buffers scheduled for
	// playback.
	AudioFramesReceived metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions (0 or 1 in the
	// single-session engine, kept as a gauge for dashboard consistency).
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for capability-execution latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for
// session lifetimes.
var sessionBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SessionDuration, err = m.Float64Histogram("omni.session.duration",
		metric.WithDescription("Lifetime of live voice sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("omni.tool_execution.duration",
		metric.WithDescription("Latency of capability execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("omni.tool.calls",
		metric.WithDescription("Total capability invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.AudioFramesSent, err = m.Int64Counter("omni.audio.frames_sent",
		metric.WithDescription("Outbound capture frames sent to the transport."),
	); err != nil {
		return nil, err
	}
	if met.AudioFramesReceived, err = m.Int64Counter("omni.audio.frames_received",
		metric.WithDescription("Inbound model audio buffers scheduled for playback."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("omni.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("omni.http.request.duration",
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

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
