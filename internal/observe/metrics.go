// Package observe provides the observability primitives of the tool harness:
// OpenTelemetry metrics, distributed tracing, trace-aware logging, an
// invocation observer for the dispatcher and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to a Prometheus exporter so they can be scraped at /metrics.
// A package-level [DefaultMetrics] instance is provided for convenience;
// tests should use [NewMetrics] with their own [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all harness metrics.
const meterName = "github.com/MrWong99/toolharness"

// Metrics holds the OpenTelemetry instruments of the harness. The
// underlying OTel types handle their own synchronisation.
type Metrics struct {
	// ToolCalls counts finished invocations. Attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	// where status is "ok" or the error kind.
	ToolCalls metric.Int64Counter

	// ToolDuration tracks invocation latency in seconds, including
	// validation and time spent waiting for a free slot.
	ToolDuration metric.Float64Histogram

	// ToolInflight is the number of invocations currently running.
	ToolInflight metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request latency in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// ClientRequests counts language model requests per upstream. Status is
	// "ok", "error" or "circuit_open".
	ClientRequests metric.Int64Counter

	// StreamSessions is the number of open WebSocket sessions.
	StreamSessions metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds. Tools range from
// in-memory echoes to interpreter runs and model calls.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all metric instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.ToolCalls, err = meter.Int64Counter("toolharness.tool.calls",
		metric.WithDescription("Total tool invocations by tool and status."),
	); err != nil {
		return nil, err
	}
	if m.ToolDuration, err = meter.Float64Histogram("toolharness.tool.duration",
		metric.WithDescription("Tool invocation latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if m.ToolInflight, err = meter.Int64UpDownCounter("toolharness.tool.inflight",
		metric.WithDescription("Tool invocations currently in progress."),
	); err != nil {
		return nil, err
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram("toolharness.http.request.duration",
		metric.WithDescription("HTTP request latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if m.ClientRequests, err = meter.Int64Counter("toolharness.client.requests",
		metric.WithDescription("Language model requests by upstream and status."),
	); err != nil {
		return nil, err
	}
	if m.StreamSessions, err = meter.Int64UpDownCounter("toolharness.stream.sessions",
		metric.WithDescription("Open WebSocket call sessions."),
	); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns a [Metrics] built from the global
// [otel.GetMeterProvider]. Call [InitProvider] first so the global provider
// is the Prometheus-backed one. Panics if instrument creation fails, which
// only happens on programmer error.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordToolCall increments the tool call counter and records the latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, attrs)
}

// RecordClientRequest increments the client request counter.
func (m *Metrics) RecordClientRequest(ctx context.Context, upstream, status string) {
	m.ClientRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("upstream", upstream),
			attribute.String("status", status),
		),
	)
}
