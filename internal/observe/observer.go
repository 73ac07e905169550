package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/toolharness/pkg/tool"
)

// unknownToolLabel replaces caller-supplied names that match no tool so
// arbitrary input cannot inflate metric cardinality.
const unknownToolLabel = "(unknown)"

// ToolObserver is a [tool.Callback] that traces, measures and logs every
// invocation and feeds per-tool [Stats].
type ToolObserver struct {
	metrics *Metrics
	stats   *Stats
	log     *slog.Logger
}

var _ tool.Callback = (*ToolObserver)(nil)

// NewToolObserver returns an observer recording to m and stats. A nil
// logger means [slog.Default].
func NewToolObserver(m *Metrics, stats *Stats, log *slog.Logger) *ToolObserver {
	if log == nil {
		log = slog.Default()
	}
	return &ToolObserver{metrics: m, stats: stats, log: log}
}

// Stats returns the rolling statistics fed by o.
func (o *ToolObserver) Stats() *Stats {
	return o.stats
}

// OnToolStart opens a "tool.invoke <name>" span and marks the call in
// flight. Argument values are not recorded.
func (o *ToolObserver) OnToolStart(ctx context.Context, name string, args map[string]any) context.Context {
	ctx, _ = StartSpan(ctx, "tool.invoke "+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.Int("tool.argument_count", len(args)),
		),
	)
	o.metrics.ToolInflight.Add(ctx, 1)
	return ctx
}

// OnToolEnd closes the span opened by OnToolStart and records the outcome.
func (o *ToolObserver) OnToolEnd(ctx context.Context, name string, res tool.Result, elapsed time.Duration) {
	o.metrics.ToolInflight.Add(ctx, -1)

	label := name
	if !res.OK && res.Error != nil && res.Error.Kind == tool.ErrUnknownTool {
		label = unknownToolLabel
	}
	status := res.Status()
	o.metrics.RecordToolCall(ctx, label, status, elapsed.Seconds())

	failure := ""
	if !res.OK {
		failure = status
	}
	if o.stats != nil {
		o.stats.Record(label, elapsed, failure)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("tool.status", status))
	if res.OK {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, res.Error.Error())
	}
	span.End()

	attrs := []slog.Attr{
		slog.String("tool", name),
		slog.String("status", status),
		slog.Duration("elapsed", elapsed),
	}
	level := slog.LevelDebug
	if !res.OK {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("err", res.Error.Error()))
	}
	WithTrace(ctx, o.log).LogAttrs(ctx, level, "tool call finished", attrs...)
}

// RecordClientRequest forwards to the metrics so an observer can be handed
// to the language model client as its recorder.
func (o *ToolObserver) RecordClientRequest(ctx context.Context, upstream, status string) {
	o.metrics.RecordClientRequest(ctx, upstream, status)
}

// StreamOpened marks a WebSocket session open.
func (o *ToolObserver) StreamOpened(ctx context.Context) {
	o.metrics.StreamSessions.Add(ctx, 1)
}

// StreamClosed marks a WebSocket session closed.
func (o *ToolObserver) StreamClosed(ctx context.Context) {
	o.metrics.StreamSessions.Add(ctx, -1)
}
