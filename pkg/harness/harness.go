// Package harness hosts a set of tools for an orchestrator.
//
// A [Harness] owns the application metadata, the tool [tool.Registry] and the
// [tool.Dispatcher]. [New] runs the whole startup sequence: it validates the
// metadata, registers every declaration, freezes the registry and enters the
// ready state. Any error returned by New is fatal; the process must not start
// accepting calls.
//
// Typical usage:
//
//	h, err := harness.New(harness.Metadata{
//	    Name:        "My App",
//	    Description: "Reads and writes files.",
//	    IconRef:     "icon.png",
//	}, []tool.Declaration{
//	    tool.Declare(echoSpec, echo),
//	}, harness.WithTimeout(30*time.Second))
//	if err != nil {
//	    // exit with a startup-fatal status
//	}
//
//	desc := h.Describe()
//	res := h.Call(ctx, tool.Request{ToolName: "echo", Arguments: args})
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/toolharness/pkg/tool"
)

// ErrNoTools is returned by [New] when no declaration produced a tool.
var ErrNoTools = errors.New("harness: no tools registered")

// Metadata identifies the application to the orchestrator. It is immutable
// after [New].
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IconRef     string `json:"iconRef"`
}

func (m Metadata) validate() error {
	var errs []error
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, &tool.InvalidMetadataError{Field: "app name", Reason: "must not be empty"})
	}
	if strings.TrimSpace(m.Description) == "" {
		errs = append(errs, &tool.InvalidMetadataError{Field: "app description", Reason: "must not be empty"})
	}
	if strings.TrimSpace(m.IconRef) == "" {
		errs = append(errs, &tool.InvalidMetadataError{Field: "app icon", Reason: "must not be empty"})
	}
	return errors.Join(errs...)
}

// Description is the published catalogue: application metadata plus every
// tool in registration order, without handlers.
type Description struct {
	App   Metadata      `json:"app"`
	Tools []tool.Public `json:"tools"`
}

// Option configures a [Harness].
type Option func(*Harness)

// WithTimeout sets the per-call handler deadline. Zero or negative disables
// it.
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) { h.dispatchOpts = append(h.dispatchOpts, tool.WithTimeout(d)) }
}

// WithMaxConcurrent bounds the number of handlers running at once.
func WithMaxConcurrent(n int) Option {
	return func(h *Harness) { h.dispatchOpts = append(h.dispatchOpts, tool.WithMaxConcurrent(n)) }
}

// WithCallback adds an invocation observer to the dispatcher.
func WithCallback(cb tool.Callback) Option {
	return func(h *Harness) { h.dispatchOpts = append(h.dispatchOpts, tool.WithCallback(cb)) }
}

// WithLogger sets the logger for the harness and its dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.log = l
		}
	}
}

// Harness is a ready-to-call tool host. All methods are safe for concurrent
// use.
type Harness struct {
	meta         Metadata
	registry     *tool.Registry
	dispatcher   *tool.Dispatcher
	dispatchOpts []tool.Option
	log          *slog.Logger

	ready  atomic.Bool
	closed atomic.Bool
}

// New validates meta, registers every declaration and returns a ready
// Harness. It fails with the joined registration errors (see
// [tool.IsStartupFatal]) or [ErrNoTools].
func New(meta Metadata, decls []tool.Declaration, opts ...Option) (*Harness, error) {
	h := &Harness{
		meta:     meta,
		registry: tool.NewRegistry(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}

	if err := meta.validate(); err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	if err := tool.RegisterAll(h.registry, decls...); err != nil {
		return nil, fmt.Errorf("harness: register tools: %w", err)
	}
	if h.registry.Len() == 0 {
		return nil, ErrNoTools
	}

	h.registry.Freeze()
	h.dispatcher = tool.NewDispatcher(h.registry, append(h.dispatchOpts, tool.WithLogger(h.log))...)
	h.ready.Store(true)

	h.log.Info("harness ready", "app", meta.Name, "tools", h.registry.Names())
	return h, nil
}

// Metadata returns the application metadata.
func (h *Harness) Metadata() Metadata {
	return h.meta
}

// Registry returns the frozen tool registry.
func (h *Harness) Registry() *tool.Registry {
	return h.registry
}

// Describe returns the published catalogue. Repeated calls return equal
// values.
func (h *Harness) Describe() Description {
	list := h.registry.List()
	tools := make([]tool.Public, len(list))
	for i, d := range list {
		tools[i] = d.Public()
	}
	return Description{App: h.meta, Tools: tools}
}

// Call dispatches one request. After [Harness.Close] every call fails with a
// HandlerFailure.
func (h *Harness) Call(ctx context.Context, req tool.Request) tool.Result {
	if h.closed.Load() {
		return tool.Failure(tool.ErrHandlerFailure, "harness closed")
	}
	return h.dispatcher.Invoke(ctx, req)
}

// Ready reports whether the harness accepts calls.
func (h *Harness) Ready() bool {
	return h.ready.Load() && !h.closed.Load()
}

// Close takes the harness out of the ready state. In-flight calls finish
// normally. Close is idempotent and always returns nil.
func (h *Harness) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.log.Info("harness closed", "app", h.meta.Name)
	}
	return nil
}
