package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/semaphore"
)

// Request is one invocation request from the orchestrator.
type Request struct {
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
}

// Callback observes invocations. OnToolStart may return a derived context
// (for example one carrying a trace span); it is passed to the handler and to
// OnToolEnd. Implementations must be safe for concurrent use.
type Callback interface {
	OnToolStart(ctx context.Context, name string, args map[string]any) context.Context
	OnToolEnd(ctx context.Context, name string, res Result, elapsed time.Duration)
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithTimeout bounds each handler execution. Zero or negative disables the
// per-call deadline; the caller's context still applies.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.timeout = d
	}
}

// WithMaxConcurrent limits the number of handlers running at once. Calls
// beyond the limit wait for a slot until their context ends. A handler that
// outlives its deadline keeps its slot until it returns. Zero or negative
// means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(disp *Dispatcher) {
		if n > 0 {
			disp.sem = semaphore.NewWeighted(int64(n))
		} else {
			disp.sem = nil
		}
	}
}

// WithCallback adds an invocation observer. Callbacks run in the order they
// were added.
func WithCallback(cb Callback) Option {
	return func(disp *Dispatcher) {
		if cb != nil {
			disp.callbacks = append(disp.callbacks, cb)
		}
	}
}

// WithLogger sets the logger used for handler panics and timeouts. Defaults
// to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.log = l
		}
	}
}

// Dispatcher resolves, validates and invokes tools from a [Registry].
//
// Invoke is safe for concurrent use. Apart from the optional concurrency
// limit the dispatcher keeps no state between calls.
type Dispatcher struct {
	reg       *Registry
	timeout   time.Duration
	sem       *semaphore.Weighted
	callbacks []Callback
	log       *slog.Logger
}

// NewDispatcher returns a Dispatcher backed by reg.
func NewDispatcher(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg: reg,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Invoke runs one request and always returns a [Result]. Per-call failures
// (unknown tool, invalid arguments, handler error, panic or timeout) are
// reported in Result.Error and never as a Go error or panic.
func (d *Dispatcher) Invoke(ctx context.Context, req Request) Result {
	start := time.Now()
	for _, cb := range d.callbacks {
		ctx = cb.OnToolStart(ctx, req.ToolName, req.Arguments)
	}

	res := d.invoke(ctx, req)

	elapsed := time.Since(start)
	for _, cb := range d.callbacks {
		cb.OnToolEnd(ctx, req.ToolName, res, elapsed)
	}
	return res
}

func (d *Dispatcher) invoke(ctx context.Context, req Request) Result {
	desc, ok := d.reg.Lookup(req.ToolName)
	if !ok {
		return Failure(ErrUnknownTool, fmt.Sprintf("unknown tool %q", req.ToolName))
	}

	vr := Validate(desc.Schema, req.Arguments)
	if !vr.OK() {
		return Failure(ErrInvalidArguments,
			fmt.Sprintf("invalid arguments for tool %q", desc.Name), vr.Details()...)
	}
	if desc.check != nil {
		if vs := desc.check(vr.Args); len(vs) > 0 {
			return Failure(ErrInvalidArguments,
				fmt.Sprintf("invalid arguments for tool %q", desc.Name),
				ValidationResult{Violations: vs}.Details()...)
		}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	release := func() {}
	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return d.contextFailure(ctx, desc.Name, "waiting for a free slot")
		}
		release = func() { d.sem.Release(1) }
	}

	value, err := d.run(ctx, desc, vr.Args, release)
	if err == nil {
		return Success(value)
	}

	var pe *panicError
	switch {
	case errors.As(err, &pe):
		d.log.Error("tool handler panicked",
			"tool", desc.Name,
			"panic", fmt.Sprint(pe.value),
			"stack", string(pe.stack),
		)
		return Failure(ErrHandlerFailure, fmt.Sprintf("tool %q panicked: %v", desc.Name, pe.value))
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return d.contextFailure(ctx, desc.Name, "running")
	default:
		return Failure(ErrHandlerFailure, err.Error())
	}
}

// run calls the handler and then release. When the context can end, the
// handler runs in its own goroutine so a stuck handler cannot hold the caller
// past the deadline. The abandoned goroutine finishes on its own with a
// cancelled context and keeps its concurrency slot until it does.
func (d *Dispatcher) run(ctx context.Context, desc *Descriptor, args Arguments, release func()) (any, error) {
	if ctx.Done() == nil {
		defer release()
		return call(ctx, desc.handler, args)
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := call(ctx, desc.handler, args)
		release()
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) contextFailure(ctx context.Context, name, phase string) Result {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		d.log.Warn("tool call timed out", "tool", name, "phase", phase)
		return Failure(ErrHandlerTimeout, fmt.Sprintf("tool %q timed out while %s", name, phase))
	}
	return Failure(ErrHandlerFailure, fmt.Sprintf("tool %q cancelled while %s", name, phase))
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// call invokes h and converts a panic into a *panicError.
func call(ctx context.Context, h Handler, args Arguments) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return h(ctx, args)
}
