// Package app wires the tool harness subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the harness and every
// enabled boundary, Run serves them until the context is cancelled, and
// Shutdown releases everything in order.
//
// For testing, inject doubles via functional options (WithMetrics,
// WithCompleter, WithDeclarations). Tests usually serve [App.Handler] from
// an httptest server instead of calling Run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/toolharness/internal/config"
	"github.com/MrWong99/toolharness/internal/health"
	"github.com/MrWong99/toolharness/internal/observe"
	"github.com/MrWong99/toolharness/internal/tools"
	"github.com/MrWong99/toolharness/internal/transport/httpapi"
	"github.com/MrWong99/toolharness/internal/transport/mcpserver"
	"github.com/MrWong99/toolharness/pkg/client"
	"github.com/MrWong99/toolharness/pkg/harness"
	"github.com/MrWong99/toolharness/pkg/tool"
)

// defaultDrainTimeout bounds how long Run waits for in-flight HTTP requests
// once its context is cancelled.
const defaultDrainTimeout = 15 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	version string

	metrics    *observe.Metrics
	observer   *observe.ToolObserver
	client     *client.Client
	toolSet    *tools.Set
	harness    *harness.Harness
	mcp        *mcpserver.Server
	handler    http.Handler
	server     *http.Server
	listener   net.Listener
	drain      time.Duration
	extra      []tool.Declaration
	completers []namedCompleter

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

type namedCompleter struct {
	name string
	comp client.Completer
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger. Default [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithVersion sets the version announced over MCP. Default "dev".
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithMetrics injects the metric instruments instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCompleter adds a pre-built language model upstream to the client,
// after the configured endpoints. With no client.provider configured it
// becomes the primary.
func WithCompleter(name string, c client.Completer) Option {
	return func(a *App) { a.completers = append(a.completers, namedCompleter{name, c}) }
}

// WithDeclarations registers additional tools after the built-in sets.
func WithDeclarations(decls ...tool.Declaration) Option {
	return func(a *App) { a.extra = append(a.extra, decls...) }
}

// WithListener makes Run serve on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithDrainTimeout bounds how long Run waits for in-flight HTTP requests
// after its context ends. Default 15s.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.drain = d
		}
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds the application from cfg. Every tool is registered and the
// registry frozen before New returns, so no boundary can accept a call
// against a partial registry. Registration failures are returned wrapped;
// match them with [tool.IsStartupFatal] and [harness.ErrNoTools].
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		log:     slog.Default(),
		version: "dev",
		drain:   defaultDrainTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.observer = observe.NewToolObserver(a.metrics, observe.NewStats(0), a.log)

	// ── 1. Language model client ────────────────────────────────────────
	if err := a.initClient(); err != nil {
		return nil, fmt.Errorf("app: init client: %w", err)
	}

	// ── 2. Built-in tool sets ───────────────────────────────────────────
	if err := a.initTools(); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	// ── 3. Harness ──────────────────────────────────────────────────────
	if err := a.initHarness(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 4. Boundaries ───────────────────────────────────────────────────
	if err := a.initTransports(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init transports: %w", err)
	}

	a.log.Info("application initialised",
		"app", cfg.App.Name,
		"tools", a.harness.Registry().Len(),
		"http", cfg.Transports.HTTPEnabled(),
		"mcp", string(cfg.Transports.MCP),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initClient builds the failover client when a provider or an injected
// completer is available.
func (a *App) initClient() error {
	cc := a.cfg.Client
	if !cc.Enabled() && len(a.completers) == 0 {
		return nil
	}

	opts := []client.Option{
		client.WithRecorder(a.observer),
		client.WithLogger(a.log),
	}
	for _, fb := range cc.Fallbacks {
		opts = append(opts, client.WithFallback(endpoint(fb)))
	}
	for _, nc := range a.completers {
		opts = append(opts, client.WithCompleter(nc.name, nc.comp))
	}

	var primary client.Endpoint
	if cc.Enabled() {
		primary = endpoint(cc.Endpoint)
	}
	c, err := client.New(primary, opts...)
	if err != nil {
		return err
	}
	a.client = c
	a.log.Info("language model client ready", "upstreams", len(c.States()))
	return nil
}

func (a *App) initTools() error {
	opts := tools.Options{
		Enabled:    a.cfg.Tools.Enabled,
		SandboxDir: a.cfg.Tools.SandboxDir,
		Python:     a.cfg.Tools.Python,
		Logger:     a.log,
	}
	// A typed nil would register assist with no client behind it.
	if a.client != nil {
		opts.Client = a.client
	}
	set, err := tools.Build(opts)
	if err != nil {
		return err
	}
	a.toolSet = set
	a.closers = append(a.closers, set.Close)
	return nil
}

func (a *App) initHarness() error {
	meta := harness.Metadata{
		Name:        a.cfg.App.Name,
		Description: a.cfg.App.Description,
		IconRef:     a.cfg.App.Icon,
	}
	decls := append(append([]tool.Declaration(nil), a.toolSet.Decls...), a.extra...)

	h, err := harness.New(meta, decls,
		harness.WithTimeout(a.cfg.Dispatch.Timeout),
		harness.WithMaxConcurrent(a.cfg.Dispatch.MaxConcurrent),
		harness.WithCallback(a.observer),
		harness.WithLogger(a.log),
	)
	if err != nil {
		return err
	}
	a.harness = h
	return nil
}

// initTransports assembles the HTTP handler tree and the MCP server.
func (a *App) initTransports() error {
	tc := a.cfg.Transports

	if tc.MCP != config.MCPOff {
		srv, err := mcpserver.New(a.harness, a.version, a.log)
		if err != nil {
			return err
		}
		a.mcp = srv
	}

	mux := http.NewServeMux()

	checks := []health.Checker{{
		Name: "harness",
		Check: func(context.Context) error {
			if !a.harness.Ready() {
				return errors.New("harness is not accepting calls")
			}
			return nil
		},
	}}
	if a.client != nil {
		checks = append(checks, health.Checker{Name: "client", Check: a.client.Healthy, Optional: true})
	}
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	if tc.HTTPEnabled() {
		httpapi.New(a.harness,
			httpapi.WithStats(a.observer.Stats()),
			httpapi.WithStreamObserver(a.observer),
			httpapi.WithLogger(a.log),
		).Register(mux)
	}
	if tc.MCP == config.MCPStreamableHTTP {
		a.mcp.Register(mux)
	}

	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Harness returns the ready harness.
func (a *App) Harness() *harness.Harness {
	return a.harness
}

// Handler returns the instrumented HTTP handler served by Run.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Stats returns the rolling per-tool statistics served at /v1/stats.
func (a *App) Stats() *observe.Stats {
	return a.observer.Stats()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves every enabled boundary until ctx is cancelled or one of them
// fails. When the stdio MCP session ends (the client closed stdin) Run
// stops the other boundaries too. On return the HTTP listener is closed and
// in-flight requests have drained or hit the drain timeout.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Transports.NeedsListener() {
		ln, err := a.listen()
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
		a.log.Info("http listener started", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

		g.Go(func() error {
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			} else {
				err = a.server.Serve(ln)
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			drainCtx, drainCancel := context.WithTimeout(context.Background(), a.drain)
			defer drainCancel()
			if err := a.server.Shutdown(drainCtx); err != nil {
				a.log.Warn("http drain incomplete", "err", err)
			}
			return nil
		})
	}

	if a.cfg.Transports.MCP == config.MCPStdio {
		g.Go(func() error {
			defer cancel()
			return a.mcp.ServeStdio(gctx)
		})
	}

	return g.Wait()
}

func (a *App) listen() (net.Listener, error) {
	if a.listener != nil {
		return a.listener, nil
	}
	return net.Listen("tcp", a.cfg.Server.ListenAddr)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown takes the harness out of the ready state and releases every
// subsystem in init order. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if a.harness != nil {
			_ = a.harness.Close()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			a.log.Warn("closer error", "err", err)
		}
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// endpoint converts a config endpoint to a client endpoint.
func endpoint(ep config.Endpoint) client.Endpoint {
	return client.Endpoint{
		Provider: ep.Provider,
		Model:    ep.Model,
		APIKey:   ep.APIKey,
		BaseURL:  ep.BaseURL,
	}
}
