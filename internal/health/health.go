// Package health serves the liveness and readiness probes of the harness.
//
//   - /healthz reports that the process can serve HTTP. It always returns
//     200 OK.
//   - /readyz returns 200 when every required [Checker] passes. Optional
//     checkers that fail degrade the status without failing the probe.
//
// Bodies are JSON objects with a top-level "status" field ("ok", "degraded"
// or "fail") and a "checks" map with the outcome of each checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// Checker is a named readiness check.
type Checker struct {
	// Name is the key of the check in the JSON body, e.g. "harness".
	Name string

	// Check returns nil when the dependency is usable. It must respect
	// context cancellation.
	Check func(ctx context.Context) error

	// Optional checks report failures without making the process unready.
	// The language model client is optional: tools that do not use it keep
	// working while every upstream is down.
	Optional bool
}

type result struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	started  time.Time
}

// New creates a [Handler] evaluating checkers concurrently on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c, started: time.Now()}
}

// Healthz always returns 200 OK with the process uptime.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{
		Status: statusOK,
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Readyz runs every checker with a [checkTimeout] deadline derived from the
// request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu       sync.Mutex
		checks   = make(map[string]string, len(h.checkers))
		failed   bool
		degraded bool
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			err := c.Check(ctx)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				checks[c.Name] = statusOK
			case c.Optional:
				checks[c.Name] = statusDegraded + ": " + err.Error()
				degraded = true
			default:
				checks[c.Name] = statusFail + ": " + err.Error()
				failed = true
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: statusOK, Checks: checks}
	code := http.StatusOK
	switch {
	case failed:
		res.Status = statusFail
		code = http.StatusServiceUnavailable
	case degraded:
		res.Status = statusDegraded
	}
	writeJSON(w, code, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
