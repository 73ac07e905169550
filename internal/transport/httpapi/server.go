// Package httpapi exposes a harness over HTTP.
//
// Routes:
//
//	GET  /v1/describe     application metadata and the published tool catalogue
//	GET  /v1/tools/{name} one published descriptor
//	POST /v1/call         invoke a tool; the body is {"toolName", "arguments"}
//	GET  /v1/stats        rolling per-tool call statistics
//	GET  /v1/ws           WebSocket session carrying describe and call frames
//
// Invocation failures are data: every well-formed call answers 200 with the
// result envelope. Only bodies that cannot be decoded answer 400.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrWong99/toolharness/internal/observe"
	"github.com/MrWong99/toolharness/pkg/harness"
	"github.com/MrWong99/toolharness/pkg/tool"
)

// ErrBadRequest is the error kind of requests that never reached the
// dispatcher.
const ErrBadRequest tool.ErrorKind = "BadRequest"

// defaultMaxBody caps request bodies and WebSocket frames.
const defaultMaxBody int64 = 1 << 20

// Harness is the part of [harness.Harness] the HTTP boundary needs.
type Harness interface {
	Describe() harness.Description
	Call(ctx context.Context, req tool.Request) tool.Result
}

// StreamObserver is notified when WebSocket sessions open and close.
type StreamObserver interface {
	StreamOpened(ctx context.Context)
	StreamClosed(ctx context.Context)
}

// Option configures a [Server].
type Option func(*Server)

// WithStats serves stats at /v1/stats. Without it the route answers with an
// empty list.
func WithStats(s *observe.Stats) Option {
	return func(srv *Server) { srv.stats = s }
}

// WithStreamObserver reports WebSocket session counts to o.
func WithStreamObserver(o StreamObserver) Option {
	return func(srv *Server) { srv.streams = o }
}

// WithMaxBodyBytes caps request bodies and WebSocket frames. Default 1 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.maxBody = n
		}
	}
}

// WithStreamConcurrency caps overlapping calls on one WebSocket session.
// Default 16.
func WithStreamConcurrency(n int) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.streamConcurrency = n
		}
	}
}

// WithLogger sets the logger. Default [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.log = l
		}
	}
}

// Server serves the JSON API of one harness.
type Server struct {
	h                 Harness
	stats             *observe.Stats
	streams           StreamObserver
	maxBody           int64
	streamConcurrency int
	log               *slog.Logger
}

// New creates a Server for h.
func New(h Harness, opts ...Option) *Server {
	s := &Server{
		h:                 h,
		maxBody:           defaultMaxBody,
		streamConcurrency: 16,
		log:               slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the /v1 routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/describe", s.handleDescribe)
	mux.HandleFunc("GET /v1/tools/{name}", s.handleTool)
	mux.HandleFunc("POST /v1/call", s.handleCall)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/ws", s.handleStream)
}

func (s *Server) handleDescribe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.h.Describe())
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, p := range s.h.Describe().Tools {
		if p.Name == name {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, tool.Failure(tool.ErrUnknownTool, fmt.Sprintf("unknown tool %q", name)))
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req tool.Request
	if err := decodeBody(w, r, s.maxBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, tool.Failure(ErrBadRequest, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, s.h.Call(r.Context(), req))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := []observe.ToolStats{}
	if s.stats != nil {
		snap = s.stats.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": snap})
}

// decodeBody decodes exactly one JSON object from the request body.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data after JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
