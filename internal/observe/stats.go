package observe

import (
	"slices"
	"sync"
	"time"
)

// defaultWindow is the number of recent calls kept per tool.
const defaultWindow = 100

// window keeps the last N latencies and outcomes of one tool in a ring
// buffer. Callers hold Stats.mu.
type window struct {
	latencies []time.Duration
	failed    []bool
	pos       int
	total     int
	errors    int
	lastError string
}

func newWindow(size int) *window {
	return &window{
		latencies: make([]time.Duration, size),
		failed:    make([]bool, size),
	}
}

func (w *window) record(d time.Duration, failure string) {
	size := len(w.latencies)
	if w.total >= size && w.failed[w.pos] {
		w.errors--
	}
	w.latencies[w.pos] = d
	w.failed[w.pos] = failure != ""
	if failure != "" {
		w.errors++
		w.lastError = failure
	}
	w.pos = (w.pos + 1) % size
	w.total++
}

func (w *window) len() int {
	return min(w.total, len(w.latencies))
}

func (w *window) sorted() []time.Duration {
	n := w.len()
	cp := make([]time.Duration, n)
	copy(cp, w.latencies[:n])
	slices.Sort(cp)
	return cp
}

// ToolStats summarises the recent calls of one tool.
type ToolStats struct {
	Tool      string  `json:"tool"`
	Calls     int     `json:"calls"`
	Window    int     `json:"window"`
	ErrorRate float64 `json:"errorRate"`
	P50Millis float64 `json:"p50Ms"`
	P99Millis float64 `json:"p99Ms"`
	LastError string  `json:"lastError,omitempty"`
}

// Stats aggregates per-tool call statistics over a rolling window. It is
// safe for concurrent use.
type Stats struct {
	mu    sync.Mutex
	size  int
	tools map[string]*window
}

// NewStats returns a Stats keeping the last size calls per tool. A size of
// zero or less defaults to 100.
func NewStats(size int) *Stats {
	if size <= 0 {
		size = defaultWindow
	}
	return &Stats{size: size, tools: make(map[string]*window)}
}

// Record adds one call. failure is the error kind, or "" for success.
func (s *Stats) Record(tool string, d time.Duration, failure string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.tools[tool]
	if !ok {
		w = newWindow(s.size)
		s.tools[tool] = w
	}
	w.record(d, failure)
}

// Tool returns the statistics of one tool.
func (s *Stats) Tool(name string) (ToolStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.tools[name]
	if !ok {
		return ToolStats{}, false
	}
	return summarise(name, w), true
}

// Snapshot returns the statistics of every tool that has been called,
// sorted by tool name.
func (s *Stats) Snapshot() []ToolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolStats, 0, len(s.tools))
	for name, w := range s.tools {
		out = append(out, summarise(name, w))
	}
	slices.SortFunc(out, func(a, b ToolStats) int {
		switch {
		case a.Tool < b.Tool:
			return -1
		case a.Tool > b.Tool:
			return 1
		}
		return 0
	})
	return out
}

func summarise(name string, w *window) ToolStats {
	st := ToolStats{Tool: name, Calls: w.total, Window: w.len(), LastError: w.lastError}
	sorted := w.sorted()
	if len(sorted) == 0 {
		return st
	}
	st.ErrorRate = float64(w.errors) / float64(len(sorted))
	st.P50Millis = millis(sorted[len(sorted)/2])
	st.P99Millis = millis(sorted[int(float64(len(sorted)-1)*0.99)])
	return st
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
