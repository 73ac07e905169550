package resilience

import (
	"errors"
	"fmt"
)

// ErrAllFailed is returned when every upstream of a [Failover] failed or was
// rejected by its breaker.
var ErrAllFailed = errors.New("resilience: all upstreams failed")

type upstream[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Failover holds a primary upstream and optional fallbacks of the same type.
// Each has its own [CircuitBreaker] built from a shared template config.
//
// Upstreams must be added before the first call; Do is safe for concurrent
// use afterwards.
type Failover[T any] struct {
	upstreams []upstream[T]
	template  BreakerConfig
}

// NewFailover returns a Failover with primary as its first upstream.
func NewFailover[T any](name string, primary T, template BreakerConfig) *Failover[T] {
	f := &Failover[T]{template: template}
	f.Add(name, primary)
	return f
}

// Add appends a fallback upstream. Upstreams are tried in the order added.
func (f *Failover[T]) Add(name string, value T) {
	cfg := f.template
	cfg.Name = name
	f.upstreams = append(f.upstreams, upstream[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cfg),
	})
}

// Len returns the number of upstreams.
func (f *Failover[T]) Len() int {
	return len(f.upstreams)
}

// States reports each upstream's breaker state keyed by upstream name.
func (f *Failover[T]) States() map[string]State {
	out := make(map[string]State, len(f.upstreams))
	for _, u := range f.upstreams {
		out[u.name] = u.breaker.State()
	}
	return out
}

// Available reports whether at least one upstream's breaker would admit a
// call.
func (f *Failover[T]) Available() bool {
	for _, u := range f.upstreams {
		if u.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Do calls fn on each upstream in order until one succeeds and returns its
// result together with the name of the upstream that served it. An error the
// breaker does not count as an upstream failure (such as caller
// cancellation) stops the chain immediately.
//
// Do is a function rather than a method because methods cannot declare
// their own type parameters.
func Do[T, R any](f *Failover[T], fn func(T) (R, error)) (R, string, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range f.upstreams {
		u := &f.upstreams[i]
		var out R
		err := u.breaker.Execute(func() error {
			var inner error
			out, inner = fn(u.value)
			return inner
		})
		if err == nil {
			return out, u.name, nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) {
			u.breaker.log.Debug("skipping upstream, circuit open", "upstream", u.name)
			continue
		}
		if !u.breaker.isFailure(err) {
			return zero, u.name, err
		}
		u.breaker.log.Warn("upstream failed, trying next", "upstream", u.name, "err", err)
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
