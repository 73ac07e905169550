package tool

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry holds tool descriptors keyed by name, in registration order.
//
// Registration happens during startup; [Registry.Freeze] then closes the
// registry for writes. Lookups and listings are safe for concurrent use.
//
// The zero value is NOT usable; create instances with [NewRegistry].
type Registry struct {
	mu     sync.RWMutex
	tools  *orderedmap.OrderedMap[string, *Descriptor]
	frozen bool
}

// NewRegistry returns an empty, writable Registry.
func NewRegistry() *Registry {
	return &Registry{tools: orderedmap.New[string, *Descriptor]()}
}

// Register inserts d. It fails with [*DuplicateToolError] when the name is
// already taken (the first registration is kept) and with
// [ErrRegistryFrozen] after [Registry.Freeze].
//
// Register does not re-check metadata; use [Register] or [RegisterFunc] to
// build descriptors that satisfy the registration invariants.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return &InvalidMetadataError{Field: "descriptor", Reason: "must not be nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.tools.Get(d.Name); exists {
		return &DuplicateToolError{Name: d.Name}
	}
	r.tools.Set(d.Name, d)
	return nil
}

// Lookup returns the descriptor registered under name. The boolean is false
// for unknown names; Lookup never fails otherwise.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools.Get(name)
}

// List returns all descriptors in registration order. The slice is a fresh
// copy; the descriptors themselves are shared and must not be mutated.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, d := range list {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools.Len()
}

// Freeze closes the registry for further registrations. Calling Freeze more
// than once is harmless.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether [Registry.Freeze] has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
