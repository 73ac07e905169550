// Package tool implements the registration and dispatch core for tools that an
// external orchestrator can discover and invoke.
//
// A tool is a named Go callable paired with human-readable metadata and an
// ordered argument schema. Application authors declare tools with [Register]
// (typed, reflection-based) or [RegisterFunc] (untyped, explicit parameters).
// Both validate the declaration before it reaches the [Registry], so a broken
// declaration fails at startup instead of at call time.
//
// Calls flow through a [Dispatcher]:
//
//  1. Resolve the tool by name ([Registry.Lookup]).
//  2. Check the arguments against the schema ([Validate]).
//  3. Invoke the handler with the validated arguments.
//  4. Normalise the outcome into a [Result].
//
// Every per-call failure is returned as data ([InvocationError]); a misbehaving
// handler never propagates a panic or error past the dispatcher.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ArgKind is an optional type constraint on a single argument. The zero value
// [KindAny] accepts any value and keeps the weaker "named, described,
// present-or-not" contract.
type ArgKind string

const (
	KindAny     ArgKind = ""
	KindString  ArgKind = "string"
	KindNumber  ArgKind = "number"
	KindInteger ArgKind = "integer"
	KindBoolean ArgKind = "boolean"
	KindObject  ArgKind = "object"
	KindArray   ArgKind = "array"
)

// IsValid reports whether k is a recognised kind.
func (k ArgKind) IsValid() bool {
	switch k {
	case KindAny, KindString, KindNumber, KindInteger, KindBoolean, KindObject, KindArray:
		return true
	}
	return false
}

// ArgumentDescriptor describes one named argument a tool accepts.
type ArgumentDescriptor struct {
	// Name matches a parameter the handler expects.
	Name string `json:"name"`

	// Description explains the expected content and format to the caller. It
	// is the only machine-readable hint an untyped caller gets, so it must
	// not be empty.
	Description string `json:"description"`

	// Required marks the argument as mandatory. Arguments built through
	// [Register] or [Arg] default to required.
	Required bool `json:"required"`

	// Kind is an optional type constraint enforced by [Validate].
	Kind ArgKind `json:"kind,omitempty"`

	// Default is filled in by [Validate] when an optional argument is absent.
	// Nil means no default.
	Default any `json:"default,omitempty"`
}

// Arg returns a required, untyped argument descriptor.
func Arg(name, description string) ArgumentDescriptor {
	return ArgumentDescriptor{Name: name, Description: description, Required: true}
}

// Schema is the ordered mapping from argument name to descriptor. Iteration
// and JSON encoding follow declaration order.
//
// A Schema is built once during registration and treated as read-only
// afterwards; it is safe for concurrent reads.
type Schema struct {
	args *orderedmap.OrderedMap[string, ArgumentDescriptor]
}

// NewSchema builds a Schema from args in the given order. Duplicate names
// are rejected.
func NewSchema(args ...ArgumentDescriptor) (*Schema, error) {
	s := &Schema{args: orderedmap.New[string, ArgumentDescriptor]()}
	for _, a := range args {
		if _, present := s.args.Get(a.Name); present {
			return nil, fmt.Errorf("tool: duplicate argument %q in schema", a.Name)
		}
		s.args.Set(a.Name, a)
	}
	return s, nil
}

// Get returns the descriptor for name.
func (s *Schema) Get(name string) (ArgumentDescriptor, bool) {
	if s == nil || s.args == nil {
		return ArgumentDescriptor{}, false
	}
	return s.args.Get(name)
}

// Len returns the number of declared arguments.
func (s *Schema) Len() int {
	if s == nil || s.args == nil {
		return 0
	}
	return s.args.Len()
}

// Args returns the descriptors in declaration order. The returned slice is a
// copy.
func (s *Schema) Args() []ArgumentDescriptor {
	if s == nil || s.args == nil {
		return nil
	}
	out := make([]ArgumentDescriptor, 0, s.args.Len())
	for pair := s.args.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Names returns the argument names in declaration order.
func (s *Schema) Names() []string {
	args := s.Args()
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = a.Name
	}
	return names
}

// MarshalJSON encodes the schema as an ordered array of descriptors.
func (s *Schema) MarshalJSON() ([]byte, error) {
	args := s.Args()
	if args == nil {
		args = []ArgumentDescriptor{}
	}
	return json.Marshal(args)
}

// Arguments is the validated, name-bound argument map handed to a handler.
type Arguments map[string]any

// String returns the named argument as a string. Non-string values are
// formatted with fmt; absent arguments yield "".
func (a Arguments) String(name string) string {
	v, ok := a[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Handler is the normalised callable stored in a [Descriptor]. Both
// registration paths adapt the author's function to this shape.
type Handler func(ctx context.Context, args Arguments) (any, error)

// Descriptor is the registered metadata, schema and handler for one tool.
type Descriptor struct {
	// Name is the unique, stable identifier of the tool.
	Name string

	// Description tells the orchestrator what the tool does.
	Description string

	// IconRef is an opaque reference to a presentation asset.
	IconRef string

	// Schema is the ordered argument schema.
	Schema *Schema

	handler Handler

	// check reports arguments that pass the schema but do not fit the
	// handler's Go types. Nil for untyped handlers.
	check func(Arguments) []Violation
}

// Public is the redacted form of a [Descriptor] published to orchestrators.
// It carries everything except the handler.
type Public struct {
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	IconRef        string               `json:"iconRef"`
	ArgumentSchema []ArgumentDescriptor `json:"argumentSchema"`
}

// Public returns the redacted view of d.
func (d *Descriptor) Public() Public {
	args := d.Schema.Args()
	if args == nil {
		args = []ArgumentDescriptor{}
	}
	return Public{
		Name:           d.Name,
		Description:    d.Description,
		IconRef:        d.IconRef,
		ArgumentSchema: args,
	}
}
