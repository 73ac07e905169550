package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Spec is the metadata an author attaches to a callable.
type Spec struct {
	// Name is the unique tool identifier.
	Name string

	// Description tells the orchestrator what the tool does. Required.
	Description string

	// IconRef is an opaque presentation asset reference. Required.
	IconRef string

	// Args maps every handler parameter name to a human-readable description
	// of its expected content. Keys must match the handler's parameters
	// exactly.
	Args map[string]string
}

// Param declares one parameter of an untyped handler registered with
// [RegisterFunc].
type Param struct {
	Name string

	// Optional marks the parameter as not required. Parameters are required
	// by default.
	Optional bool

	Kind    ArgKind
	Default any
}

// Declaration is one deferred tool registration. Harnesses run declarations
// during startup; see [RegisterAll].
type Declaration func(*Registry) error

// Declare returns a [Declaration] that calls [Register].
func Declare[A, R any](spec Spec, fn func(context.Context, A) (R, error)) Declaration {
	return func(r *Registry) error {
		return Register(r, spec, fn)
	}
}

// DeclareFunc returns a [Declaration] that calls [RegisterFunc].
func DeclareFunc(spec Spec, params []Param, fn Handler) Declaration {
	return func(r *Registry) error {
		return RegisterFunc(r, spec, params, fn)
	}
}

// RegisterAll runs every declaration against reg. Each declaration is
// all-or-nothing; a failing one leaves earlier registrations intact. All
// failures are reported together.
func RegisterAll(reg *Registry, decls ...Declaration) error {
	var errs []error
	for _, decl := range decls {
		if decl == nil {
			continue
		}
		if err := decl(reg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Register declares a typed tool. The parameter names of fn are the JSON
// names of the exported fields of A, which must be a struct or a pointer to
// one:
//
//	type greetArgs struct {
//	    Name  string `json:"name"`
//	    Shout bool   `json:"shout,omitempty"` // optional
//	}
//
// Fields tagged omitempty and pointer fields are optional. The Go field type
// supplies the argument [ArgKind]. Validated arguments are bound to a fresh A
// on every call.
func Register[A, R any](reg *Registry, spec Spec, fn func(context.Context, A) (R, error)) error {
	if fn == nil {
		return &InvalidMetadataError{Tool: spec.Name, Field: "handler", Reason: "must not be nil"}
	}

	params, err := paramsOf(reflect.TypeFor[A]())
	if err != nil {
		return &InvalidMetadataError{Tool: spec.Name, Field: "handler", Reason: err.Error()}
	}

	handler := func(ctx context.Context, args Arguments) (any, error) {
		in, err := bind[A](args)
		if err != nil {
			return nil, fmt.Errorf("tool: bind arguments for %q: %w", spec.Name, err)
		}
		return fn(ctx, in)
	}

	d, err := buildDescriptor(spec, params, handler)
	if err != nil {
		return err
	}
	d.check = func(args Arguments) []Violation {
		_, err := bind[A](args)
		return bindViolations[A](err)
	}
	return reg.Register(d)
}

// RegisterFunc declares an untyped tool whose parameters are listed
// explicitly.
func RegisterFunc(reg *Registry, spec Spec, params []Param, fn Handler) error {
	if fn == nil {
		return &InvalidMetadataError{Tool: spec.Name, Field: "handler", Reason: "must not be nil"}
	}
	d, err := buildDescriptor(spec, params, fn)
	if err != nil {
		return err
	}
	return reg.Register(d)
}

// buildDescriptor checks the registration invariants and assembles the
// descriptor. Nothing is inserted on failure.
func buildDescriptor(spec Spec, params []Param, h Handler) (*Descriptor, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, &InvalidMetadataError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(spec.Description) == "" {
		return nil, &InvalidMetadataError{Tool: spec.Name, Field: "description", Reason: "must not be empty"}
	}
	if strings.TrimSpace(spec.IconRef) == "" {
		return nil, &InvalidMetadataError{Tool: spec.Name, Field: "icon", Reason: "must not be empty"}
	}

	seen := make(map[string]bool, len(params))
	var undescribed []string
	for _, p := range params {
		if p.Name == "" {
			return nil, &InvalidMetadataError{Tool: spec.Name, Field: "parameter name", Reason: "must not be empty"}
		}
		if seen[p.Name] {
			return nil, &InvalidMetadataError{Tool: spec.Name, Field: "parameter " + p.Name, Reason: "is declared twice"}
		}
		seen[p.Name] = true
		if !p.Kind.IsValid() {
			return nil, &InvalidMetadataError{Tool: spec.Name, Field: "parameter " + p.Name, Reason: fmt.Sprintf("has unknown kind %q", p.Kind)}
		}
		if _, ok := spec.Args[p.Name]; !ok {
			undescribed = append(undescribed, p.Name)
		}
	}
	var unknown []string
	for name := range spec.Args {
		if !seen[name] {
			unknown = append(unknown, name)
		}
	}
	if len(undescribed) > 0 || len(unknown) > 0 {
		slices.Sort(undescribed)
		slices.Sort(unknown)
		return nil, &SchemaMismatchError{Tool: spec.Name, Undescribed: undescribed, Unknown: unknown}
	}

	descs := make([]ArgumentDescriptor, 0, len(params))
	for _, p := range params {
		text := strings.TrimSpace(spec.Args[p.Name])
		if text == "" {
			return nil, &InvalidMetadataError{Tool: spec.Name, Field: "argument " + p.Name + " description", Reason: "must not be empty"}
		}
		descs = append(descs, ArgumentDescriptor{
			Name:        p.Name,
			Description: text,
			Required:    !p.Optional,
			Kind:        p.Kind,
			Default:     p.Default,
		})
	}
	schema, err := NewSchema(descs...)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Name:        spec.Name,
		Description: spec.Description,
		IconRef:     spec.IconRef,
		Schema:      schema,
		handler:     h,
	}, nil
}

// paramsOf derives handler parameters from the exported fields of t.
func paramsOf(t reflect.Type) ([]Param, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("argument type %s must be a struct", t)
	}

	var params []Param
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")

		// Untagged embedded structs are flattened, matching encoding/json.
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				nested, err := paramsOf(ft)
				if err != nil {
					return nil, err
				}
				params = append(params, nested...)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		params = append(params, Param{
			Name:     name,
			Optional: strings.Contains(","+opts+",", ",omitempty,") || f.Type.Kind() == reflect.Pointer,
			Kind:     kindOf(f.Type),
		})
	}
	return params, nil
}

// kindOf maps a Go type onto an argument kind.
func kindOf(t reflect.Type) ArgKind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInteger
	case reflect.Float32, reflect.Float64:
		return KindNumber
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			// []byte travels as a base64 string.
			return KindString
		}
		return KindArray
	case reflect.Array:
		return KindArray
	case reflect.Map, reflect.Struct:
		return KindObject
	}
	return KindAny
}

// bindViolations translates a bind error into argument violations. A value
// that passes the schema kind but not the Go field type, such as 300 for a
// uint8, is reported against the JSON path of the field.
func bindViolations[A any](err error) []Violation {
	if err == nil {
		return nil
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		return []Violation{{Kind: ViolationType, Argument: te.Field, Want: ArgKind(te.Type.String())}}
	}
	return []Violation{{Kind: ViolationType, Argument: "arguments", Want: ArgKind(reflect.TypeFor[A]().String())}}
}

// bind decodes validated arguments into a value of type A through a JSON
// round-trip, so field tags and nested types follow encoding/json rules.
func bind[A any](args Arguments) (A, error) {
	var out A
	data, err := json.Marshal(args)
	if err != nil {
		return out, err
	}

	t := reflect.TypeFor[A]()
	if t.Kind() == reflect.Pointer {
		ptr := reflect.New(t.Elem())
		if err := json.Unmarshal(data, ptr.Interface()); err != nil {
			return out, err
		}
		return ptr.Interface().(A), nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
