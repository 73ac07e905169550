package tool

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type greetArgs struct {
	Name  string `json:"name"`
	Times int    `json:"times,omitempty"`
	Loud  *bool  `json:"loud"`
	Extra string `json:"-"`
}

func greet(_ context.Context, a greetArgs) (string, error) {
	out := "hello " + a.Name
	for i := 1; i < a.Times; i++ {
		out += " hello " + a.Name
	}
	if a.Loud != nil && *a.Loud {
		out += "!"
	}
	return out, nil
}

func greetSpec() Spec {
	return Spec{
		Name:        "greet",
		Description: "Greets someone.",
		IconRef:     "hand.wave",
		Args: map[string]string{
			"name":  "who to greet",
			"times": "how often",
			"loud":  "add an exclamation mark",
		},
	}
}

func TestRegister_Typed(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := Register(r, greetSpec(), greet); err != nil {
		t.Fatalf("Register: %v", err)
	}

	d, ok := r.Lookup("greet")
	if !ok {
		t.Fatal("greet not registered")
	}
	if got, want := d.Schema.Names(), []string{"name", "times", "loud"}; !slices.Equal(got, want) {
		t.Errorf("schema names = %v, want %v", got, want)
	}

	tests := []struct {
		name     string
		required bool
		kind     ArgKind
	}{
		{"name", true, KindString},
		{"times", false, KindInteger},
		{"loud", false, KindBoolean},
	}
	for _, tt := range tests {
		a, ok := d.Schema.Get(tt.name)
		if !ok {
			t.Errorf("argument %q missing", tt.name)
			continue
		}
		if a.Required != tt.required || a.Kind != tt.kind {
			t.Errorf("argument %q = {required:%v kind:%q}, want {required:%v kind:%q}",
				tt.name, a.Required, a.Kind, tt.required, tt.kind)
		}
	}

	v, err := d.handler(context.Background(), Arguments{"name": "Ada", "times": int64(2), "loud": true})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if v != "hello Ada hello Ada!" {
		t.Errorf("handler value = %v", v)
	}
}

func TestRegister_PointerArgs(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	spec := Spec{
		Name:        "ptr",
		Description: "takes a pointer",
		IconRef:     "x",
		Args:        map[string]string{"n": "a number"},
	}
	err := Register(r, spec, func(_ context.Context, a *struct {
		N float64 `json:"n"`
	}) (float64, error) {
		return a.N * 2, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	d, _ := r.Lookup("ptr")
	v, err := d.handler(context.Background(), Arguments{"n": 1.5})
	if err != nil || v != 3.0 {
		t.Errorf("handler = (%v, %v), want (3, nil)", v, err)
	}
}

func TestRegister_NoArguments(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	spec := Spec{Name: "ping", Description: "pong", IconRef: "x"}
	if err := Register(r, spec, func(context.Context, struct{}) (string, error) { return "pong", nil }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d, _ := r.Lookup("ping")
	if d.Schema.Len() != 0 {
		t.Errorf("schema len = %d, want 0", d.Schema.Len())
	}
}

func TestRegister_NonStructArgs(t *testing.T) {
	t.Parallel()
	spec := Spec{Name: "bad", Description: "d", IconRef: "x"}
	err := Register(NewRegistry(), spec, func(context.Context, string) (string, error) { return "", nil })
	var meta *InvalidMetadataError
	if !errors.As(err, &meta) {
		t.Fatalf("error = %v, want *InvalidMetadataError", err)
	}
}

func TestRegister_InvalidMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Spec)
		field  string
	}{
		{"empty name", func(s *Spec) { s.Name = "" }, "name"},
		{"blank description", func(s *Spec) { s.Description = "  " }, "description"},
		{"empty icon", func(s *Spec) { s.IconRef = "" }, "icon"},
		{"empty arg description", func(s *Spec) { s.Args["times"] = "" }, "argument times description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRegistry()
			spec := greetSpec()
			tt.mutate(&spec)

			err := Register(r, spec, greet)
			var meta *InvalidMetadataError
			if !errors.As(err, &meta) {
				t.Fatalf("error = %v, want *InvalidMetadataError", err)
			}
			if meta.Field != tt.field {
				t.Errorf("Field = %q, want %q", meta.Field, tt.field)
			}
			if r.Len() != 0 {
				t.Errorf("registry has %d tools after failed registration", r.Len())
			}
		})
	}
}

func TestRegister_NilHandler(t *testing.T) {
	t.Parallel()
	var fn func(context.Context, greetArgs) (string, error)
	err := Register(NewRegistry(), greetSpec(), fn)
	var meta *InvalidMetadataError
	if !errors.As(err, &meta) || meta.Field != "handler" {
		t.Fatalf("error = %v, want handler InvalidMetadataError", err)
	}

	err = RegisterFunc(NewRegistry(), Spec{Name: "x", Description: "d", IconRef: "i"}, nil, nil)
	if !errors.As(err, &meta) || meta.Field != "handler" {
		t.Fatalf("RegisterFunc error = %v, want handler InvalidMetadataError", err)
	}
}

func TestRegister_SchemaMismatch(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	spec := greetSpec()
	delete(spec.Args, "times")
	delete(spec.Args, "loud")
	spec.Args["volume"] = "how loud"
	spec.Args["color"] = "which colour"

	err := Register(r, spec, greet)
	var mis *SchemaMismatchError
	if !errors.As(err, &mis) {
		t.Fatalf("error = %v, want *SchemaMismatchError", err)
	}
	if want := []string{"loud", "times"}; !slices.Equal(mis.Undescribed, want) {
		t.Errorf("Undescribed = %v, want %v", mis.Undescribed, want)
	}
	if want := []string{"color", "volume"}; !slices.Equal(mis.Unknown, want) {
		t.Errorf("Unknown = %v, want %v", mis.Unknown, want)
	}
	if !IsStartupFatal(err) {
		t.Error("IsStartupFatal = false, want true")
	}
	if r.Len() != 0 {
		t.Errorf("registry has %d tools after failed registration", r.Len())
	}
}

func TestRegisterFunc(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	spec := Spec{
		Name:        "pad",
		Description: "Pads text.",
		IconRef:     "text.alignleft",
		Args:        map[string]string{"text": "input", "width": "target width"},
	}
	params := []Param{
		{Name: "text", Kind: KindString},
		{Name: "width", Optional: true, Kind: KindInteger, Default: int64(8)},
	}
	err := RegisterFunc(r, spec, params, func(_ context.Context, args Arguments) (any, error) {
		return args["width"], nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	d, _ := r.Lookup("pad")
	w, _ := d.Schema.Get("width")
	if w.Required || w.Default != int64(8) {
		t.Errorf("width descriptor = %+v", w)
	}
	txt, _ := d.Schema.Get("text")
	if !txt.Required {
		t.Error("text should be required by default")
	}
}

func TestRegisterFunc_DuplicateAndBadKind(t *testing.T) {
	t.Parallel()
	spec := Spec{Name: "x", Description: "d", IconRef: "i", Args: map[string]string{"a": "ay"}}
	noop := func(context.Context, Arguments) (any, error) { return nil, nil }

	var meta *InvalidMetadataError
	err := RegisterFunc(NewRegistry(), spec, []Param{{Name: "a"}, {Name: "a"}}, noop)
	if !errors.As(err, &meta) {
		t.Errorf("duplicate param error = %v, want *InvalidMetadataError", err)
	}
	err = RegisterFunc(NewRegistry(), spec, []Param{{Name: "a", Kind: "decimal"}}, noop)
	if !errors.As(err, &meta) {
		t.Errorf("bad kind error = %v, want *InvalidMetadataError", err)
	}
}

func TestRegisterAll(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	badSpec := greetSpec()
	badSpec.Name = "broken"
	badSpec.IconRef = ""

	echoSpec := Spec{Name: "echo", Description: "echo", IconRef: "i", Args: map[string]string{"text": "t"}}
	err := RegisterAll(r,
		Declare(greetSpec(), greet),
		Declare(badSpec, greet),
		nil,
		DeclareFunc(echoSpec, []Param{{Name: "text"}}, func(_ context.Context, a Arguments) (any, error) {
			return a["text"], nil
		}),
		Declare(greetSpec(), greet),
	)
	if err == nil {
		t.Fatal("RegisterAll: want error, got nil")
	}

	var meta *InvalidMetadataError
	var dup *DuplicateToolError
	if !errors.As(err, &meta) {
		t.Errorf("joined error %v does not contain InvalidMetadataError", err)
	}
	if !errors.As(err, &dup) {
		t.Errorf("joined error %v does not contain DuplicateToolError", err)
	}
	if got, want := r.Names(), []string{"greet", "echo"}; !slices.Equal(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
}

type sizedArgs struct {
	Count uint8 `json:"count"`
	Inner struct {
		X int `json:"x"`
	} `json:"inner,omitempty"`
	N int64 `json:"n,omitempty"`
}

func TestRegister_ArgumentsOutsideFieldType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    map[string]any
		details []string
	}{
		{"negative unsigned", map[string]any{"count": -1}, []string{"invalid type: count (want uint8)"}},
		{"unsigned overflow", map[string]any{"count": 300}, []string{"invalid type: count (want uint8)"}},
		{"nested wrong type", map[string]any{"count": 1, "inner": map[string]any{"x": "a"}}, []string{"invalid type: inner.x (want int)"}},
		{"int64 overflow", map[string]any{"count": 1, "n": "1e30"}, []string{"invalid type: n (want integer)"}},
		{"fits", map[string]any{"count": 255, "n": "42"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls int
			var got sizedArgs
			r := NewRegistry()
			spec := Spec{
				Name:        "sized",
				Description: "takes sized integers",
				IconRef:     "number",
				Args:        map[string]string{"count": "a byte", "inner": "nested", "n": "a wide number"},
			}
			err := Register(r, spec, func(_ context.Context, a sizedArgs) (int, error) {
				calls++
				got = a
				return int(a.Count), nil
			})
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			r.Freeze()
			d := NewDispatcher(r, WithLogger(discardLogger))

			res := d.Invoke(context.Background(), Request{ToolName: "sized", Arguments: tt.args})
			if tt.details == nil {
				if !res.OK {
					t.Fatalf("result = %+v, want success", res.Error)
				}
				if got.Count != 255 || got.N != 42 {
					t.Errorf("handler saw %+v", got)
				}
				return
			}
			if res.OK || res.Error.Kind != ErrInvalidArguments {
				t.Fatalf("result = %+v, want InvalidArguments", res)
			}
			if !slices.Equal(res.Error.Details, tt.details) {
				t.Errorf("Details = %q, want %q", res.Error.Details, tt.details)
			}
			if calls != 0 {
				t.Error("handler was called with arguments that do not fit its fields")
			}
		})
	}
}
