package tool

import (
	"encoding/json"
	"math"
	"slices"
	"testing"
)

func mustSchema(t *testing.T, args ...ArgumentDescriptor) *Schema {
	t.Helper()
	s, err := NewSchema(args...)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ab := []ArgumentDescriptor{
		Arg("a", "first"),
		{Name: "b", Description: "second"},
	}

	tests := []struct {
		name      string
		args      []ArgumentDescriptor
		candidate map[string]any
		want      []string
	}{
		{
			name:      "all present",
			args:      ab,
			candidate: map[string]any{"a": 1, "b": 2},
		},
		{
			name:      "optional absent",
			args:      ab,
			candidate: map[string]any{"a": "x"},
		},
		{
			name:      "missing required",
			args:      ab,
			candidate: map[string]any{"b": 2},
			want:      []string{"missing: a"},
		},
		{
			name:      "unknown key",
			args:      ab,
			candidate: map[string]any{"a": 1, "c": 2},
			want:      []string{"unknown: c"},
		},
		{
			name:      "nil candidate",
			args:      ab,
			candidate: nil,
			want:      []string{"missing: a"},
		},
		{
			name:      "empty schema accepts empty map",
			candidate: map[string]any{},
		},
		{
			name:      "empty schema rejects any key",
			candidate: map[string]any{"x": 1},
			want:      []string{"unknown: x"},
		},
		{
			name: "every violation collected in order",
			args: []ArgumentDescriptor{
				Arg("z", "zed"),
				{Name: "n", Description: "number", Required: true, Kind: KindNumber},
				Arg("a", "ay"),
			},
			candidate: map[string]any{"n": "not a number", "q": 1, "b": 2},
			want:      []string{"missing: z", "invalid type: n (want number)", "missing: a", "unknown: b", "unknown: q"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Validate(mustSchema(t, tt.args...), tt.candidate)
			got := res.Details()
			if len(got) == 0 {
				got = nil
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("Details = %q, want %q", got, tt.want)
			}
			if res.OK() != (len(tt.want) == 0) {
				t.Errorf("OK = %v with %d violations", res.OK(), len(tt.want))
			}
			if !res.OK() && res.Args != nil {
				t.Error("Args should be nil on failure")
			}
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()
	s := mustSchema(t,
		Arg("a", "first"),
		ArgumentDescriptor{Name: "lang", Description: "language", Default: "en"},
		ArgumentDescriptor{Name: "extra", Description: "no default"},
	)

	res := Validate(s, map[string]any{"a": 1})
	if !res.OK() {
		t.Fatalf("violations: %v", res.Details())
	}
	if res.Args["lang"] != "en" {
		t.Errorf("lang = %v, want default en", res.Args["lang"])
	}
	if _, ok := res.Args["extra"]; ok {
		t.Error("extra should stay absent without a default")
	}

	res = Validate(s, map[string]any{"a": 1, "lang": "de"})
	if res.Args["lang"] != "de" {
		t.Errorf("lang = %v, want de", res.Args["lang"])
	}
}

func TestValidate_Coercion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		kind  ArgKind
		in    any
		want  any
		valid bool
	}{
		{"string passes", KindString, "hi", "hi", true},
		{"number as string", KindString, 42.5, "42.5", true},
		{"bool as string", KindString, true, "true", true},
		{"map is not a string", KindString, map[string]any{}, nil, false},
		{"float number", KindNumber, 1.5, 1.5, true},
		{"int number", KindNumber, 3, 3.0, true},
		{"string number", KindNumber, " 2.25 ", 2.25, true},
		{"json number", KindNumber, json.Number("7"), 7.0, true},
		{"bad string number", KindNumber, "abc", nil, false},
		{"integer from float", KindInteger, 4.0, int64(4), true},
		{"integer from string", KindInteger, "12", int64(12), true},
		{"fractional integer", KindInteger, 4.5, nil, false},
		{"integer beyond int64 from string", KindInteger, "1e30", nil, false},
		{"integer beyond int64 from float", KindInteger, 1e19, nil, false},
		{"inexact float integer", KindInteger, 1e16, nil, false},
		{"negative beyond int64", KindInteger, -1e19, nil, false},
		{"uint64 beyond int64", KindInteger, uint64(math.MaxUint64), nil, false},
		{"exact large integer from string", KindInteger, "9007199254740993", int64(9007199254740993), true},
		{"max int64 from json number", KindInteger, json.Number("9223372036854775807"), int64(math.MaxInt64), true},
		{"exponent integer in range", KindInteger, "1e3", int64(1000), true},
		{"bool", KindBoolean, false, false, true},
		{"bool from string", KindBoolean, "true", true, true},
		{"bool from junk", KindBoolean, "yes please", nil, false},
		{"object", KindObject, map[string]any{"k": 1}, map[string]any{"k": 1}, true},
		{"object from string", KindObject, "{}", nil, false},
		{"array", KindArray, []any{1, 2}, []any{1, 2}, true},
		{"array from map", KindArray, map[string]any{}, nil, false},
		{"nil typed", KindString, nil, nil, false},
		{"nil untyped", KindAny, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := mustSchema(t, ArgumentDescriptor{Name: "v", Description: "value", Required: true, Kind: tt.kind})
			res := Validate(s, map[string]any{"v": tt.in})
			if res.OK() != tt.valid {
				t.Fatalf("OK = %v, want %v (details %v)", res.OK(), tt.valid, res.Details())
			}
			if !tt.valid {
				if res.Violations[0].Kind != ViolationType {
					t.Errorf("violation kind = %q, want %q", res.Violations[0].Kind, ViolationType)
				}
				return
			}
			got, _ := json.Marshal(res.Args["v"])
			want, _ := json.Marshal(tt.want)
			if string(got) != string(want) {
				t.Errorf("coerced = %s, want %s", got, want)
			}
		})
	}
}

func TestValidate_Deterministic(t *testing.T) {
	t.Parallel()
	s := mustSchema(t, Arg("a", "first"))
	candidate := map[string]any{"q": 1, "b": 2, "z": 3, "m": 4}

	first := Validate(s, candidate).Details()
	for range 20 {
		if got := Validate(s, candidate).Details(); !slices.Equal(got, first) {
			t.Fatalf("Details changed between runs: %v vs %v", got, first)
		}
	}
}
