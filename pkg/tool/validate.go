package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// ViolationKind classifies a single argument problem found by [Validate].
type ViolationKind string

const (
	// ViolationMissing is reported for a required argument absent from the
	// candidate map.
	ViolationMissing ViolationKind = "MissingArgument"

	// ViolationUnknown is reported for a candidate key the schema does not
	// declare. Unexpected keys are rejected rather than dropped.
	ViolationUnknown ViolationKind = "UnknownArgument"

	// ViolationType is reported when a value cannot be read as the declared
	// [ArgKind].
	ViolationType ViolationKind = "InvalidType"
)

// Violation is one problem with one argument.
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Argument string        `json:"argument"`

	// Want is the declared kind for ViolationType; empty otherwise.
	Want ArgKind `json:"want,omitempty"`
}

// String renders the violation as a short detail line, e.g. "missing: text".
func (v Violation) String() string {
	switch v.Kind {
	case ViolationMissing:
		return "missing: " + v.Argument
	case ViolationUnknown:
		return "unknown: " + v.Argument
	case ViolationType:
		return fmt.Sprintf("invalid type: %s (want %s)", v.Argument, v.Want)
	default:
		return string(v.Kind) + ": " + v.Argument
	}
}

func (v Violation) Error() string {
	return "tool: " + v.String()
}

// ValidationResult is the outcome of [Validate].
type ValidationResult struct {
	// Args holds the argument map to pass to the handler: candidate values
	// (coerced to their declared kinds) plus defaults for absent optional
	// arguments. Nil when validation failed.
	Args Arguments

	// Violations lists every problem found, in a deterministic order.
	Violations []Violation
}

// OK reports whether validation found no violations.
func (r ValidationResult) OK() bool {
	return len(r.Violations) == 0
}

// Details renders each violation with [Violation.String].
func (r ValidationResult) Details() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.String()
	}
	return out
}

// Validate checks candidate against schema and collects every violation in a
// single pass.
//
// Violations for declared arguments (missing, wrong type) come first in
// schema order, followed by unknown keys sorted by name, so the result does
// not depend on map iteration order.
func Validate(schema *Schema, candidate map[string]any) ValidationResult {
	var violations []Violation
	args := make(Arguments, len(candidate))

	for _, desc := range schema.Args() {
		v, present := candidate[desc.Name]
		if !present {
			if desc.Required {
				violations = append(violations, Violation{Kind: ViolationMissing, Argument: desc.Name})
			} else if desc.Default != nil {
				args[desc.Name] = desc.Default
			}
			continue
		}
		coerced, ok := coerce(desc.Kind, v)
		if !ok {
			violations = append(violations, Violation{Kind: ViolationType, Argument: desc.Name, Want: desc.Kind})
			continue
		}
		args[desc.Name] = coerced
	}

	var unknown []string
	for name := range candidate {
		if _, declared := schema.Get(name); !declared {
			unknown = append(unknown, name)
		}
	}
	slices.Sort(unknown)
	for _, name := range unknown {
		violations = append(violations, Violation{Kind: ViolationUnknown, Argument: name})
	}

	if len(violations) > 0 {
		return ValidationResult{Violations: violations}
	}
	return ValidationResult{Args: args}
}

// coerce converts v to the representation used for kind. Callers frequently
// send string-encoded scalars, so numeric and boolean kinds also accept
// strings that parse cleanly.
func coerce(kind ArgKind, v any) (any, bool) {
	if kind == KindAny {
		return v, true
	}
	if v == nil {
		return nil, false
	}

	switch kind {
	case KindString:
		switch s := v.(type) {
		case string:
			return s, true
		case json.Number:
			return s.String(), true
		case bool, float64, float32, int, int64, int32, uint, uint64, uint32:
			return fmt.Sprint(s), true
		}
		return nil, false

	case KindNumber:
		f, ok := toFloat(v)
		return f, ok

	case KindInteger:
		n, ok := toInt64(v)
		if !ok {
			return nil, false
		}
		return n, true

	case KindBoolean:
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, false
			}
			return parsed, true
		}
		return nil, false

	case KindObject:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
			return v, true
		}
		return nil, false

	case KindArray:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return v, true
		}
		return nil, false
	}
	return nil, false
}

// maxExactInt is the largest magnitude a float64 holds without losing
// integer precision.
const maxExactInt = 1 << 53

// toInt64 converts v to an integer without wrapping or rounding. Floats must
// be integral and within ±2^53; strings and json.Number values are parsed
// exactly first so larger integers survive when sent as text.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint64:
		return int64(n), n <= math.MaxInt64
	case uint32:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
	}

	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || f < -maxExactInt || f > maxExactInt {
		return 0, false
	}
	return int64(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
