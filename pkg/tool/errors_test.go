package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestResult_MarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  Result
		want string
	}{
		{"success", Success("hi"), `{"ok":true,"value":"hi"}`},
		{"success nil value", Success(nil), `{"ok":true,"value":null}`},
		{
			"failure with details",
			Failure(ErrInvalidArguments, "bad", "missing: a", "unknown: c"),
			`{"ok":false,"errorKind":"InvalidArguments","message":"bad","details":["missing: a","unknown: c"]}`,
		},
		{
			"failure without details",
			Failure(ErrUnknownTool, `unknown tool "x"`),
			`{"ok":false,"errorKind":"UnknownTool","message":"unknown tool \"x\""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := json.Marshal(tt.res)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("json =\n%s\nwant\n%s", data, tt.want)
			}
		})
	}
}

func TestResult_UnmarshalJSON(t *testing.T) {
	t.Parallel()
	var r Result
	if err := json.Unmarshal([]byte(`{"ok":false,"errorKind":"HandlerTimeout","message":"slow"}`), &r); err != nil {
		t.Fatal(err)
	}
	if r.OK || r.Error == nil || r.Error.Kind != ErrHandlerTimeout || r.Error.Message != "slow" {
		t.Errorf("decoded = %+v", r)
	}
	if r.Status() != "HandlerTimeout" {
		t.Errorf("Status = %q", r.Status())
	}
}

func TestIsStartupFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate", &DuplicateToolError{Name: "x"}, true},
		{"mismatch wrapped", fmt.Errorf("harness: %w", &SchemaMismatchError{Tool: "x"}), true},
		{"metadata joined", errors.Join(errors.New("other"), &InvalidMetadataError{Field: "name"}), true},
		{"frozen", ErrRegistryFrozen, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := IsStartupFatal(tt.err); got != tt.want {
			t.Errorf("%s: IsStartupFatal = %v, want %v", tt.name, got, tt.want)
		}
	}
}
