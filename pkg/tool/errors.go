package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrRegistryFrozen is returned by [Registry.Register] once the registry has
// been frozen at the end of startup.
var ErrRegistryFrozen = errors.New("tool: registry is frozen")

// ─── Startup-fatal errors ────────────────────────────────────────────────────

// DuplicateToolError is returned when a tool name is registered twice. The
// registry keeps the first registration.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool: duplicate tool %q", e.Name)
}

// SchemaMismatchError is returned when the callable's parameters and the
// argument-description mapping disagree.
type SchemaMismatchError struct {
	Tool string

	// Undescribed lists handler parameters with no description entry.
	Undescribed []string

	// Unknown lists description entries with no matching handler parameter.
	Unknown []string
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Undescribed) > 0 {
		parts = append(parts, "parameters without description: "+strings.Join(e.Undescribed, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "descriptions without parameter: "+strings.Join(e.Unknown, ", "))
	}
	return fmt.Sprintf("tool: schema mismatch for %q: %s", e.Tool, strings.Join(parts, "; "))
}

// InvalidMetadataError is returned when required metadata (name,
// description, icon reference, argument description, handler) is missing.
type InvalidMetadataError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *InvalidMetadataError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("tool: invalid metadata: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("tool: invalid metadata for %q: %s %s", e.Tool, e.Field, e.Reason)
}

// IsStartupFatal reports whether err is one of the registration errors that
// must keep the process from reaching the ready state.
func IsStartupFatal(err error) bool {
	var (
		dup  *DuplicateToolError
		mis  *SchemaMismatchError
		meta *InvalidMetadataError
	)
	return errors.As(err, &dup) || errors.As(err, &mis) || errors.As(err, &meta)
}

// ─── Per-call errors ─────────────────────────────────────────────────────────

// ErrorKind classifies a failed invocation.
type ErrorKind string

const (
	ErrUnknownTool      ErrorKind = "UnknownTool"
	ErrInvalidArguments ErrorKind = "InvalidArguments"
	ErrHandlerFailure   ErrorKind = "HandlerFailure"
	ErrHandlerTimeout   ErrorKind = "HandlerTimeout"
)

// InvocationError is the structured failure returned to the orchestrator.
// It is data, not a Go error value flowing up the stack.
type InvocationError struct {
	Kind    ErrorKind `json:"errorKind"`
	Message string    `json:"message"`
	Details []string  `json:"details,omitempty"`
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Result is the outcome of one invocation: either a success value or an
// [InvocationError].
type Result struct {
	OK    bool
	Value any
	Error *InvocationError
}

// Success wraps v as a successful result.
func Success(v any) Result {
	return Result{OK: true, Value: v}
}

// Failure builds a failed result.
func Failure(kind ErrorKind, msg string, details ...string) Result {
	return Result{Error: &InvocationError{Kind: kind, Message: msg, Details: details}}
}

// Status returns "ok" for successful results and the error kind otherwise.
// Used as a low-cardinality metric label.
func (r Result) Status() string {
	if r.OK {
		return "ok"
	}
	if r.Error == nil {
		return string(ErrHandlerFailure)
	}
	return string(r.Error.Kind)
}

type successEnvelope struct {
	OK    bool `json:"ok"`
	Value any  `json:"value"`
}

type failureEnvelope struct {
	OK        bool      `json:"ok"`
	ErrorKind ErrorKind `json:"errorKind"`
	Message   string    `json:"message"`
	Details   []string  `json:"details,omitempty"`
}

// MarshalJSON encodes the boundary representation
// {ok:true, value} or {ok:false, errorKind, message, details?}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.OK {
		return json.Marshal(successEnvelope{OK: true, Value: r.Value})
	}
	e := r.Error
	if e == nil {
		e = &InvocationError{Kind: ErrHandlerFailure}
	}
	return json.Marshal(failureEnvelope{ErrorKind: e.Kind, Message: e.Message, Details: e.Details})
}

// UnmarshalJSON decodes either envelope shape.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		OK        bool      `json:"ok"`
		Value     any       `json:"value"`
		ErrorKind ErrorKind `json:"errorKind"`
		Message   string    `json:"message"`
		Details   []string  `json:"details"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.OK {
		*r = Result{OK: true, Value: raw.Value}
		return nil
	}
	*r = Result{Error: &InvocationError{Kind: raw.ErrorKind, Message: raw.Message, Details: raw.Details}}
	return nil
}
