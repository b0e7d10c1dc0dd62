package tools

import (
	"errors"
	"fmt"
)

// Kind partitions runtime failures for tracing and user-facing reporting.
type Kind string

const (
	KindSafetyViolation   Kind = "safety_violation"
	KindToolExecution     Kind = "tool_execution"
	KindContextOverflow   Kind = "context_overflow"
	KindMaxIterations     Kind = "max_iterations"
	KindTimeout           Kind = "timeout"
	KindProviderTransient Kind = "provider_transient"
	KindPersistence       Kind = "persistence"
)

// Sentinel errors matched with errors.Is across the runtime.
var (
	ErrBlocked         = errors.New("tool invocation blocked by safety policy")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrConfirmDeclined = errors.New("user declined confirmation")
	ErrConfirmTimeout  = errors.New("confirmation timed out")
	ErrContextOverflow = errors.New("context exceeds budget after truncation")
	ErrMaxIterations   = errors.New("agent reached maximum iterations")
	ErrTokenBudget     = errors.New("session token budget exhausted")
)

// RuntimeError attaches a Kind to an underlying error so callers can route
// on class without string matching.
type RuntimeError struct {
	Kind Kind
	Tool string
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("%s: tool %s: %v", e.Kind, e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// NewError wraps err with a kind and the tool it came from.
func NewError(kind Kind, tool string, err error) *RuntimeError {
	return &RuntimeError{Kind: kind, Tool: tool, Err: err}
}

// KindOf reports the Kind of err, or "" when it carries none.
func KindOf(err error) Kind {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
