package workflow

import (
	"fmt"
	"strings"
)

// Error is returned by Execute when a run fails and the caller asked for
// failures as errors. The finished Result stays reachable.
type Error struct {
	Name   string
	Result *Result
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workflow %q failed: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationError aggregates the failures of soft validators.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error { return e.Errors }
