package agent

import (
	"context"
	"errors"
)

// Common sentinel errors for agent operations.
var (
	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrRunActive indicates a second run was started on an agent whose
	// previous run has not finished.
	ErrRunActive = errors.New("run already active")
)

// IsAbort reports whether an error is a cancellation. Aborts propagate out
// of the loop unchanged; every other tool error is captured as a tool
// message so the model can observe and recover.
func IsAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
