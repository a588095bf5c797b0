package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates API key authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationErrors accumulates business-rule violations on an entity so a
// single failed save can report every problem at once. It is returned as an
// ordinary error from Save paths; callers distinguish it from workflow errors
// with errors.As.
type ValidationErrors struct {
	Messages []string
}

// Add appends a validation message.
func (v *ValidationErrors) Add(format string, args ...any) {
	v.Messages = append(v.Messages, fmt.Sprintf(format, args...))
}

// Any reports whether at least one message was recorded.
func (v *ValidationErrors) Any() bool {
	return v != nil && len(v.Messages) > 0
}

// ErrOrNil returns the collector as an error when non-empty.
func (v *ValidationErrors) ErrOrNil() error {
	if v.Any() {
		return v
	}
	return nil
}

func (v *ValidationErrors) Error() string {
	return strings.Join(v.Messages, "; ")
}

// StateError signals an illegal lifecycle transition or a mutation attempted
// in a state that forbids it. Workflow misuse rather than bad user input, so
// it carries a distinct type from ValidationErrors.
type StateError struct {
	Action string
	Reason string
}

func (e *StateError) Error() string {
	if e.Action == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Reason)
}

// PermissionError signals a caller lacking the permission for an action.
type PermissionError struct {
	Action string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Action)
}
