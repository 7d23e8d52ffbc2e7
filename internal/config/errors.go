package config

import (
	"fmt"
	"strings"
)

// ValidationError aggregates every problem found by Validate so a user can
// fix a config file in one pass.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "config validation failed"
	case 1:
		return "config validation failed: " + e.Errors[0]
	default:
		return fmt.Sprintf("config validation failed with %d errors:\n  - %s",
			len(e.Errors), strings.Join(e.Errors, "\n  - "))
	}
}

// Addf records a formatted problem.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Add(fmt.Sprintf(format, args...))
}

// Add records a problem.
func (e *ValidationError) Add(msg string) {
	e.Errors = append(e.Errors, msg)
}

// HasErrors reports whether any problem was recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ToError returns e, or nil when nothing was recorded.
func (e *ValidationError) ToError() error {
	if e.HasErrors() {
		return e
	}
	return nil
}
