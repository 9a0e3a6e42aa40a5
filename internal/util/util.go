// Package util holds small internal helpers shared across packages without
// committing to public API stability.
package util

import "github.com/google/uuid"

// NewID generates a unique identifier for runs and correlation purposes.
func NewID() string { return uuid.NewString() }

// Truncate caps s at max runes, appending a marker when content was cut.
// Used to keep console events and log lines bounded.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "\n...[truncated]..."
}
