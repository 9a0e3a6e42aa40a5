// Package tool implements the capability subsystem that lets agents and tool
// tasks invoke external functions (APIs, computations, side effects) with
// consistent error handling and metadata for LLM guidance.
package tool

import (
	"context"
	"fmt"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered by name and invoked either from inside an agent's
// reasoning loop or directly as a tool task. Input and output are plain text:
// the reasoning loop serializes structured arguments before invocation and
// interprets the returned observation itself.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
//   - Honor ctx cancellation on long operations
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Invoke executes the tool against a text input and returns a text
	// observation. A returned error is reported to the caller as a failed
	// observation or a failed task depending on the call site.
	Invoke(ctx context.Context, input string) (string, error)
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`    // Name of the tool that failed
	Message string `json:"message"` // Error message
	Code    string `json:"code"`    // Error code for categorization
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
