package tool

import (
	"context"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	// Tool identifier (snake_case recommended)
	name string
	// Human-readable description shown to models
	description string
	// User supplied implementation
	fn func(ctx context.Context, input string) (string, error)
}

// NewFunctionTool constructs a FunctionTool from a name, description and function.
//
// Example:
//
//	upper := NewFunctionTool(
//	  "uppercase",
//	  "Convert the input text to upper case",
//	  func(ctx context.Context, input string) (string, error) {
//	    return strings.ToUpper(input), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	fn func(ctx context.Context, input string) (string, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		fn:          fn,
	}
}

// Name returns the unique tool name used for routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Invoke runs the wrapped function. Errors other than *ToolError are wrapped
// with code EXECUTION_ERROR for uniform downstream handling.
func (t *FunctionTool) Invoke(ctx context.Context, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	result, err := t.fn(ctx, input)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return "", toolErr
		}
		return "", &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}

	return result, nil
}
