// Package protocol defines the interfaces and contracts for pluggable tools.
package protocol

import (
	"context"
	"errors"

	"github.com/ottoflow/otto/pkg/jsontree"
)

// Tool is one externally-registered invocable capability. The engine treats
// it as opaque: resolved params in, a JSON result or an error out.
// Implementations should honor context cancellation where the underlying
// operation supports it.
type Tool interface {
	Invoke(ctx context.Context, params jsontree.Value) (jsontree.Value, error)
}

// ToolFactory creates tool instances and provides metadata about the tool
// type. ID returns the full "namespace.identifier" reference.
type ToolFactory interface {
	// ID returns the unique "namespace.identifier" reference for this tool
	ID() string

	// Name returns the human-readable name for this tool
	Name() string

	// Description returns a description of what this tool does
	Description() string

	// Create creates a new tool instance with the given configuration
	Create(config map[string]any) (Tool, error)

	// Schema returns the JSON schema for this tool's params
	Schema() map[string]any
}

// nonRetryableError marks a tool failure that must not be retried, such as
// a validation error.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string {
	return e.err.Error()
}

func (e *nonRetryableError) Unwrap() error {
	return e.err
}

// NonRetryable wraps an error so the retry controller stops immediately.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}

	return &nonRetryableError{err: err}
}

// IsNonRetryable reports whether a tool explicitly marked the failure as
// not worth retrying.
func IsNonRetryable(err error) bool {
	var marked *nonRetryableError

	return errors.As(err, &marked)
}
