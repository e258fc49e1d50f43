// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrStepNotFound indicates a step record was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrExecutionAlreadyExists indicates an execution with the same identifier already exists.
	ErrExecutionAlreadyExists = errors.New("execution already exists")

	// ErrStepAlreadyExists indicates a step record with the same execution id and index already exists.
	ErrStepAlreadyExists = errors.New("step already exists")

	// ErrInvalidTransition indicates an attempt to move a record backward in its state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "CreateExecution", "UpdateStep")
	ExecutionID string // Execution ID if applicable
	StepName    string // Step name if applicable
	Err         error  // Underlying error
}

func (e *ExecutionError) Error() string {
	if e.StepName != "" {
		return fmt.Sprintf("%s failed for step %s of execution %s: %v", e.Op, e.StepName, e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("%s failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for execution errors.
func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// NewStepError creates a new execution error for step operations.
func NewStepError(op, executionID, stepName string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		StepName:    stepName,
		Err:         err,
	}
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsAlreadyExists checks if an error indicates a record already exists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrExecutionAlreadyExists) || errors.Is(err, ErrStepAlreadyExists)
}

// IsInvalidTransition checks if an error indicates a backward status move.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
