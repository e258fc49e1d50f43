// Package dispatch resolves a step's tool reference and issues a single
// invocation attempt.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/models"
	"github.com/ottoflow/otto/pkg/protocol"
	"github.com/ottoflow/otto/pkg/registry"
)

// StepExecutionError wraps a failed dispatch attempt. Retryable is false
// when the tool explicitly marked its failure permanent or when the tool
// reference could not be resolved at all.
type StepExecutionError struct {
	Step      string
	Attempt   int
	Retryable bool
	Err       error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q attempt %d failed: %v", e.Step, e.Attempt, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// IsRetryable is consulted by the retry controller.
func (e *StepExecutionError) IsRetryable() bool {
	return e.Retryable
}

type Dispatcher struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewDispatcher(registry *registry.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger,
	}
}

// Dispatch issues exactly one invocation of the step's tool with the
// already-resolved params. Any failure comes back as *StepExecutionError.
func (d *Dispatcher) Dispatch(ctx context.Context, step models.StepDefinition, params jsontree.Value, attempt int) (jsontree.Value, error) {
	tool, err := d.registry.CreateTool(step.Tool, map[string]any{"step": step.Name})
	if err != nil {
		// An unknown tool reference never resolves on retry.
		return jsontree.Null(), &StepExecutionError{Step: step.Name, Attempt: attempt, Retryable: false, Err: err}
	}

	d.logger.DebugContext(ctx, "Dispatching step",
		"step", step.Name, "tool", step.Tool, "attempt", attempt)

	result, err := tool.Invoke(ctx, params)
	if err != nil {
		return jsontree.Null(), &StepExecutionError{
			Step:      step.Name,
			Attempt:   attempt,
			Retryable: !protocol.IsNonRetryable(err),
			Err:       err,
		}
	}

	return result, nil
}
