// Package models defines the core domain models for declarative workflow execution.
package models

import (
	"time"

	"github.com/ottoflow/otto/pkg/jsontree"
)

// WorkflowDefinition is a parsed, validated workflow document. It is
// immutable once produced by the parser.
type WorkflowDefinition struct {
	Name        string           `json:"name"        validate:"required,min=1"`
	Description string           `json:"description"`
	Steps       []StepDefinition `json:"steps"       validate:"required,min=1,dive"`
	Config      WorkflowConfig   `json:"config"`
}

// StepDefinition is one unit of work within a workflow. Tool references use
// the "namespace.identifier" naming convention and are resolved by the tool
// registry at dispatch time.
type StepDefinition struct {
	Name   string         `json:"name"             validate:"required,min=1"`
	Tool   string         `json:"tool"             validate:"required"`
	Params jsontree.Value `json:"params"`
	Assign string         `json:"assign,omitempty"`
	If     string         `json:"if,omitempty"`
	Gate   bool           `json:"gate,omitempty"`
	Retry  *RetryPolicy   `json:"retry,omitempty"`
}

// WorkflowConfig carries execution-wide settings.
type WorkflowConfig struct {
	TimeoutMs       int64 `json:"timeout_ms"        validate:"required,gt=0"`
	ContinueOnError bool  `json:"continue_on_error"`
	MaxRetries      int   `json:"max_retries"       validate:"gte=0"`
}

// Timeout returns the wall-clock budget for one execution of the workflow.
func (c WorkflowConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// BackoffStrategy maps a retry attempt number to the delay applied before
// the next attempt.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// DefaultBaseDelayMs is used when a retry policy omits the base delay.
const DefaultBaseDelayMs = 500

// RetryPolicy bounds the dispatch loop for a step.
type RetryPolicy struct {
	MaxAttempts int             `json:"max_attempts"  validate:"gte=1"`
	Backoff     BackoffStrategy `json:"backoff"       validate:"omitempty,oneof=fixed linear exponential"`
	BaseDelayMs int64           `json:"base_delay_ms" validate:"gte=0"`
}

// Delay computes the backoff applied after the given attempt number
// (1-based) before the next one begins.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := time.Duration(p.BaseDelayMs) * time.Millisecond
	if p.BaseDelayMs == 0 {
		base = DefaultBaseDelayMs * time.Millisecond
	}

	switch p.Backoff {
	case BackoffLinear:
		return base * time.Duration(attempt)
	case BackoffExponential:
		return base * time.Duration(1<<(attempt-1))
	default:
		return base
	}
}

// RetryPolicyFor resolves the effective policy for a step: the step override
// when present, otherwise a fixed-backoff policy derived from the workflow
// max_retries setting (max_retries is the number of retries after the first
// attempt).
func (w *WorkflowDefinition) RetryPolicyFor(step StepDefinition) RetryPolicy {
	if step.Retry != nil {
		policy := *step.Retry
		if policy.MaxAttempts < 1 {
			policy.MaxAttempts = 1
		}

		return policy
	}

	return RetryPolicy{
		MaxAttempts: w.Config.MaxRetries + 1,
		Backoff:     BackoffFixed,
		BaseDelayMs: DefaultBaseDelayMs,
	}
}

// Step returns the step with the given name.
func (w *WorkflowDefinition) Step(name string) (StepDefinition, bool) {
	for _, step := range w.Steps {
		if step.Name == name {
			return step, true
		}
	}

	return StepDefinition{}, false
}
