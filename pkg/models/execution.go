package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/ottoflow/otto/pkg/jsontree"
)

// ExecutionStatus represents the lifecycle state of one workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

var executionStatusRank = map[ExecutionStatus]int{
	ExecutionStatusPending:   0,
	ExecutionStatusRunning:   1,
	ExecutionStatusCompleted: 2,
	ExecutionStatusFailed:    2,
	ExecutionStatusCancelled: 2,
}

// CanTransitionTo enforces monotonic forward-only status transitions.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	if s == next {
		return false
	}

	if s.Terminal() {
		return false
	}

	return executionStatusRank[next] > executionStatusRank[s]
}

// StepStatus represents the lifecycle state of one step within an execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

var stepStatusRank = map[StepStatus]int{
	StepStatusPending:   0,
	StepStatusRunning:   1,
	StepStatusCompleted: 2,
	StepStatusFailed:    2,
	StepStatusSkipped:   2,
}

// CanTransitionTo enforces monotonic forward-only status transitions.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	if s == next {
		return false
	}

	if s.Terminal() {
		return false
	}

	return stepStatusRank[next] > stepStatusRank[s]
}

// TriggerMetadata records who or what started an execution. The engine
// stores and exposes it but never interprets it.
type TriggerMetadata struct {
	TriggeredBy   string `json:"triggered_by,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ExecutionRecord is the durable record of one workflow execution.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	WorkflowName  string          `json:"workflow_name"`
	Status        ExecutionStatus `json:"status"`
	Input         jsontree.Value  `json:"input"`
	Output        jsontree.Value  `json:"output"`
	Context       jsontree.Value  `json:"context"`
	Error         string          `json:"error,omitempty"`
	TriggeredBy   string          `json:"triggered_by,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// NewExecutionRecord creates a pending record for a workflow about to run.
func NewExecutionRecord(workflowName string, input jsontree.Value, trigger TriggerMetadata) *ExecutionRecord {
	return &ExecutionRecord{
		ID:            "exec-" + uuid.New().String(),
		WorkflowName:  workflowName,
		Status:        ExecutionStatusPending,
		Input:         input.Clone(),
		Output:        jsontree.Null(),
		Context:       jsontree.Null(),
		TriggeredBy:   trigger.TriggeredBy,
		CorrelationID: trigger.CorrelationID,
		StartedAt:     time.Now().UTC(),
	}
}

// StepRecord is the durable record of one step within an execution. Index is
// unique and strictly increasing per execution.
type StepRecord struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	Name        string         `json:"name"`
	Index       int            `json:"index"`
	Status      StepStatus     `json:"status"`
	Input       jsontree.Value `json:"input"`
	Output      jsontree.Value `json:"output"`
	Error       string         `json:"error,omitempty"`
	Attempts    int            `json:"attempts"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

// NewStepRecord creates a pending step record.
func NewStepRecord(executionID, name string, index int) *StepRecord {
	return &StepRecord{
		ID:          "step-" + uuid.New().String(),
		ExecutionID: executionID,
		Name:        name,
		Index:       index,
		Status:      StepStatusPending,
		Input:       jsontree.Null(),
		Output:      jsontree.Null(),
		StartedAt:   time.Now().UTC(),
	}
}

// Finish moves the step to a terminal status and stamps timing fields.
func (r *StepRecord) Finish(status StepStatus) {
	now := time.Now().UTC()
	r.Status = status
	r.CompletedAt = &now
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()
}
