// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/models"
)

type EventType string

// Topic is the channel all execution lifecycle events are published to.
const Topic = "otto.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionTimedOutEvent  EventType = "execution.timed_out"

	// Step lifecycle events.
	StepCompletedEvent EventType = "step.completed"
	StepFailedEvent    EventType = "step.failed"
	StepSkippedEvent   EventType = "step.skipped"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	WorkflowName string         `json:"workflow_name"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowName string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		WorkflowName: workflowName,
		Metadata:     make(map[string]any),
	}
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID   string         `json:"execution_id"`
	TriggeredBy   string         `json:"triggered_by,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Input         jsontree.Value `json:"input"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string         `json:"execution_id"`
	DurationMs    int64          `json:"duration_ms"`
	StepsExecuted int            `json:"steps_executed"`
	Output        jsontree.Value `json:"output"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	DurationMs    int64  `json:"duration_ms"`
	StepsExecuted int    `json:"steps_executed"`
	Error         string `json:"error"`
	FailedStep    string `json:"failed_step,omitempty"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	DurationMs    int64  `json:"duration_ms"`
	StepsExecuted int    `json:"steps_executed"`
	Reason        string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionTimedOut struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	DurationMs     int64  `json:"duration_ms"`
	TimeoutLimitMs int64  `json:"timeout_limit_ms"`
	StepsExecuted  int    `json:"steps_executed"`
	StuckStep      string `json:"stuck_step,omitempty"`
}

func (e ExecutionTimedOut) GetType() EventType {
	return ExecutionTimedOutEvent
}

type StepCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	StepName    string         `json:"step_name"`
	StepIndex   int            `json:"step_index"`
	Attempts    int            `json:"attempts"`
	DurationMs  int64          `json:"duration_ms"`
	Output      jsontree.Value `json:"output"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	ExecutionID string            `json:"execution_id"`
	StepName    string            `json:"step_name"`
	StepIndex   int               `json:"step_index"`
	Attempts    int               `json:"attempts"`
	DurationMs  int64             `json:"duration_ms"`
	Error       string            `json:"error"`
	Status      models.StepStatus `json:"status"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type StepSkipped struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepName    string `json:"step_name"`
	StepIndex   int    `json:"step_index"`
	Condition   string `json:"condition,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (e StepSkipped) GetType() EventType {
	return StepSkippedEvent
}
