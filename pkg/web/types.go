// Package web provides HTTP request and response types for the execution API.
package web

import (
	"encoding/json"

	"github.com/ottoflow/otto/pkg/models"
)

// RunWorkflowRequest represents the request body for triggering an execution.
// Workflow carries the raw definition document; Input and Repo are handed to
// the execution context untouched.
type RunWorkflowRequest struct {
	Workflow      json.RawMessage `json:"workflow"       validate:"required"`
	Input         json.RawMessage `json:"input,omitempty"`
	Repo          json.RawMessage `json:"repo,omitempty"`
	TriggeredBy   string          `json:"triggered_by,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// RunWorkflowResponse is returned for asynchronous runs: the execution is
// accepted and its record can be fetched later by id.
type RunWorkflowResponse struct {
	ExecutionID   string                 `json:"execution_id"`
	WorkflowName  string                 `json:"workflow_name"`
	Status        models.ExecutionStatus `json:"status"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}
