// Package persistence provides the append-only storage abstraction for
// execution and step lifecycle records.
package persistence

import (
	"context"

	"github.com/ottoflow/otto/pkg/models"
)

// ExecutionRepository is the durable record of execution and step
// lifecycle. History is never rewritten: records are created once and their
// status fields only move forward. Implementations must serialize writes per
// execution id defensively, even though correct callers never race on the
// same id.
//
// Persistence is best-effort auditability, not a correctness dependency:
// the orchestrator keeps executing in memory when the store is unavailable.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, record *models.ExecutionRecord) error
	UpdateExecutionStatus(ctx context.Context, record *models.ExecutionRecord) error
	CreateStep(ctx context.Context, step *models.StepRecord) error
	UpdateStep(ctx context.Context, step *models.StepRecord) error

	ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	StepsByExecutionID(ctx context.Context, executionID string) ([]*models.StepRecord, error)
	ExecutionsByWorkflow(ctx context.Context, workflowName string) ([]*models.ExecutionRecord, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
