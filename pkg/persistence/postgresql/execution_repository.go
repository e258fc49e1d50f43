package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/ottoflow/otto/pkg/models"
	"github.com/ottoflow/otto/pkg/persistence"
)

const uniqueViolation = "23505"

// ExecutionRepository handles execution and step record database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// CreateExecution inserts a new execution record. Duplicate ids are rejected.
func (er *ExecutionRepository) CreateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	inputJSON, err := json.Marshal(record.Input)
	if err != nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, fmt.Errorf("failed to marshal input: %w", err))
	}

	outputJSON, err := json.Marshal(record.Output)
	if err != nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, fmt.Errorf("failed to marshal output: %w", err))
	}

	contextJSON, err := json.Marshal(record.Context)
	if err != nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, fmt.Errorf("failed to marshal context: %w", err))
	}

	query := `
		INSERT INTO executions (
			id, workflow_name, status, input, output, context,
			error_message, triggered_by, correlation_id, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = er.db.ExecContext(ctx, query,
		record.ID,
		record.WorkflowName,
		record.Status,
		inputJSON,
		outputJSON,
		contextJSON,
		record.Error,
		record.TriggeredBy,
		record.CorrelationID,
		record.StartedAt,
		record.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewExecutionError("CreateExecution", record.ID, persistence.ErrExecutionAlreadyExists)
		}

		return persistence.NewExecutionError("CreateExecution", record.ID, err)
	}

	return nil
}

// UpdateExecutionStatus moves an execution record forward. The current status
// is read inside the transaction so concurrent writers cannot race a record
// backward.
func (er *ExecutionRepository) UpdateExecutionStatus(ctx context.Context, record *models.ExecutionRecord) error {
	outputJSON, err := json.Marshal(record.Output)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecutionStatus", record.ID, fmt.Errorf("failed to marshal output: %w", err))
	}

	contextJSON, err := json.Marshal(record.Context)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecutionStatus", record.ID, fmt.Errorf("failed to marshal context: %w", err))
	}

	transaction, err := er.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecutionStatus", record.ID, err)
	}

	defer func() { _ = transaction.Rollback() }()

	var current models.ExecutionStatus

	err = transaction.QueryRowContext(ctx,
		"SELECT status FROM executions WHERE id = $1 FOR UPDATE", record.ID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewExecutionError("UpdateExecutionStatus", record.ID, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("UpdateExecutionStatus", record.ID, err)
	}

	if !current.CanTransitionTo(record.Status) {
		return persistence.NewExecutionError("UpdateExecutionStatus", record.ID,
			fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, current, record.Status))
	}

	_, err = transaction.ExecContext(ctx, `
		UPDATE executions
		SET status = $2, output = $3, context = $4, error_message = $5, completed_at = $6
		WHERE id = $1
	`, record.ID, record.Status, outputJSON, contextJSON, record.Error, record.CompletedAt)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecutionStatus", record.ID, err)
	}

	err = transaction.Commit()
	if err != nil {
		return persistence.NewExecutionError("UpdateExecutionStatus", record.ID, err)
	}

	return nil
}

// CreateStep inserts a new step record. The execution id plus step index pair
// is unique, so replays of the same step are rejected.
func (er *ExecutionRepository) CreateStep(ctx context.Context, step *models.StepRecord) error {
	inputJSON, err := json.Marshal(step.Input)
	if err != nil {
		return persistence.NewStepError("CreateStep", step.ExecutionID, step.Name, fmt.Errorf("failed to marshal input: %w", err))
	}

	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return persistence.NewStepError("CreateStep", step.ExecutionID, step.Name, fmt.Errorf("failed to marshal output: %w", err))
	}

	query := `
		INSERT INTO execution_steps (
			id, execution_id, name, step_index, status, input, output,
			error_message, attempts, started_at, completed_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = er.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.Name,
		step.Index,
		step.Status,
		inputJSON,
		outputJSON,
		step.Error,
		step.Attempts,
		step.StartedAt,
		step.CompletedAt,
		step.DurationMs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewStepError("CreateStep", step.ExecutionID, step.Name, persistence.ErrStepAlreadyExists)
		}

		return persistence.NewStepError("CreateStep", step.ExecutionID, step.Name, err)
	}

	return nil
}

// UpdateStep moves a step record forward.
func (er *ExecutionRepository) UpdateStep(ctx context.Context, step *models.StepRecord) error {
	inputJSON, err := json.Marshal(step.Input)
	if err != nil {
		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, fmt.Errorf("failed to marshal input: %w", err))
	}

	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, fmt.Errorf("failed to marshal output: %w", err))
	}

	transaction, err := er.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, err)
	}

	defer func() { _ = transaction.Rollback() }()

	var current models.StepStatus

	err = transaction.QueryRowContext(ctx,
		"SELECT status FROM execution_steps WHERE execution_id = $1 AND step_index = $2 FOR UPDATE",
		step.ExecutionID, step.Index).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, persistence.ErrStepNotFound)
		}

		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, err)
	}

	if !current.CanTransitionTo(step.Status) {
		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name,
			fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, current, step.Status))
	}

	_, err = transaction.ExecContext(ctx, `
		UPDATE execution_steps
		SET status = $3, input = $4, output = $5, error_message = $6,
			attempts = $7, completed_at = $8, duration_ms = $9
		WHERE execution_id = $1 AND step_index = $2
	`, step.ExecutionID, step.Index, step.Status, inputJSON, outputJSON,
		step.Error, step.Attempts, step.CompletedAt, step.DurationMs)
	if err != nil {
		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, err)
	}

	err = transaction.Commit()
	if err != nil {
		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, err)
	}

	return nil
}

// ExecutionByID retrieves an execution record by its ID.
func (er *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	query := `
		SELECT id, workflow_name, status, input, output, context,
			   error_message, triggered_by, correlation_id, started_at, completed_at
		FROM executions
		WHERE id = $1
	`

	row := er.db.QueryRowContext(ctx, query, id)

	record, err := er.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return record, nil
}

// ExecutionsByWorkflow retrieves all execution records for a workflow name,
// most recent first.
func (er *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowName string) ([]*models.ExecutionRecord, error) {
	query := `
		SELECT id, workflow_name, status, input, output, context,
			   error_message, triggered_by, correlation_id, started_at, completed_at
		FROM executions
		WHERE workflow_name = $1
		ORDER BY started_at DESC
	`

	rows, err := er.db.QueryContext(ctx, query, workflowName)
	if err != nil {
		return nil, persistence.NewExecutionError("ExecutionsByWorkflow", "", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var records []*models.ExecutionRecord

	for rows.Next() {
		record, err := er.scanExecution(rows)
		if err != nil {
			return nil, persistence.NewExecutionError("ExecutionsByWorkflow", "", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewExecutionError("ExecutionsByWorkflow", "", err)
	}

	return records, nil
}

// StepsByExecutionID retrieves the step records of one execution in index order.
func (er *ExecutionRepository) StepsByExecutionID(ctx context.Context, executionID string) ([]*models.StepRecord, error) {
	query := `
		SELECT id, execution_id, name, step_index, status, input, output,
			   error_message, attempts, started_at, completed_at, duration_ms
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY step_index ASC
	`

	rows, err := er.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("StepsByExecutionID", executionID, err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	steps := make([]*models.StepRecord, 0)

	for rows.Next() {
		var (
			step                  models.StepRecord
			inputJSON, outputJSON []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.Name,
			&step.Index,
			&step.Status,
			&inputJSON,
			&outputJSON,
			&step.Error,
			&step.Attempts,
			&step.StartedAt,
			&step.CompletedAt,
			&step.DurationMs,
		)
		if err != nil {
			return nil, persistence.NewExecutionError("StepsByExecutionID", executionID, err)
		}

		if inputJSON != nil {
			err := json.Unmarshal(inputJSON, &step.Input)
			if err != nil {
				return nil, persistence.NewExecutionError("StepsByExecutionID", executionID, fmt.Errorf("failed to unmarshal input: %w", err))
			}
		}

		if outputJSON != nil {
			err := json.Unmarshal(outputJSON, &step.Output)
			if err != nil {
				return nil, persistence.NewExecutionError("StepsByExecutionID", executionID, fmt.Errorf("failed to unmarshal output: %w", err))
			}
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewExecutionError("StepsByExecutionID", executionID, err)
	}

	return steps, nil
}

// scanExecution scans an execution record from a database row.
func (er *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.ExecutionRecord, error) {
	var (
		record                             models.ExecutionRecord
		inputJSON, outputJSON, contextJSON []byte
	)

	err := scanner.Scan(
		&record.ID,
		&record.WorkflowName,
		&record.Status,
		&inputJSON,
		&outputJSON,
		&contextJSON,
		&record.Error,
		&record.TriggeredBy,
		&record.CorrelationID,
		&record.StartedAt,
		&record.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if inputJSON != nil {
		err := json.Unmarshal(inputJSON, &record.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	if outputJSON != nil {
		err := json.Unmarshal(outputJSON, &record.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	if contextJSON != nil {
		err := json.Unmarshal(contextJSON, &record.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}

	return &record, nil
}
