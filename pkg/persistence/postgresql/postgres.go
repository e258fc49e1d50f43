// Package postgresql provides PostgreSQL persistence for execution and step records.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ottoflow/otto/pkg/models"
	"github.com/ottoflow/otto/pkg/persistence"
	"github.com/ottoflow/otto/pkg/persistence/sqlbase"
)

// Persistence implements persistence.ExecutionRepository for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	executionRepo *ExecutionRepository
}

var _ persistence.ExecutionRepository = (*Persistence)(nil)

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	executionRepo := NewExecutionRepository(database, logger)

	postgres := &Persistence{
		db:            database,
		logger:        logger,
		executionRepo: executionRepo,
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// CreateExecution inserts a new execution record.
func (p *Persistence) CreateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	return p.executionRepo.CreateExecution(ctx, record)
}

// UpdateExecutionStatus transitions an existing execution record forward.
func (p *Persistence) UpdateExecutionStatus(ctx context.Context, record *models.ExecutionRecord) error {
	return p.executionRepo.UpdateExecutionStatus(ctx, record)
}

// CreateStep inserts a new step record.
func (p *Persistence) CreateStep(ctx context.Context, step *models.StepRecord) error {
	return p.executionRepo.CreateStep(ctx, step)
}

// UpdateStep transitions an existing step record forward.
func (p *Persistence) UpdateStep(ctx context.Context, step *models.StepRecord) error {
	return p.executionRepo.UpdateStep(ctx, step)
}

// ExecutionByID retrieves an execution record by its id.
func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	return p.executionRepo.ExecutionByID(ctx, id)
}

// StepsByExecutionID retrieves the step records of one execution in index order.
func (p *Persistence) StepsByExecutionID(ctx context.Context, executionID string) ([]*models.StepRecord, error) {
	return p.executionRepo.StepsByExecutionID(ctx, executionID)
}

// ExecutionsByWorkflow retrieves all execution records for a workflow name.
func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowName string) ([]*models.ExecutionRecord, error) {
	return p.executionRepo.ExecutionsByWorkflow(ctx, workflowName)
}
