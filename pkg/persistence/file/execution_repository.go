package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ottoflow/otto/pkg/models"
	"github.com/ottoflow/otto/pkg/persistence"
)

// ExecutionRepository stores execution and step records as JSON files:
// executions/<id>.json and steps/<execution id>/<index>.json. Writes are
// serialized process-wide with a mutex, defensively covering concurrent
// executions that share the store.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

// validateID guards file operations against path traversal.
func validateID(id string) error {
	if id == "" {
		return errors.New("identifier cannot be empty")
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("identifier contains invalid characters")
	}

	return nil
}

func (r *ExecutionRepository) executionPath(id string) string {
	return filepath.Join(r.root, "executions", id+".json")
}

func (r *ExecutionRepository) stepsDir(executionID string) string {
	return filepath.Join(r.root, "steps", executionID)
}

func (r *ExecutionRepository) stepPath(executionID string, index int) string {
	return filepath.Join(r.stepsDir(executionID), fmt.Sprintf("%06d.json", index))
}

// CreateExecution writes a new execution record. It fails when a record
// with the same id already exists: history is append-only.
func (fp *Persistence) CreateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	return fp.executionRepo.createExecution(ctx, record)
}

// UpdateExecutionStatus transitions an existing execution record forward.
func (fp *Persistence) UpdateExecutionStatus(ctx context.Context, record *models.ExecutionRecord) error {
	return fp.executionRepo.updateExecution(ctx, record)
}

// CreateStep writes a new step record. It fails when a record for the same
// execution id and step index already exists.
func (fp *Persistence) CreateStep(ctx context.Context, step *models.StepRecord) error {
	return fp.executionRepo.createStep(ctx, step)
}

// UpdateStep transitions an existing step record forward.
func (fp *Persistence) UpdateStep(ctx context.Context, step *models.StepRecord) error {
	return fp.executionRepo.updateStep(ctx, step)
}

// ExecutionByID retrieves an execution record by its id.
func (fp *Persistence) ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	return fp.executionRepo.executionByID(ctx, id)
}

// StepsByExecutionID retrieves the step records of one execution in index order.
func (fp *Persistence) StepsByExecutionID(ctx context.Context, executionID string) ([]*models.StepRecord, error) {
	return fp.executionRepo.stepsByExecutionID(ctx, executionID)
}

// ExecutionsByWorkflow retrieves all execution records for a workflow name.
func (fp *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowName string) ([]*models.ExecutionRecord, error) {
	return fp.executionRepo.executionsByWorkflow(ctx, workflowName)
}

func (r *ExecutionRepository) createExecution(_ context.Context, record *models.ExecutionRecord) error {
	if err := validateID(record.ID); err != nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.executionPath(record.ID)
	if _, err := os.Stat(path); err == nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, persistence.ErrExecutionAlreadyExists)
	}

	return r.writeJSON("CreateExecution", record.ID, "", path, record)
}

func (r *ExecutionRepository) updateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	if err := validateID(record.ID); err != nil {
		return persistence.NewExecutionError("UpdateExecutionStatus", record.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.readExecution(record.ID)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecutionStatus", record.ID, err)
	}

	if !existing.Status.CanTransitionTo(record.Status) {
		return persistence.NewExecutionError("UpdateExecutionStatus", record.ID,
			fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, existing.Status, record.Status))
	}

	return r.writeJSON("UpdateExecutionStatus", record.ID, "", r.executionPath(record.ID), record)
}

func (r *ExecutionRepository) createStep(_ context.Context, step *models.StepRecord) error {
	if err := validateID(step.ExecutionID); err != nil {
		return persistence.NewStepError("CreateStep", step.ExecutionID, step.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.stepPath(step.ExecutionID, step.Index)
	if _, err := os.Stat(path); err == nil {
		return persistence.NewStepError("CreateStep", step.ExecutionID, step.Name, persistence.ErrStepAlreadyExists)
	}

	return r.writeJSON("CreateStep", step.ExecutionID, step.Name, path, step)
}

func (r *ExecutionRepository) updateStep(_ context.Context, step *models.StepRecord) error {
	if err := validateID(step.ExecutionID); err != nil {
		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.stepPath(step.ExecutionID, step.Index)

	data, err := os.ReadFile(path) // #nosec G304 -- path is validated and constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, persistence.ErrStepNotFound)
		}

		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, err)
	}

	var existing models.StepRecord

	err = json.Unmarshal(data, &existing)
	if err != nil {
		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name, err)
	}

	if !existing.Status.CanTransitionTo(step.Status) {
		return persistence.NewStepError("UpdateStep", step.ExecutionID, step.Name,
			fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, existing.Status, step.Status))
	}

	return r.writeJSON("UpdateStep", step.ExecutionID, step.Name, path, step)
}

func (r *ExecutionRepository) executionByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	record, err := r.readExecution(id)
	if err != nil {
		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return record, nil
}

func (r *ExecutionRepository) readExecution(id string) (*models.ExecutionRecord, error) {
	data, err := os.ReadFile(r.executionPath(id)) // #nosec G304 -- path is validated and constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, err
	}

	var record models.ExecutionRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *ExecutionRepository) stepsByExecutionID(_ context.Context, executionID string) ([]*models.StepRecord, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewExecutionError("StepsByExecutionID", executionID, err)
	}

	dir := r.stepsDir(executionID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.StepRecord{}, nil
		}

		return nil, persistence.NewExecutionError("StepsByExecutionID", executionID, err)
	}

	steps := make([]*models.StepRecord, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name())) // #nosec G304 -- directory is validated
		if err != nil {
			return nil, persistence.NewExecutionError("StepsByExecutionID", executionID, err)
		}

		var step models.StepRecord

		err = json.Unmarshal(data, &step)
		if err != nil {
			return nil, persistence.NewExecutionError("StepsByExecutionID", executionID, err)
		}

		steps = append(steps, &step)
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Index < steps[j].Index })

	return steps, nil
}

func (r *ExecutionRepository) executionsByWorkflow(_ context.Context, workflowName string) ([]*models.ExecutionRecord, error) {
	dir := filepath.Join(r.root, "executions")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionRecord{}, nil
		}

		return nil, persistence.NewExecutionError("ExecutionsByWorkflow", "", err)
	}

	var records []*models.ExecutionRecord

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		record, err := r.readExecution(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip invalid files
			continue
		}

		if record.WorkflowName == workflowName {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].StartedAt.After(records[j].StartedAt) })

	return records, nil
}

func (r *ExecutionRepository) writeJSON(op, executionID, stepName, path string, payload any) error {
	err := os.MkdirAll(filepath.Dir(path), 0750)
	if err != nil {
		return persistence.NewStepError(op, executionID, stepName, err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return persistence.NewStepError(op, executionID, stepName, err)
	}

	err = os.WriteFile(path, data, 0600)
	if err != nil {
		return persistence.NewStepError(op, executionID, stepName, err)
	}

	return nil
}
