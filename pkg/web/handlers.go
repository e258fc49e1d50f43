// Package web provides HTTP handlers and REST API endpoints for triggering
// and inspecting workflow executions.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/models"
	"github.com/ottoflow/otto/pkg/parser"
	"github.com/ottoflow/otto/pkg/persistence"
	"github.com/ottoflow/otto/pkg/workflow"
)

type APIHandlers struct {
	executor   *workflow.Executor
	repository persistence.ExecutionRepository
	parser     *parser.Parser
	validator  *validator.Validate
}

func NewAPIHandlers(
	executor *workflow.Executor,
	repository persistence.ExecutionRepository,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		executor:   executor,
		repository: repository,
		parser:     parser.NewParser(),
		validator:  validate,
	}
}

// RunWorkflow validates and runs a workflow document. By default the
// execution is launched in the background and a 202 with the execution id is
// returned; ?wait=true runs synchronously and returns the finished record.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	var req RunWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	def, err := h.parser.Parse(req.Workflow)
	if err != nil {
		return badRequest(c, err.Error())
	}

	input, err := decodeTree(req.Input)
	if err != nil {
		return badRequest(c, "Invalid input document: "+err.Error())
	}

	repoMeta, err := decodeTree(req.Repo)
	if err != nil {
		return badRequest(c, "Invalid repo document: "+err.Error())
	}

	trigger := models.TriggerMetadata{
		TriggeredBy:   req.TriggeredBy,
		CorrelationID: req.CorrelationID,
	}
	if trigger.TriggeredBy == "" {
		trigger.TriggeredBy = "api"
	}

	wait, _ := strconv.ParseBool(c.Query("wait"))
	if wait {
		record, err := h.executor.Execute(c.Context(), def, input, repoMeta, trigger)
		if err != nil {
			return internalError(c, err)
		}

		return c.JSON(record)
	}

	record, err := h.executor.Start(c.Context(), def, input, repoMeta, trigger)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(RunWorkflowResponse{
		ExecutionID:   record.ID,
		WorkflowName:  record.WorkflowName,
		Status:        record.Status,
		CorrelationID: record.CorrelationID,
	})
}

func decodeTree(raw []byte) (jsontree.Value, error) {
	if len(raw) == 0 {
		return jsontree.Null(), nil
	}

	var value jsontree.Value

	err := value.UnmarshalJSON(raw)
	if err != nil {
		return jsontree.Null(), err
	}

	return value, nil
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	record, err := h.repository.ExecutionByID(c.Context(), id)
	if err != nil {
		return handleRepositoryError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetExecutionSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	// A missing execution and an execution with no steps look the same in
	// the steps table, so check existence first.
	_, err := h.repository.ExecutionByID(c.Context(), id)
	if err != nil {
		return handleRepositoryError(c, err)
	}

	steps, err := h.repository.StepsByExecutionID(c.Context(), id)
	if err != nil {
		return handleRepositoryError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": id,
		"steps":        steps,
	})
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Workflow name is required")
	}

	records, err := h.repository.ExecutionsByWorkflow(c.Context(), name)
	if err != nil {
		return handleRepositoryError(c, err)
	}

	if records == nil {
		records = []*models.ExecutionRecord{}
	}

	return c.JSON(fiber.Map{
		"workflow_name": name,
		"executions":    records,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.repository.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// RegisterRoutes wires the API endpoints onto a fiber application.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Post("/workflows/run", h.RunWorkflow)
	app.Get("/workflows/:name/executions", h.GetWorkflowExecutions)
	app.Get("/executions/:id", h.GetExecution)
	app.Get("/executions/:id/steps", h.GetExecutionSteps)
	app.Get("/health", h.HealthCheck)
}
