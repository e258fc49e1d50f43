// Package workflow orchestrates the execution of a parsed workflow
// definition: sequencing steps, evaluating guards, dispatching tools through
// the retry controller and recording lifecycle history.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ottoflow/otto/pkg/dispatch"
	"github.com/ottoflow/otto/pkg/eventbus"
	"github.com/ottoflow/otto/pkg/events"
	"github.com/ottoflow/otto/pkg/execution"
	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/models"
	"github.com/ottoflow/otto/pkg/otelhelper"
	"github.com/ottoflow/otto/pkg/persistence"
	"github.com/ottoflow/otto/pkg/protocol"
	"github.com/ottoflow/otto/pkg/registry"
	"github.com/ottoflow/otto/pkg/resolve"
	"github.com/ottoflow/otto/pkg/retry"
)

// TimeoutError reports that an execution exceeded its wall-clock budget.
type TimeoutError struct {
	Workflow string
	Limit    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("workflow %q exceeded timeout of %s", e.Workflow, e.Limit)
}

// IsTimeout reports whether the error chain contains a TimeoutError.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError

	return errors.As(err, &timeoutErr)
}

type Option func(*Executor)

// WithRepository enables best-effort lifecycle persistence. Store failures
// are logged and never interrupt the execution.
func WithRepository(repo persistence.ExecutionRepository) Option {
	return func(e *Executor) {
		e.repo = repo
	}
}

// WithEventBus enables lifecycle event publishing.
func WithEventBus(bus eventbus.EventPublisher) Option {
	return func(e *Executor) {
		e.bus = bus
	}
}

// WithGate installs the external approval gate consulted by gated steps.
func WithGate(gate protocol.DecisionGate) Option {
	return func(e *Executor) {
		e.gate = gate
	}
}

// WithTracer enables distributed tracing of executions and steps.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithRetryOptions forwards options to the retry controller, used by tests
// to replace the real backoff sleeper.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(e *Executor) {
		e.retryOpts = opts
	}
}

// Executor runs one workflow execution at a time per call. Executions are
// independent: concurrent Execute calls never share mutable state.
type Executor struct {
	dispatcher *dispatch.Dispatcher
	retrier    *retry.Controller
	repo       persistence.ExecutionRepository
	bus        eventbus.EventPublisher
	gate       protocol.DecisionGate
	tracer     trace.Tracer
	retryOpts  []retry.Option
	logger     *slog.Logger
}

func NewExecutor(reg *registry.Registry, logger *slog.Logger, opts ...Option) *Executor {
	executor := &Executor{
		dispatcher: dispatch.NewDispatcher(reg, logger),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(executor)
	}

	executor.retrier = retry.NewController(logger, executor.retryOpts...)

	return executor
}

// Execute runs the definition against the given input and repository
// metadata. The returned record carries the final status: COMPLETED when no
// step failed, FAILED when any step failed or the timeout elapsed, CANCELLED
// when the caller's context was cancelled. A skipped step never affects the
// outcome. The error return is reserved for executions that could not start.
func (e *Executor) Execute(ctx context.Context, def *models.WorkflowDefinition, input, repoMeta jsontree.Value, trigger models.TriggerMetadata) (*models.ExecutionRecord, error) {
	if def == nil {
		return nil, errors.New("workflow definition is required")
	}

	record := models.NewExecutionRecord(def.Name, input, trigger)
	e.run(ctx, def, record, input, repoMeta, trigger)

	return record, nil
}

// Start launches the execution in the background and immediately returns a
// detached copy of the pending record, so callers can hand out the execution
// id before the run finishes. The background run is detached from the
// caller's cancellation.
func (e *Executor) Start(ctx context.Context, def *models.WorkflowDefinition, input, repoMeta jsontree.Value, trigger models.TriggerMetadata) (*models.ExecutionRecord, error) {
	if def == nil {
		return nil, errors.New("workflow definition is required")
	}

	record := models.NewExecutionRecord(def.Name, input, trigger)

	accepted := *record
	accepted.Input = record.Input.Clone()
	accepted.Output = record.Output.Clone()
	accepted.Context = record.Context.Clone()

	go e.run(context.WithoutCancel(ctx), def, record, input, repoMeta, trigger)

	return &accepted, nil
}

func (e *Executor) run(ctx context.Context, def *models.WorkflowDefinition, record *models.ExecutionRecord, input, repoMeta jsontree.Value, trigger models.TriggerMetadata) {
	logger := e.logger.With(
		"workflow", def.Name,
		"execution_id", record.ID,
	)

	logger.InfoContext(ctx, "Starting workflow execution",
		"steps", len(def.Steps), "timeout_ms", def.Config.TimeoutMs)

	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
			attribute.String(otelhelper.WorkflowNameKey, def.Name),
			attribute.String(otelhelper.ExecutionIDKey, record.ID),
			attribute.String(otelhelper.CorrelationIDKey, trigger.CorrelationID),
		)
		defer span.End()
	}

	e.persist(ctx, logger, "create execution", func(pctx context.Context) error {
		return e.repo.CreateExecution(pctx, record)
	})

	e.publish(ctx, logger, record.ID, events.ExecutionStarted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionStartedEvent, def.Name),
		ExecutionID:   record.ID,
		TriggeredBy:   trigger.TriggeredBy,
		CorrelationID: trigger.CorrelationID,
		Input:         input.Clone(),
	})

	record.Status = models.ExecutionStatusRunning
	e.persist(ctx, logger, "mark execution running", func(pctx context.Context) error {
		return e.repo.UpdateExecutionStatus(pctx, record)
	})

	runCtx, cancel := context.WithTimeout(ctx, def.Config.Timeout())
	defer cancel()

	execCtx := execution.NewContext(input, repoMeta)
	outcome := e.runSteps(runCtx, logger, def, record, execCtx)

	e.finish(ctx, logger, def, record, execCtx, outcome)
}

// stepOutcome accumulates what the step loop observed.
type stepOutcome struct {
	stepsExecuted int
	failed        bool
	failedStep    string
	firstError    string
	timedOut      bool
	cancelled     bool
	stuckStep     string
}

func (e *Executor) runSteps(ctx context.Context, logger *slog.Logger, def *models.WorkflowDefinition, record *models.ExecutionRecord, execCtx *execution.Context) stepOutcome {
	var outcome stepOutcome

	for index, step := range def.Steps {
		if err := ctx.Err(); err != nil {
			e.classifyInterruption(err, &outcome)

			break
		}

		stepLogger := logger.With("step", step.Name, "tool", step.Tool, "index", index)
		stepRecord := models.NewStepRecord(record.ID, step.Name, index)

		e.persist(ctx, stepLogger, "create step", func(pctx context.Context) error {
			return e.repo.CreateStep(pctx, stepRecord)
		})

		if !resolve.Condition(step.If, execCtx) {
			stepLogger.InfoContext(ctx, "Step condition is falsy, skipping", "condition", step.If)
			stepRecord.Finish(models.StepStatusSkipped)

			e.persist(ctx, stepLogger, "mark step skipped", func(pctx context.Context) error {
				return e.repo.UpdateStep(pctx, stepRecord)
			})
			e.publish(ctx, stepLogger, record.ID, events.StepSkipped{
				BaseEvent:   events.NewBaseEvent(events.StepSkippedEvent, def.Name),
				ExecutionID: record.ID,
				StepName:    step.Name,
				StepIndex:   index,
				Condition:   step.If,
			})

			continue
		}

		outcome.stepsExecuted++

		err := e.runStep(ctx, stepLogger, def, record, execCtx, step, index, stepRecord)
		if err == nil {
			continue
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			e.classifyInterruption(ctxErr, &outcome)
			outcome.stuckStep = step.Name

			break
		}

		outcome.failed = true
		if outcome.failedStep == "" {
			outcome.failedStep = step.Name
			outcome.firstError = err.Error()
		}

		if !def.Config.ContinueOnError {
			stepLogger.ErrorContext(ctx, "Step failed, aborting execution", "error", err)

			break
		}

		stepLogger.WarnContext(ctx, "Step failed, continuing", "error", err)
	}

	return outcome
}

func (e *Executor) classifyInterruption(err error, outcome *stepOutcome) {
	if errors.Is(err, context.DeadlineExceeded) {
		outcome.timedOut = true
	} else {
		outcome.cancelled = true
	}
}

// runStep takes one step from pending to a terminal status. The returned
// error is non-nil when the step FAILED.
func (e *Executor) runStep(ctx context.Context, logger *slog.Logger, def *models.WorkflowDefinition, record *models.ExecutionRecord, execCtx *execution.Context, step models.StepDefinition, index int, stepRecord *models.StepRecord) error {
	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
			attribute.String(otelhelper.StepNameKey, step.Name),
			attribute.Int(otelhelper.StepIndexKey, index),
			attribute.String(otelhelper.ToolKey, step.Tool),
		)
		defer span.End()
	}

	if step.Gate {
		err := e.consultGate(ctx, logger, def, record, step)
		if err != nil {
			return e.failStep(ctx, logger, def, record, step, index, stepRecord, 0, err)
		}
	}

	params, err := resolve.Params(step.Name, step.Params, execCtx)
	if err != nil {
		// An unresolved reference never resolves on retry.
		return e.failStep(ctx, logger, def, record, step, index, stepRecord, 0, err)
	}

	stepRecord.Input = params.Clone()
	stepRecord.Status = models.StepStatusRunning
	e.persist(ctx, logger, "mark step running", func(pctx context.Context) error {
		return e.repo.UpdateStep(pctx, stepRecord)
	})

	var output jsontree.Value

	attempts, err := e.retrier.Do(ctx, def.RetryPolicyFor(step), func(attempt int) error {
		result, dispatchErr := e.dispatcher.Dispatch(ctx, step, params, attempt)
		if dispatchErr != nil {
			return dispatchErr
		}

		output = result

		return nil
	})
	if err != nil {
		return e.failStep(ctx, logger, def, record, step, index, stepRecord, attempts, err)
	}

	if step.Assign != "" {
		execCtx.Set(step.Assign, output)
	}

	stepRecord.Output = output.Clone()
	stepRecord.Attempts = attempts
	stepRecord.Finish(models.StepStatusCompleted)

	e.persist(ctx, logger, "mark step completed", func(pctx context.Context) error {
		return e.repo.UpdateStep(pctx, stepRecord)
	})
	e.publish(ctx, logger, record.ID, events.StepCompleted{
		BaseEvent:   events.NewBaseEvent(events.StepCompletedEvent, def.Name),
		ExecutionID: record.ID,
		StepName:    step.Name,
		StepIndex:   index,
		Attempts:    attempts,
		DurationMs:  stepRecord.DurationMs,
		Output:      output.Clone(),
	})

	logger.InfoContext(ctx, "Step completed", "attempts", attempts, "duration_ms", stepRecord.DurationMs)

	return nil
}

func (e *Executor) consultGate(ctx context.Context, logger *slog.Logger, def *models.WorkflowDefinition, record *models.ExecutionRecord, step models.StepDefinition) error {
	if e.gate == nil {
		logger.WarnContext(ctx, "Step requires a gate but no gate is configured, proceeding")

		return nil
	}

	decision, err := e.gate.Evaluate(ctx, map[string]any{
		"workflow":     def.Name,
		"execution_id": record.ID,
		"step":         step.Name,
	})
	if err != nil {
		return fmt.Errorf("gate evaluation for step %q failed: %w", step.Name, err)
	}

	if !decision.Allowed {
		return fmt.Errorf("gate denied step %q: %s", step.Name, decision.Reason)
	}

	logger.InfoContext(ctx, "Gate allowed step", "reason", decision.Reason)

	return nil
}

func (e *Executor) failStep(ctx context.Context, logger *slog.Logger, def *models.WorkflowDefinition, record *models.ExecutionRecord, step models.StepDefinition, index int, stepRecord *models.StepRecord, attempts int, cause error) error {
	stepRecord.Error = cause.Error()
	stepRecord.Attempts = attempts
	stepRecord.Finish(models.StepStatusFailed)

	e.persist(ctx, logger, "mark step failed", func(pctx context.Context) error {
		return e.repo.UpdateStep(pctx, stepRecord)
	})
	e.publish(ctx, logger, record.ID, events.StepFailed{
		BaseEvent:   events.NewBaseEvent(events.StepFailedEvent, def.Name),
		ExecutionID: record.ID,
		StepName:    step.Name,
		StepIndex:   index,
		Attempts:    attempts,
		DurationMs:  stepRecord.DurationMs,
		Error:       cause.Error(),
		Status:      models.StepStatusFailed,
	})

	if e.tracer != nil {
		span := trace.SpanFromContext(ctx)
		otelhelper.SetError(span, cause,
			attribute.String(otelhelper.StepNameKey, step.Name),
			attribute.Int(otelhelper.AttemptKey, attempts),
		)
	}

	return cause
}

func (e *Executor) finish(ctx context.Context, logger *slog.Logger, def *models.WorkflowDefinition, record *models.ExecutionRecord, execCtx *execution.Context, outcome stepOutcome) {
	record.Context = execCtx.Snapshot()
	record.Output = execCtx.Variables()

	durationMs := time.Since(record.StartedAt).Milliseconds()

	switch {
	case outcome.timedOut:
		record.Status = models.ExecutionStatusFailed
		timeoutErr := &TimeoutError{Workflow: def.Name, Limit: def.Config.Timeout()}
		record.Error = timeoutErr.Error()

		e.publish(ctx, logger, record.ID, events.ExecutionTimedOut{
			BaseEvent:      events.NewBaseEvent(events.ExecutionTimedOutEvent, def.Name),
			ExecutionID:    record.ID,
			DurationMs:     durationMs,
			TimeoutLimitMs: def.Config.TimeoutMs,
			StepsExecuted:  outcome.stepsExecuted,
			StuckStep:      outcome.stuckStep,
		})
	case outcome.cancelled:
		record.Status = models.ExecutionStatusCancelled
		record.Error = "execution cancelled"

		e.publish(ctx, logger, record.ID, events.ExecutionCancelled{
			BaseEvent:     events.NewBaseEvent(events.ExecutionCancelledEvent, def.Name),
			ExecutionID:   record.ID,
			DurationMs:    durationMs,
			StepsExecuted: outcome.stepsExecuted,
		})
	case outcome.failed:
		record.Status = models.ExecutionStatusFailed
		record.Error = outcome.firstError

		e.publish(ctx, logger, record.ID, events.ExecutionFailed{
			BaseEvent:     events.NewBaseEvent(events.ExecutionFailedEvent, def.Name),
			ExecutionID:   record.ID,
			DurationMs:    durationMs,
			StepsExecuted: outcome.stepsExecuted,
			Error:         outcome.firstError,
			FailedStep:    outcome.failedStep,
		})
	default:
		record.Status = models.ExecutionStatusCompleted

		e.publish(ctx, logger, record.ID, events.ExecutionCompleted{
			BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, def.Name),
			ExecutionID:   record.ID,
			DurationMs:    durationMs,
			StepsExecuted: outcome.stepsExecuted,
			Output:        record.Output.Clone(),
		})
	}

	now := time.Now().UTC()
	record.CompletedAt = &now

	e.persist(ctx, logger, "mark execution finished", func(pctx context.Context) error {
		return e.repo.UpdateExecutionStatus(pctx, record)
	})

	logger.InfoContext(ctx, "Workflow execution finished",
		"status", record.Status, "steps_executed", outcome.stepsExecuted, "duration_ms", durationMs)
}

// persist runs one store operation when a repository is configured. The
// store is an audit trail, not a correctness dependency: failures are
// logged and execution continues.
func (e *Executor) persist(ctx context.Context, logger *slog.Logger, what string, op func(context.Context) error) {
	if e.repo == nil {
		return
	}

	// Lifecycle writes must survive the execution deadline.
	pctx := context.WithoutCancel(ctx)

	err := op(pctx)
	if err != nil {
		logger.WarnContext(ctx, "Persistence unavailable, continuing",
			"operation", what, "error", err)
	}
}

func (e *Executor) publish(ctx context.Context, logger *slog.Logger, key string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	err := e.bus.Publish(context.WithoutCancel(ctx), key, event)
	if err != nil {
		logger.WarnContext(ctx, "Event publish failed, continuing",
			"event_type", event.GetType(), "error", err)
	}
}
