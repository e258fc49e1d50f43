package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/log"
	"github.com/ottoflow/otto/pkg/models"
	"github.com/ottoflow/otto/pkg/persistence/file"
	"github.com/ottoflow/otto/pkg/protocol"
	"github.com/ottoflow/otto/pkg/registry"
	"github.com/ottoflow/otto/pkg/retry"
)

type stubTool struct {
	invoke func(ctx context.Context, params jsontree.Value) (jsontree.Value, error)
}

func (t *stubTool) Invoke(ctx context.Context, params jsontree.Value) (jsontree.Value, error) {
	return t.invoke(ctx, params)
}

type stubFactory struct {
	id   string
	tool protocol.Tool
}

func (f *stubFactory) ID() string             { return f.id }
func (f *stubFactory) Name() string           { return f.id }
func (f *stubFactory) Description() string    { return "test tool" }
func (f *stubFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

func (f *stubFactory) Create(_ map[string]any) (protocol.Tool, error) {
	return f.tool, nil
}

// recorder tracks invocations and their params across steps.
type recorder struct {
	mu      sync.Mutex
	invoked []string
	params  map[string]jsontree.Value
}

func newRecorder() *recorder {
	return &recorder{params: make(map[string]jsontree.Value)}
}

func (r *recorder) record(name string, params jsontree.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.invoked = append(r.invoked, name)
	r.params[name] = params.Clone()
}

func instantRetry() Option {
	return WithRetryOptions(retry.WithSleeper(func(_ context.Context, _ time.Duration) error {
		return nil
	}))
}

func newTestExecutor(t *testing.T, factories []protocol.ToolFactory, opts ...Option) *Executor {
	t.Helper()

	logger := log.WithModule("executor_test")
	reg := registry.NewRegistry(logger)

	for _, factory := range factories {
		reg.RegisterTool(factory)
	}

	opts = append([]Option{instantRetry()}, opts...)

	return NewExecutor(reg, logger, opts...)
}

func echoFactory(id string, rec *recorder) protocol.ToolFactory {
	return &stubFactory{id: id, tool: &stubTool{invoke: func(_ context.Context, params jsontree.Value) (jsontree.Value, error) {
		rec.record(id, params)

		return jsontree.MustFromAny(map[string]any{"echo": params.ToAny()}), nil
	}}}
}

func linearWorkflow() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name: "deploy",
		Steps: []models.StepDefinition{
			{
				Name:   "checkout",
				Tool:   "git.checkout",
				Params: jsontree.MustFromAny(map[string]any{"ref": "${input.ref}"}),
				Assign: "checkout",
			},
			{
				Name:   "build",
				Tool:   "image.build",
				Params: jsontree.MustFromAny(map[string]any{"source": "${variables.checkout.echo.ref}"}),
				Assign: "build",
			},
			{
				Name:   "publish",
				Tool:   "image.push",
				Params: jsontree.MustFromAny(map[string]any{"from": "${variables.build}"}),
				Assign: "publish",
			},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}
}

func TestExecute_LinearPipeline(t *testing.T) {
	rec := newRecorder()
	executor := newTestExecutor(t, []protocol.ToolFactory{
		echoFactory("git.checkout", rec),
		echoFactory("image.build", rec),
		echoFactory("image.push", rec),
	})

	input := jsontree.MustFromAny(map[string]any{"ref": "main"})

	record, err := executor.Execute(context.Background(), linearWorkflow(), input, jsontree.Null(), models.TriggerMetadata{TriggeredBy: "test"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Empty(t, record.Error)
	assert.NotNil(t, record.CompletedAt)
	assert.Equal(t, []string{"git.checkout", "image.build", "image.push"}, rec.invoked)

	// Each step saw the previous step's output through the variables namespace.
	checkoutParams := rec.params["git.checkout"]
	ref, ok := checkoutParams.Field("ref")
	require.True(t, ok)
	assert.Equal(t, "main", ref.StringValue())

	buildParams := rec.params["image.build"]
	source, ok := buildParams.Field("source")
	require.True(t, ok)
	assert.Equal(t, "main", source.StringValue())

	// Whole-token substitution hands the full object over, type preserved.
	pushParams := rec.params["image.push"]
	from, ok := pushParams.Field("from")
	require.True(t, ok)
	assert.Equal(t, jsontree.KindObject, from.Kind())

	// The final output carries all assigned variables.
	_, ok = record.Output.Field("publish")
	assert.True(t, ok)
}

func TestExecute_RetryUntilSuccess(t *testing.T) {
	calls := 0
	flaky := &stubFactory{id: "net.fetch", tool: &stubTool{invoke: func(_ context.Context, _ jsontree.Value) (jsontree.Value, error) {
		calls++
		if calls < 3 {
			return jsontree.Null(), fmt.Errorf("connection reset (call %d)", calls)
		}

		return jsontree.MustFromAny(map[string]any{"status": float64(200)}), nil
	}}}

	def := &models.WorkflowDefinition{
		Name: "fetch",
		Steps: []models.StepDefinition{
			{
				Name:   "fetch",
				Tool:   "net.fetch",
				Params: jsontree.MustFromAny(map[string]any{}),
				Assign: "response",
				Retry:  &models.RetryPolicy{MaxAttempts: 5, Backoff: models.BackoffExponential, BaseDelayMs: 10},
			},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}

	repo := file.NewPersistence(t.TempDir())
	executor := newTestExecutor(t, []protocol.ToolFactory{flaky}, WithRepository(repo))

	record, err := executor.Execute(context.Background(), def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, 3, calls)

	steps, err := repo.StepsByExecutionID(context.Background(), record.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, 3, steps[0].Attempts)
	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
}

func TestExecute_RetryExhaustion(t *testing.T) {
	calls := 0
	broken := &stubFactory{id: "net.fetch", tool: &stubTool{invoke: func(_ context.Context, _ jsontree.Value) (jsontree.Value, error) {
		calls++

		return jsontree.Null(), errors.New("connection refused")
	}}}

	def := &models.WorkflowDefinition{
		Name: "fetch",
		Steps: []models.StepDefinition{
			{
				Name:   "fetch",
				Tool:   "net.fetch",
				Params: jsontree.MustFromAny(map[string]any{}),
				Assign: "response",
				Retry:  &models.RetryPolicy{MaxAttempts: 3, Backoff: models.BackoffFixed, BaseDelayMs: 10},
			},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}

	executor := newTestExecutor(t, []protocol.ToolFactory{broken})

	record, err := executor.Execute(context.Background(), def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Contains(t, record.Error, "connection refused")
	assert.Equal(t, 3, calls)

	// The assign target must not exist after a failed step.
	_, ok := record.Output.Field("response")
	assert.False(t, ok)
}

func TestExecute_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	rejecting := &stubFactory{id: "core.validate", tool: &stubTool{invoke: func(_ context.Context, _ jsontree.Value) (jsontree.Value, error) {
		calls++

		return jsontree.Null(), protocol.NonRetryable(errors.New("schema mismatch"))
	}}}

	def := &models.WorkflowDefinition{
		Name: "validate",
		Steps: []models.StepDefinition{
			{
				Name:   "validate",
				Tool:   "core.validate",
				Params: jsontree.MustFromAny(map[string]any{}),
				Retry:  &models.RetryPolicy{MaxAttempts: 5},
			},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}

	executor := newTestExecutor(t, []protocol.ToolFactory{rejecting})

	record, err := executor.Execute(context.Background(), def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Equal(t, 1, calls)
}

func TestExecute_ConditionSkipsStep(t *testing.T) {
	rec := newRecorder()

	def := &models.WorkflowDefinition{
		Name: "notify",
		Steps: []models.StepDefinition{
			{
				Name:   "always",
				Tool:   "core.echo",
				Params: jsontree.MustFromAny(map[string]any{"value": "first"}),
				Assign: "always",
			},
			{
				Name:   "guarded",
				Tool:   "core.echo",
				Params: jsontree.MustFromAny(map[string]any{"value": "second"}),
				If:     "${input.notify}",
				Assign: "guarded",
			},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}

	repo := file.NewPersistence(t.TempDir())
	executor := newTestExecutor(t, []protocol.ToolFactory{echoFactory("core.echo", rec)}, WithRepository(repo))

	// input.notify is absent, so the guard is falsy.
	record, err := executor.Execute(context.Background(), def, jsontree.MustFromAny(map[string]any{}), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	// A skipped step never fails the execution and its tool is never invoked.
	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, []string{"core.echo"}, rec.invoked)

	_, ok := record.Output.Field("guarded")
	assert.False(t, ok)

	steps, err := repo.StepsByExecutionID(context.Background(), record.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
	assert.Equal(t, models.StepStatusSkipped, steps[1].Status)
}

func TestExecute_ContinueOnError(t *testing.T) {
	rec := newRecorder()
	failing := &stubFactory{id: "core.fail", tool: &stubTool{invoke: func(_ context.Context, _ jsontree.Value) (jsontree.Value, error) {
		return jsontree.Null(), errors.New("boom")
	}}}

	def := &models.WorkflowDefinition{
		Name: "resilient",
		Steps: []models.StepDefinition{
			{Name: "first", Tool: "core.echo", Params: jsontree.MustFromAny(map[string]any{"n": float64(1)}), Assign: "first"},
			{Name: "breaks", Tool: "core.fail", Params: jsontree.MustFromAny(map[string]any{}), Retry: &models.RetryPolicy{MaxAttempts: 1}},
			{Name: "last", Tool: "core.echo", Params: jsontree.MustFromAny(map[string]any{"n": float64(2)}), Assign: "last"},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000, ContinueOnError: true},
	}

	executor := newTestExecutor(t, []protocol.ToolFactory{echoFactory("core.echo", rec), failing})

	record, err := executor.Execute(context.Background(), def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	// Later steps still ran, but a failed step always fails the execution.
	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Contains(t, record.Error, "boom")
	assert.Equal(t, []string{"core.echo", "core.echo"}, rec.invoked)

	_, ok := record.Output.Field("last")
	assert.True(t, ok)
}

func TestExecute_FatalFailureStopsPipeline(t *testing.T) {
	rec := newRecorder()
	failing := &stubFactory{id: "core.fail", tool: &stubTool{invoke: func(_ context.Context, _ jsontree.Value) (jsontree.Value, error) {
		return jsontree.Null(), errors.New("boom")
	}}}

	def := &models.WorkflowDefinition{
		Name: "strict",
		Steps: []models.StepDefinition{
			{Name: "breaks", Tool: "core.fail", Params: jsontree.MustFromAny(map[string]any{}), Retry: &models.RetryPolicy{MaxAttempts: 1}},
			{Name: "never", Tool: "core.echo", Params: jsontree.MustFromAny(map[string]any{})},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}

	executor := newTestExecutor(t, []protocol.ToolFactory{echoFactory("core.echo", rec), failing})

	record, err := executor.Execute(context.Background(), def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Empty(t, rec.invoked)
}

func TestExecute_UnresolvedVariableFailsStep(t *testing.T) {
	calls := 0
	tool := &stubFactory{id: "core.echo", tool: &stubTool{invoke: func(_ context.Context, _ jsontree.Value) (jsontree.Value, error) {
		calls++

		return jsontree.Null(), nil
	}}}

	def := &models.WorkflowDefinition{
		Name: "broken-reference",
		Steps: []models.StepDefinition{
			{
				Name:   "echo",
				Tool:   "core.echo",
				Params: jsontree.MustFromAny(map[string]any{"value": "${variables.missing}"}),
				Retry:  &models.RetryPolicy{MaxAttempts: 3},
			},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}

	executor := newTestExecutor(t, []protocol.ToolFactory{tool})

	record, err := executor.Execute(context.Background(), def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	// Resolution failures are permanent: no invocation, no retries.
	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Contains(t, record.Error, "unresolved variable")
	assert.Zero(t, calls)
}

func TestExecute_Timeout(t *testing.T) {
	slow := &stubFactory{id: "core.sleep", tool: &stubTool{invoke: func(ctx context.Context, _ jsontree.Value) (jsontree.Value, error) {
		select {
		case <-ctx.Done():
			return jsontree.Null(), ctx.Err()
		case <-time.After(5 * time.Second):
			return jsontree.Null(), nil
		}
	}}}

	def := &models.WorkflowDefinition{
		Name: "slow",
		Steps: []models.StepDefinition{
			{Name: "sleep", Tool: "core.sleep", Params: jsontree.MustFromAny(map[string]any{}), Retry: &models.RetryPolicy{MaxAttempts: 1}},
		},
		Config: models.WorkflowConfig{TimeoutMs: 50},
	}

	executor := newTestExecutor(t, []protocol.ToolFactory{slow})

	record, err := executor.Execute(context.Background(), def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Contains(t, record.Error, "exceeded timeout")
}

func TestExecute_ExternalCancellation(t *testing.T) {
	started := make(chan struct{})
	slow := &stubFactory{id: "core.sleep", tool: &stubTool{invoke: func(ctx context.Context, _ jsontree.Value) (jsontree.Value, error) {
		close(started)

		<-ctx.Done()

		return jsontree.Null(), ctx.Err()
	}}}

	def := &models.WorkflowDefinition{
		Name: "cancellable",
		Steps: []models.StepDefinition{
			{Name: "sleep", Tool: "core.sleep", Params: jsontree.MustFromAny(map[string]any{}), Retry: &models.RetryPolicy{MaxAttempts: 1}},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}

	executor := newTestExecutor(t, []protocol.ToolFactory{slow})

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-started
		cancel()
	}()

	record, err := executor.Execute(ctx, def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCancelled, record.Status)
}

func TestExecute_GateDeniesStep(t *testing.T) {
	rec := newRecorder()
	gate := &stubGate{decision: protocol.Decision{Allowed: false, Reason: "freeze window"}}

	def := &models.WorkflowDefinition{
		Name: "gated-deploy",
		Steps: []models.StepDefinition{
			{Name: "deploy", Tool: "core.echo", Params: jsontree.MustFromAny(map[string]any{}), Gate: true},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}

	executor := newTestExecutor(t, []protocol.ToolFactory{echoFactory("core.echo", rec)}, WithGate(gate))

	record, err := executor.Execute(context.Background(), def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Contains(t, record.Error, "freeze window")
	assert.Empty(t, rec.invoked)
}

func TestExecute_GateAllowsStep(t *testing.T) {
	rec := newRecorder()
	gate := &stubGate{decision: protocol.Decision{Allowed: true, Reason: "all checks green"}}

	def := &models.WorkflowDefinition{
		Name: "gated-deploy",
		Steps: []models.StepDefinition{
			{Name: "deploy", Tool: "core.echo", Params: jsontree.MustFromAny(map[string]any{}), Gate: true},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}

	executor := newTestExecutor(t, []protocol.ToolFactory{echoFactory("core.echo", rec)}, WithGate(gate))

	record, err := executor.Execute(context.Background(), def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, []string{"core.echo"}, rec.invoked)
}

type stubGate struct {
	decision protocol.Decision
}

func (g *stubGate) Evaluate(_ context.Context, _ map[string]any) (protocol.Decision, error) {
	return g.decision, nil
}

func TestExecute_PersistsFullLifecycle(t *testing.T) {
	rec := newRecorder()
	repo := file.NewPersistence(t.TempDir())
	executor := newTestExecutor(t, []protocol.ToolFactory{
		echoFactory("git.checkout", rec),
		echoFactory("image.build", rec),
		echoFactory("image.push", rec),
	}, WithRepository(repo))

	input := jsontree.MustFromAny(map[string]any{"ref": "main"})

	record, err := executor.Execute(context.Background(), linearWorkflow(), input, jsontree.Null(), models.TriggerMetadata{TriggeredBy: "test", CorrelationID: "corr-9"})
	require.NoError(t, err)

	stored, err := repo.ExecutionByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, "corr-9", stored.CorrelationID)
	assert.NotNil(t, stored.CompletedAt)

	steps, err := repo.StepsByExecutionID(context.Background(), record.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	for i, step := range steps {
		assert.Equal(t, i, step.Index)
		assert.Equal(t, models.StepStatusCompleted, step.Status)
	}
}

func TestExecute_SurvivesBrokenRepository(t *testing.T) {
	rec := newRecorder()

	// A store rooted at an unwritable path fails every operation.
	repo := file.NewPersistence("/dev/null/nowhere")
	executor := newTestExecutor(t, []protocol.ToolFactory{echoFactory("core.echo", rec)}, WithRepository(repo))

	def := &models.WorkflowDefinition{
		Name: "sturdy",
		Steps: []models.StepDefinition{
			{Name: "echo", Tool: "core.echo", Params: jsontree.MustFromAny(map[string]any{}), Assign: "echo"},
		},
		Config: models.WorkflowConfig{TimeoutMs: 60000},
	}

	record, err := executor.Execute(context.Background(), def, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, []string{"core.echo"}, rec.invoked)
}

func TestExecute_NilDefinition(t *testing.T) {
	executor := newTestExecutor(t, nil)

	_, err := executor.Execute(context.Background(), nil, jsontree.Null(), jsontree.Null(), models.TriggerMetadata{})
	require.Error(t, err)
}
