package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/models"
	"github.com/ottoflow/otto/pkg/protocol"
	"github.com/ottoflow/otto/pkg/registry"
)

type stubFactory struct {
	id   string
	tool protocol.Tool
}

func (f *stubFactory) ID() string                                 { return f.id }
func (f *stubFactory) Name() string                               { return f.id }
func (f *stubFactory) Description() string                        { return "stub" }
func (f *stubFactory) Schema() map[string]any                     { return map[string]any{} }
func (f *stubFactory) Create(_ map[string]any) (protocol.Tool, error) { return f.tool, nil }

type stubTool struct {
	result jsontree.Value
	err    error
	calls  int
}

func (t *stubTool) Invoke(_ context.Context, _ jsontree.Value) (jsontree.Value, error) {
	t.calls++

	return t.result, t.err
}

func newTestDispatcher(factories ...protocol.ToolFactory) *Dispatcher {
	reg := registry.NewRegistry(slog.Default())
	for _, factory := range factories {
		reg.RegisterTool(factory)
	}

	return NewDispatcher(reg, slog.Default())
}

func TestDispatch_Success(t *testing.T) {
	tool := &stubTool{result: jsontree.String("ok")}
	dispatcher := newTestDispatcher(&stubFactory{id: "x.fn", tool: tool})

	step := models.StepDefinition{Name: "s1", Tool: "x.fn"}

	result, err := dispatcher.Dispatch(context.Background(), step, jsontree.Object(nil), 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.StringValue())
	assert.Equal(t, 1, tool.calls)
}

func TestDispatch_UnknownToolNotRetryable(t *testing.T) {
	dispatcher := newTestDispatcher()

	step := models.StepDefinition{Name: "s1", Tool: "nope.fn"}

	_, err := dispatcher.Dispatch(context.Background(), step, jsontree.Object(nil), 1)
	require.Error(t, err)

	stepErr, ok := err.(*StepExecutionError)
	require.True(t, ok)
	assert.False(t, stepErr.IsRetryable())
	assert.Equal(t, "s1", stepErr.Step)
}

func TestDispatch_ToolFailureRetryableByDefault(t *testing.T) {
	tool := &stubTool{err: errors.New("flaky network")}
	dispatcher := newTestDispatcher(&stubFactory{id: "x.fn", tool: tool})

	step := models.StepDefinition{Name: "s1", Tool: "x.fn"}

	_, err := dispatcher.Dispatch(context.Background(), step, jsontree.Object(nil), 2)
	require.Error(t, err)

	stepErr, ok := err.(*StepExecutionError)
	require.True(t, ok)
	assert.True(t, stepErr.IsRetryable())
	assert.Equal(t, 2, stepErr.Attempt)
}

func TestDispatch_NonRetryableMarkHonored(t *testing.T) {
	tool := &stubTool{err: protocol.NonRetryable(errors.New("params failed validation"))}
	dispatcher := newTestDispatcher(&stubFactory{id: "x.fn", tool: tool})

	step := models.StepDefinition{Name: "s1", Tool: "x.fn"}

	_, err := dispatcher.Dispatch(context.Background(), step, jsontree.Object(nil), 1)
	require.Error(t, err)

	stepErr, ok := err.(*StepExecutionError)
	require.True(t, ok)
	assert.False(t, stepErr.IsRetryable())
}
