package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ottoflow/otto/pkg/jsontree"
)

func TestInvoke_LogsMessage(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tool, err := NewFactory(logger).Create(nil)
	require.NoError(t, err)

	params := jsontree.MustFromAny(map[string]any{
		"message": "deploy finished",
		"level":   "warn",
	})

	output, err := tool.Invoke(context.Background(), params)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "deploy finished")
	assert.Contains(t, buf.String(), "WARN")

	message, ok := output.Field("message")
	require.True(t, ok)
	assert.Equal(t, "deploy finished", message.StringValue())
}

func TestInvoke_DefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tool, err := NewFactory(logger).Create(nil)
	require.NoError(t, err)

	_, err = tool.Invoke(context.Background(), jsontree.MustFromAny(map[string]any{"message": "hi"}))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "INFO")
}

func TestInvoke_StringifiesNonStringMessage(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tool, err := NewFactory(logger).Create(nil)
	require.NoError(t, err)

	_, err = tool.Invoke(context.Background(), jsontree.MustFromAny(map[string]any{
		"message": map[string]any{"count": float64(3)},
	}))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `{\"count\":3}`)
}
