package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ottoflow/otto/pkg/jsontree"
)

const validDocument = `{
	"name": "release",
	"description": "Cut a release",
	"steps": [
		{"name": "tag", "tool": "repo.tag", "params": {"ref": "${input.ref}"}, "assign": "tag"},
		{"name": "notify", "tool": "core.log", "params": {"message": "tagged ${variables.tag}"}, "if": "${input.notify}"}
	],
	"config": {"timeout_ms": 60000, "continue_on_error": false, "max_retries": 2}
}`

func TestParse_ValidDocument(t *testing.T) {
	definition, err := NewParser().Parse([]byte(validDocument))
	require.NoError(t, err)

	assert.Equal(t, "release", definition.Name)
	require.Len(t, definition.Steps, 2)
	assert.Equal(t, "repo.tag", definition.Steps[0].Tool)
	assert.Equal(t, "tag", definition.Steps[0].Assign)
	assert.Equal(t, "${input.notify}", definition.Steps[1].If)
	assert.Equal(t, int64(60000), definition.Config.TimeoutMs)

	// Params keep their JSON structure.
	ref, ok := definition.Steps[0].Params.Field("ref")
	require.True(t, ok)
	assert.Equal(t, jsontree.KindString, ref.Kind())
}

func TestParse_RetryOverride(t *testing.T) {
	document := `{
		"name": "w",
		"steps": [{"name": "s1", "tool": "x.fn", "retry": {"max_attempts": 3, "backoff": "fixed", "base_delay_ms": 50}}],
		"config": {"timeout_ms": 1000}
	}`

	definition, err := NewParser().Parse([]byte(document))
	require.NoError(t, err)
	require.NotNil(t, definition.Steps[0].Retry)
	assert.Equal(t, 3, definition.Steps[0].Retry.MaxAttempts)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		document  string
		fieldPath string
	}{
		{
			"not json",
			`{"name": `,
			"(document)",
		},
		{
			"empty steps",
			`{"name": "w", "steps": [], "config": {"timeout_ms": 1000}}`,
			"steps",
		},
		{
			"missing steps",
			`{"name": "w", "config": {"timeout_ms": 1000}}`,
			"(root)",
		},
		{
			"duplicate step names",
			`{"name": "w", "steps": [{"name": "a", "tool": "x.fn"}, {"name": "a", "tool": "x.fn"}], "config": {"timeout_ms": 1000}}`,
			"steps[1].name",
		},
		{
			"bad tool reference",
			`{"name": "w", "steps": [{"name": "a", "tool": "no-namespace"}], "config": {"timeout_ms": 1000}}`,
			"steps[0].tool",
		},
		{
			"zero timeout",
			`{"name": "w", "steps": [{"name": "a", "tool": "x.fn"}], "config": {"timeout_ms": 0}}`,
			"config.timeout_ms",
		},
		{
			"negative max retries",
			`{"name": "w", "steps": [{"name": "a", "tool": "x.fn"}], "config": {"timeout_ms": 1000, "max_retries": -1}}`,
			"config.max_retries",
		},
		{
			"retry attempts below one",
			`{"name": "w", "steps": [{"name": "a", "tool": "x.fn", "retry": {"max_attempts": 0}}], "config": {"timeout_ms": 1000}}`,
			"steps.0.retry.max_attempts",
		},
		{
			"unknown backoff",
			`{"name": "w", "steps": [{"name": "a", "tool": "x.fn", "retry": {"max_attempts": 2, "backoff": "jitter"}}], "config": {"timeout_ms": 1000}}`,
			"steps.0.retry.backoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse([]byte(tt.document))
			require.Error(t, err)

			schemaErr, ok := err.(*SchemaValidationError)
			require.True(t, ok, "expected *SchemaValidationError, got %T: %v", err, err)
			assert.Equal(t, tt.fieldPath, schemaErr.Field)
		})
	}
}
