// Package transform provides the core.transform built-in tool.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/protocol"
	"github.com/ottoflow/otto/pkg/template"
)

// ErrTemplateMissing is returned when the template parameter is absent.
var ErrTemplateMissing = errors.New("missing or invalid 'template' in params")

// Factory creates Tool instances for the core.transform reference.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

func (*Factory) ID() string {
	return "core.transform"
}

func (*Factory) Name() string {
	return "Transform"
}

func (*Factory) Description() string {
	return "Renders a Go text template against the data parameter and returns the coerced result."
}

func (f *Factory) Create(_ map[string]any) (protocol.Tool, error) {
	return &Tool{logger: f.logger}, nil
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"template": map[string]any{
				"type":        "string",
				"description": "Go text template. Output is re-parsed as JSON, number or boolean when possible.",
			},
			"data": map[string]any{
				"description": "Value exposed to the template as its root context",
			},
		},
		"required": []string{"template"},
	}
}

type Tool struct {
	logger *slog.Logger
}

func (t *Tool) Invoke(ctx context.Context, params jsontree.Value) (jsontree.Value, error) {
	tmpl, ok := params.Field("template")
	if !ok || tmpl.Kind() != jsontree.KindString {
		return jsontree.Null(), protocol.NonRetryable(ErrTemplateMissing)
	}

	var data any
	if value, found := params.Field("data"); found {
		data = value.ToAny()
	}

	rendered, err := template.Render(tmpl.StringValue(), data)
	if err != nil {
		// Template errors are deterministic, retrying cannot help.
		return jsontree.Null(), protocol.NonRetryable(fmt.Errorf("transform failed: %w", err))
	}

	result, err := jsontree.FromAny(rendered)
	if err != nil {
		return jsontree.Null(), protocol.NonRetryable(fmt.Errorf("transform produced unsupported value: %w", err))
	}

	t.logger.DebugContext(ctx, "Transform completed", "kind", result.Kind())

	return jsontree.Object(map[string]jsontree.Value{
		"result": result,
	}), nil
}
