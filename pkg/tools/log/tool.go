// Package log provides the core.log built-in tool.
package log

import (
	"context"
	"log/slog"

	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/protocol"
)

// Factory creates Tool instances for the core.log reference.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

func (*Factory) ID() string {
	return "core.log"
}

func (*Factory) Name() string {
	return "Log"
}

func (*Factory) Description() string {
	return "Logs a message at a specified level."
}

func (f *Factory) Create(_ map[string]any) (protocol.Tool, error) {
	return &Tool{logger: f.logger}, nil
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log. Variable references are resolved before invocation.",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required": []string{"message"},
	}
}

// Tool logs its message parameter and echoes it back as the step output.
type Tool struct {
	logger *slog.Logger
}

func (t *Tool) Invoke(ctx context.Context, params jsontree.Value) (jsontree.Value, error) {
	message := ""
	if value, ok := params.Field("message"); ok {
		message = value.Stringify()
	}

	level := "info"
	if value, ok := params.Field("level"); ok && value.StringValue() != "" {
		level = value.StringValue()
	}

	switch level {
	case "debug":
		t.logger.DebugContext(ctx, message)
	case "warn":
		t.logger.WarnContext(ctx, message)
	case "error":
		t.logger.ErrorContext(ctx, message)
	default:
		t.logger.InfoContext(ctx, message)
	}

	return jsontree.Object(map[string]jsontree.Value{
		"message": jsontree.String(message),
		"level":   jsontree.String(level),
	}), nil
}
