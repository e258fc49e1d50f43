// Package parser parses and validates declarative workflow documents.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/ottoflow/otto/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidationError names the exact offending field of an invalid
// workflow document. No execution is ever created from a document that
// fails to parse.
type SchemaValidationError struct {
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("invalid workflow definition: %s: %s", e.Field, e.Reason)
}

func newSchemaError(field, reason string) *SchemaValidationError {
	return &SchemaValidationError{Field: field, Reason: reason}
}

var toolReferencePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*\.[a-zA-Z][a-zA-Z0-9_-]*$`)

// documentSchema is the structural contract for raw workflow documents,
// checked before decoding so shape errors carry JSON-level field paths.
var documentSchema = map[string]any{
	"type":     "object",
	"required": []string{"name", "steps", "config"},
	"properties": map[string]any{
		"name":        map[string]any{"type": "string", "minLength": 1},
		"description": map[string]any{"type": "string"},
		"steps": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []string{"name", "tool"},
				"properties": map[string]any{
					"name":   map[string]any{"type": "string", "minLength": 1},
					"tool":   map[string]any{"type": "string"},
					"assign": map[string]any{"type": "string"},
					"if":     map[string]any{"type": "string"},
					"gate":   map[string]any{"type": "boolean"},
					"retry": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"max_attempts":  map[string]any{"type": "integer", "minimum": 1},
							"backoff":       map[string]any{"type": "string", "enum": []string{"fixed", "linear", "exponential"}},
							"base_delay_ms": map[string]any{"type": "integer", "minimum": 0},
						},
					},
				},
			},
		},
		"config": map[string]any{
			"type":     "object",
			"required": []string{"timeout_ms"},
			"properties": map[string]any{
				"timeout_ms":        map[string]any{"type": "integer", "minimum": 1},
				"continue_on_error": map[string]any{"type": "boolean"},
				"max_retries":       map[string]any{"type": "integer", "minimum": 0},
			},
		},
	},
}

// Parser turns raw workflow documents into validated definitions.
type Parser struct {
	validate *validator.Validate
}

func NewParser() *Parser {
	return &Parser{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Parse decodes and validates a raw JSON workflow document. On failure it
// returns a *SchemaValidationError naming the offending field path.
func (p *Parser) Parse(data []byte) (*models.WorkflowDefinition, error) {
	if !json.Valid(data) {
		return nil, newSchemaError("(document)", "not valid JSON")
	}

	schemaLoader := gojsonschema.NewGoLoader(documentSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to validate workflow document: %w", err)
	}

	if !result.Valid() {
		first := result.Errors()[0]

		return nil, newSchemaError(first.Field(), first.Description())
	}

	var definition models.WorkflowDefinition

	err = json.Unmarshal(data, &definition)
	if err != nil {
		return nil, newSchemaError("(document)", err.Error())
	}

	err = p.validateDefinition(&definition)
	if err != nil {
		return nil, err
	}

	return &definition, nil
}

// validateDefinition applies the constraints the document schema cannot
// express: struct tags, unique step names and tool reference syntax.
func (p *Parser) validateDefinition(definition *models.WorkflowDefinition) error {
	err := p.validate.Struct(definition)
	if err != nil {
		var invalid validator.ValidationErrors
		if ok := asValidationErrors(err, &invalid); ok && len(invalid) > 0 {
			return newSchemaError(fieldPath(invalid[0]), "failed validation rule "+invalid[0].Tag())
		}

		return fmt.Errorf("failed to validate workflow definition: %w", err)
	}

	seen := make(map[string]bool, len(definition.Steps))

	for i, step := range definition.Steps {
		if seen[step.Name] {
			return newSchemaError(fmt.Sprintf("steps[%d].name", i), fmt.Sprintf("duplicate step name %q", step.Name))
		}

		seen[step.Name] = true

		if !toolReferencePattern.MatchString(step.Tool) {
			return newSchemaError(
				fmt.Sprintf("steps[%d].tool", i),
				fmt.Sprintf("tool reference %q must match namespace.identifier", step.Tool),
			)
		}

		if step.Retry != nil && step.Retry.MaxAttempts < 1 {
			return newSchemaError(fmt.Sprintf("steps[%d].retry.max_attempts", i), "must be at least 1")
		}
	}

	if definition.Config.TimeoutMs <= 0 {
		return newSchemaError("config.timeout_ms", "must be positive")
	}

	if definition.Config.MaxRetries < 0 {
		return newSchemaError("config.max_retries", "must be non-negative")
	}

	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	invalid, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}

	*target = invalid

	return true
}

// fieldPath converts a validator namespace like
// "WorkflowDefinition.Steps[2].Name" into a document path.
func fieldPath(fieldErr validator.FieldError) string {
	namespace := fieldErr.Namespace()

	// Strip the root struct name.
	for i := 0; i < len(namespace); i++ {
		if namespace[i] == '.' {
			return namespace[i+1:]
		}
	}

	return namespace
}
