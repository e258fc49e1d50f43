// Package registry maps "namespace.identifier" tool references to their
// factories.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/ottoflow/otto/pkg/protocol"
)

type Registry struct {
	logger        *slog.Logger
	toolFactories map[string]protocol.ToolFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:        log,
		toolFactories: make(map[string]protocol.ToolFactory),
	}
}

func (r *Registry) RegisterTool(toolFactory protocol.ToolFactory) {
	r.toolFactories[toolFactory.ID()] = toolFactory
}

// CreateTool resolves a tool reference and creates an instance with the
// given configuration.
func (r *Registry) CreateTool(toolRef string, config map[string]any) (protocol.Tool, error) {
	factory, ok := r.toolFactories[toolRef]
	if !ok {
		return nil, fmt.Errorf("tool %q not registered", toolRef)
	}

	return factory.Create(config)
}

// AvailableTools returns the registered tool references.
func (r *Registry) AvailableTools() []string {
	refs := make([]string, 0, len(r.toolFactories))
	for ref := range r.toolFactories {
		refs = append(refs, ref)
	}

	return refs
}
