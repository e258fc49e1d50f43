// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/ottoflow/otto/pkg/registry"
	"github.com/ottoflow/otto/pkg/tools/httprequest"
	logtool "github.com/ottoflow/otto/pkg/tools/log"
	"github.com/ottoflow/otto/pkg/tools/transform"
)

func registerToolPlugins(reg *registry.Registry, pluginsPath string) {
	toolPlugins, err := reg.LoadToolPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range toolPlugins {
		reg.RegisterTool(plugin)
	}
}

func registerNativeTools(reg *registry.Registry, logger *slog.Logger) {
	reg.RegisterTool(httprequest.NewFactory(logger))
	reg.RegisterTool(transform.NewFactory(logger))
	reg.RegisterTool(logtool.NewFactory(logger))
}

// NewRegistry builds the tool registry: native tools plus any .so plugins
// found under pluginsPath.
func NewRegistry(logger *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(logger)

	if pluginsPath != "" {
		registerToolPlugins(reg, pluginsPath)
	}

	registerNativeTools(reg, logger)

	return reg
}
