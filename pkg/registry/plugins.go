package registry

import (
	"io/fs"
	"log/slog"
	"os"
	"plugin"

	"github.com/ottoflow/otto/pkg/protocol"
)

// LoadToolPlugins loads ToolFactory plugins from .so files under
// pluginsPath/tools. Each plugin must export a "Tool" symbol implementing
// protocol.ToolFactory.
func (r *Registry) LoadToolPlugins(pluginsPath string) ([]protocol.ToolFactory, error) {
	rootPath := pluginsPath + "/tools"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := r.logger.With(slog.String("path", pluginsPath))
	l.Info("Loading tool plugins")

	factories := make([]protocol.ToolFactory, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			panic(err)
		}

		symbol, err := plg.Lookup("Tool")
		if err != nil {
			panic(err)
		}

		factory, ok := symbol.(protocol.ToolFactory)
		if !ok {
			panic("Could not cast plugin symbol to ToolFactory")
		}

		factories = append(factories, factory)

		l.Info("Loaded tool plugin", slog.String("plugin", p))
	}

	return factories, nil
}
