// Package plugins holds the compile-time plugin registry. Each plugin
// package registers a factory from an init func; importing the package
// is what compiles the plugin into the build.
package plugins

import (
	"go.uber.org/zap"

	"github.com/joshp123/gotherm/internal/config"
	"github.com/joshp123/gotherm/internal/core"
)

// Factory builds a plugin instance from the loaded config. Returning
// ok=false skips the plugin, used when its config section is absent.
type Factory func(*config.Config, *zap.SugaredLogger) (core.Plugin, bool)

var factories []Factory

// Register adds a factory to the build's registry. Called from plugin
// package init funcs only.
func Register(f Factory) {
	factories = append(factories, f)
}

// Compiled instantiates every registered plugin that accepts cfg.
func Compiled(cfg *config.Config, log *zap.SugaredLogger) []core.Plugin {
	if cfg == nil {
		return nil
	}
	var built []core.Plugin
	for _, f := range factories {
		if p, ok := f(cfg, log); ok {
			built = append(built, p)
		}
	}
	return built
}
