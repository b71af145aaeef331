package plugins

import (
	"go.uber.org/zap"

	"github.com/joshp123/gotherm/internal/config"
	"github.com/joshp123/gotherm/internal/core"
	"github.com/joshp123/gotherm/plugins/netatmo"
)

func init() {
	Register(func(cfg *config.Config, log *zap.SugaredLogger) (core.Plugin, bool) {
		if cfg.Netatmo == nil {
			return nil, false
		}
		return netatmo.NewPlugin(cfg, log), true
	})
}
