package oauth

import (
	"time"

	"github.com/joshp123/gotherm/internal/config"
)

const DefaultRefreshInterval = 10 * time.Minute

// RefreshInterval maps the oauth config section onto a ticker interval.
// Zero means the refresh loop is disabled outright.
func RefreshInterval(cfg config.OAuthConfig) time.Duration {
	if cfg.RefreshEnabled != nil && !*cfg.RefreshEnabled {
		return 0
	}
	if cfg.RefreshIntervalSeconds <= 0 {
		return DefaultRefreshInterval
	}
	return time.Duration(cfg.RefreshIntervalSeconds) * time.Second
}
