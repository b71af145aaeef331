package netatmo

import (
	"fmt"
	"time"

	"github.com/joshp123/gotherm/internal/config"
	"github.com/joshp123/gotherm/internal/oauth"
	"github.com/joshp123/gotherm/internal/rate"
)

const (
	defaultBaseURL   = "https://api.netatmo.com"
	authorizeURL     = "https://api.netatmo.com/oauth2/authorize"
	tokenURL         = "https://api.netatmo.com/oauth2/token"
	oauthScope       = "read_thermostat write_thermostat"
	defaultStateFile = "/var/lib/gotherm/oauth/netatmo.json"

	defaultRefreshEvery = 5 * time.Minute
)

// Config defines runtime configuration for the Netatmo plugin.
type Config struct {
	BaseURL       string
	BootstrapFile string
	StatePath     string
	RefreshEvery  time.Duration
}

// ConfigFrom extracts and defaults the plugin config from the daemon config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	if cfg == nil || cfg.Netatmo == nil {
		return Config{}, fmt.Errorf("netatmo config is required")
	}
	if cfg.Netatmo.BootstrapFile == "" {
		return Config{}, fmt.Errorf("netatmo bootstrap_file is required")
	}

	out := Config{
		BaseURL:       cfg.Netatmo.BaseURL,
		BootstrapFile: cfg.Netatmo.BootstrapFile,
		StatePath:     cfg.Netatmo.StateFile,
		RefreshEvery:  time.Duration(cfg.Netatmo.RefreshIntervalSeconds) * time.Second,
	}
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}
	if out.StatePath == "" {
		out.StatePath = defaultStateFile
	}
	if out.RefreshEvery <= 0 {
		out.RefreshEvery = defaultRefreshEvery
	}
	return out, nil
}

// OAuthDeclaration describes the provider's auth-code flow.
func OAuthDeclaration(cfg Config) oauth.Declaration {
	return oauth.Declaration{
		Provider:     "netatmo",
		AuthorizeURL: authorizeURL,
		TokenURL:     tokenURL,
		Scope:        oauthScope,
		StatePath:    cfg.StatePath,
	}
}

// rateLimits declares the provider's published budgets: 50 requests per
// 10 seconds burst and 500 per hour sustained. The short cache folds
// scrape-triggered fetches into the poll loop's.
func rateLimits() rate.Declaration {
	return rate.Provider("netatmo").
		MaxRequestsPer(rate.TenSeconds, 50).
		MaxRequestsPer(rate.Hour, 500).
		CacheFor(10 * time.Second)
}
