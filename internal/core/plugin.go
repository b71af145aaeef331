// Package core defines the plugin contract and the daemon-side plumbing
// shared by every plugin: discovery, metrics aggregation, and dashboard
// provisioning.
package core

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/gotherm/internal/oauth"
)

// Plugin is the compile-time contract every gotherm plugin satisfies.
// Instances are constructed once at startup and live for the process.
type Plugin interface {
	// ID is the stable identifier, equal to Manifest().PluginID.
	ID() string
	Manifest() Manifest
	// OAuthDeclaration describes the provider credentials this plugin
	// needs. Zero value means no OAuth.
	OAuthDeclaration() oauth.Declaration
	Dashboards() []Dashboard
	// RegisterHTTP mounts the plugin's routes under /api.
	RegisterHTTP(chi.Router)
	Collectors() []prometheus.Collector
	Health() HealthStatus
	HealthMessage() string
}

// Runner is the optional half of the contract for plugins with background
// work such as periodic provider polling. The daemon gives each Runner its
// own goroutine and cancels ctx on shutdown.
type Runner interface {
	Run(ctx context.Context)
}

// Manifest carries the discovery metadata a plugin reports about itself.
type Manifest struct {
	PluginID    string
	DisplayName string
	Version     string
	Routes      []string
}

// Dashboard is an embedded Grafana dashboard asset.
type Dashboard struct {
	Name string
	JSON []byte
}

// HealthStatus is a plugin's self-reported condition.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)
