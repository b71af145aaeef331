package netatmo

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/joshp123/gotherm/internal/config"
	"github.com/joshp123/gotherm/internal/core"
	"github.com/joshp123/gotherm/internal/mqtt"
	"github.com/joshp123/gotherm/internal/oauth"
)

//go:embed dashboard.json
var dashboardJSON []byte

// Plugin implements the gotherm plugin contract.
type Plugin struct {
	cfg           Config
	client        *Client
	service       *Service
	pub           mqtt.Publisher
	health        core.HealthStatus
	healthMessage string
}

// NewPlugin constructs the Netatmo plugin from daemon configuration.
func NewPlugin(cfg *config.Config, log *zap.SugaredLogger) Plugin {
	pluginCfg, err := ConfigFrom(cfg)
	if err != nil {
		return Plugin{health: core.HealthError, healthMessage: err.Error()}
	}

	client, err := NewClient(pluginCfg, cfg.OAuth)
	if err != nil {
		return Plugin{cfg: pluginCfg, health: core.HealthError, healthMessage: err.Error()}
	}

	health := core.HealthHealthy
	healthMessage := ""
	var pub mqtt.Publisher
	if cfg.MQTT.BrokerURL != "" {
		mqttClient, err := mqtt.Connect(cfg.MQTT, log)
		if err != nil {
			health = core.HealthDegraded
			healthMessage = fmt.Sprintf("mqtt: %v", err)
		} else {
			pub = mqttClient
		}
	}

	service := NewService(client, log, pub, cfg.MQTT.TopicPrefix, pluginCfg.RefreshEvery)

	return Plugin{
		cfg:           pluginCfg,
		client:        client,
		service:       service,
		pub:           pub,
		health:        health,
		healthMessage: healthMessage,
	}
}

func (p Plugin) ID() string {
	return "netatmo"
}

func (p Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "netatmo",
		DisplayName: "Netatmo Energy",
		Version:     "0.1.0",
		Routes:      []string{"/api/netatmo"},
	}
}

func (p Plugin) OAuthDeclaration() oauth.Declaration {
	return OAuthDeclaration(p.cfg)
}

func (p Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "netatmo-overview", JSON: dashboardJSON}}
}

func (p Plugin) RegisterHTTP(r chi.Router) {
	if p.service == nil {
		return
	}
	p.service.RegisterRoutes(r)
}

func (p Plugin) Collectors() []prometheus.Collector {
	if p.client == nil {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.client)}
}

func (p Plugin) Health() core.HealthStatus {
	return p.health
}

func (p Plugin) HealthMessage() string {
	return p.healthMessage
}

// Run drives the poll loop until shutdown, then drops the broker
// connection.
func (p Plugin) Run(ctx context.Context) {
	if p.service == nil {
		return
	}
	p.service.Run(ctx)
	if p.pub != nil {
		p.pub.Close()
	}
}
