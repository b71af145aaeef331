package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	SchemaVersion                      = 1
	DefaultPath                        = "/etc/gotherm/config.yaml"
	DefaultHTTPAddr                    = "0.0.0.0:8080"
	DefaultDashboardDir                = "/var/lib/gotherm/dashboards"
	DefaultLogLevel                    = "info"
	DefaultOAuthPrefix                 = "gotherm/oauth"
	DefaultOAuthRefreshIntervalSeconds = 600
	DefaultTopicPrefix                 = "gotherm"
	DefaultMQTTClientID                = "gotherm"

	// EnvPrefix scopes environment overrides, e.g. GOTHERM_CORE_HTTP_ADDR.
	EnvPrefix = "GOTHERM"
)

// Config is the root of the daemon configuration tree.
type Config struct {
	SchemaVersion int            `mapstructure:"schema_version"`
	Core          CoreConfig     `mapstructure:"core"`
	OAuth         OAuthConfig    `mapstructure:"oauth"`
	MQTT          MQTTConfig     `mapstructure:"mqtt"`
	Netatmo       *NetatmoConfig `mapstructure:"netatmo"`
}

// CoreConfig controls the shared daemon surfaces.
type CoreConfig struct {
	HTTPAddr     string `mapstructure:"http_addr"`
	DashboardDir string `mapstructure:"dashboard_dir"`
	LogLevel     string `mapstructure:"log_level"`
}

// OAuthConfig controls token refresh and remote state persistence.
type OAuthConfig struct {
	BlobEndpoint           string `mapstructure:"blob_endpoint"`
	BlobBucket             string `mapstructure:"blob_bucket"`
	BlobPrefix             string `mapstructure:"blob_prefix"`
	BlobRegion             string `mapstructure:"blob_region"`
	BlobAccessKeyFile      string `mapstructure:"blob_access_key_file"`
	BlobSecretKeyFile      string `mapstructure:"blob_secret_key_file"`
	RefreshEnabled         *bool  `mapstructure:"refresh_enabled"`
	RefreshIntervalSeconds int    `mapstructure:"refresh_interval_seconds"`
}

// MQTTConfig controls the retained state feed. An empty broker URL disables it.
type MQTTConfig struct {
	BrokerURL   string `mapstructure:"broker_url"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// NetatmoConfig enables the netatmo plugin when the section is present.
type NetatmoConfig struct {
	BaseURL                string `mapstructure:"base_url"`
	BootstrapFile          string `mapstructure:"bootstrap_file"`
	StateFile              string `mapstructure:"state_file"`
	RefreshIntervalSeconds int    `mapstructure:"refresh_interval_seconds"`
}

// Load parses the yaml config file, applies env overrides and defaults, and
// validates. A missing file is tolerated so env-only setups keep working.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("core.http_addr", DefaultHTTPAddr)
	v.SetDefault("core.dashboard_dir", DefaultDashboardDir)
	v.SetDefault("core.log_level", DefaultLogLevel)
	v.SetDefault("oauth.blob_prefix", DefaultOAuthPrefix)
	v.SetDefault("oauth.refresh_interval_seconds", DefaultOAuthRefreshIntervalSeconds)
	v.SetDefault("mqtt.topic_prefix", DefaultTopicPrefix)
	v.SetDefault("mqtt.client_id", DefaultMQTTClientID)
	// No netatmo.* defaults here: plugin presence is keyed off the section
	// existing at all, and a default would materialize it in every config.
}

func applyDefaults(cfg *Config) {
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}
	if cfg.Core.LogLevel == "" {
		cfg.Core.LogLevel = DefaultLogLevel
	}

	if cfg.OAuth.BlobPrefix == "" {
		cfg.OAuth.BlobPrefix = DefaultOAuthPrefix
	}
	if cfg.OAuth.RefreshEnabled == nil {
		enabled := true
		cfg.OAuth.RefreshEnabled = &enabled
	}
	if cfg.OAuth.RefreshIntervalSeconds == 0 {
		cfg.OAuth.RefreshIntervalSeconds = DefaultOAuthRefreshIntervalSeconds
	}

	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultMQTTClientID
	}
}

// Validate enforces required invariants beyond yaml typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	if cfg.Core.DashboardDir == "" {
		return fmt.Errorf("core.dashboard_dir is required")
	}

	if cfg.Netatmo != nil {
		if cfg.Netatmo.BootstrapFile == "" {
			return fmt.Errorf("netatmo.bootstrap_file is required")
		}
		if cfg.OAuth.BlobEndpoint == "" {
			return fmt.Errorf("oauth.blob_endpoint is required")
		}
		if cfg.OAuth.BlobBucket == "" {
			return fmt.Errorf("oauth.blob_bucket is required")
		}
		if cfg.OAuth.BlobAccessKeyFile == "" {
			return fmt.Errorf("oauth.blob_access_key_file is required")
		}
		if cfg.OAuth.BlobSecretKeyFile == "" {
			return fmt.Errorf("oauth.blob_secret_key_file is required")
		}
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Netatmo != nil {
		enabled["netatmo"] = true
	}
	return enabled
}

// BootstrapPathForProvider resolves the bootstrap file path from config.
func BootstrapPathForProvider(cfg *Config, provider string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("config is required")
	}
	switch provider {
	case "netatmo":
		if cfg.Netatmo == nil || cfg.Netatmo.BootstrapFile == "" {
			return "", fmt.Errorf("netatmo bootstrap_file is required")
		}
		return cfg.Netatmo.BootstrapFile, nil
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}
}
