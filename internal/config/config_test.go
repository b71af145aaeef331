package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
schema_version: 1
core:
  http_addr: "127.0.0.1:9090"
oauth:
  blob_endpoint: "https://minio.example.net"
  blob_bucket: "gotherm-state"
  blob_access_key_file: "/run/secrets/minio-access"
  blob_secret_key_file: "/run/secrets/minio-secret"
mqtt:
  broker_url: "mqtt://broker.local:1883"
netatmo:
  bootstrap_file: "/etc/gotherm/netatmo-bootstrap.json"
  state_file: "/var/lib/gotherm/oauth/netatmo.json"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Core.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("http_addr = %q, want 127.0.0.1:9090", cfg.Core.HTTPAddr)
	}
	if cfg.Core.DashboardDir != DefaultDashboardDir {
		t.Errorf("dashboard_dir = %q, want default", cfg.Core.DashboardDir)
	}
	if cfg.Core.LogLevel != DefaultLogLevel {
		t.Errorf("log_level = %q, want default", cfg.Core.LogLevel)
	}
	if cfg.OAuth.BlobPrefix != DefaultOAuthPrefix {
		t.Errorf("blob_prefix = %q, want default", cfg.OAuth.BlobPrefix)
	}
	if cfg.OAuth.RefreshEnabled == nil || !*cfg.OAuth.RefreshEnabled {
		t.Error("refresh_enabled should default to true")
	}
	if cfg.OAuth.RefreshIntervalSeconds != DefaultOAuthRefreshIntervalSeconds {
		t.Errorf("refresh_interval_seconds = %d, want default", cfg.OAuth.RefreshIntervalSeconds)
	}
	if cfg.MQTT.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("topic_prefix = %q, want default", cfg.MQTT.TopicPrefix)
	}
	if cfg.Netatmo == nil {
		t.Fatal("netatmo section should be present")
	}
	if cfg.Netatmo.BootstrapFile != "/etc/gotherm/netatmo-bootstrap.json" {
		t.Errorf("bootstrap_file = %q", cfg.Netatmo.BootstrapFile)
	}
}

func TestLoadRejectsWrongSchemaVersion(t *testing.T) {
	if _, err := Load(writeConfig(t, "schema_version: 2\n")); err == nil {
		t.Fatal("expected schema_version error")
	}
}

func TestLoadRequiresNetatmoBootstrap(t *testing.T) {
	contents := `
schema_version: 1
netatmo:
  base_url: "https://api.netatmo.com"
`
	if _, err := Load(writeConfig(t, contents)); err == nil {
		t.Fatal("expected bootstrap_file error")
	}
}

func TestLoadRequiresBlobStoreWhenNetatmoEnabled(t *testing.T) {
	contents := `
schema_version: 1
netatmo:
  bootstrap_file: "/etc/gotherm/netatmo-bootstrap.json"
`
	if _, err := Load(writeConfig(t, contents)); err == nil {
		t.Fatal("expected oauth blob config error")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GOTHERM_CORE_HTTP_ADDR", "0.0.0.0:7070")
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Core.HTTPAddr != "0.0.0.0:7070" {
		t.Errorf("http_addr = %q, want env override", cfg.Core.HTTPAddr)
	}
}

func TestEnabledPlugins(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	enabled := EnabledPlugins(cfg)
	if !enabled["netatmo"] {
		t.Error("netatmo should be enabled when its section is present")
	}

	if got := EnabledPlugins(&Config{SchemaVersion: 1}); got["netatmo"] {
		t.Error("netatmo should be disabled without its section")
	}
}

func TestBootstrapPathForProvider(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	path, err := BootstrapPathForProvider(cfg, "netatmo")
	if err != nil {
		t.Fatalf("BootstrapPathForProvider: %v", err)
	}
	if path != "/etc/gotherm/netatmo-bootstrap.json" {
		t.Errorf("path = %q", path)
	}

	if _, err := BootstrapPathForProvider(cfg, "hue"); err == nil {
		t.Error("expected error for unknown provider")
	}
}
