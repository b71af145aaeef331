package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// DashboardPath returns the URL path a dashboard asset is served under.
func DashboardPath(pluginID, name string) string {
	return "/dashboards/" + pluginID + "/" + name + ".json"
}

// DashboardAssets maps served URL paths to embedded dashboard JSON for
// every plugin.
func DashboardAssets(plugins []Plugin) map[string][]byte {
	assets := make(map[string][]byte)
	for _, p := range plugins {
		id := p.Manifest().PluginID
		for _, dash := range p.Dashboards() {
			assets[DashboardPath(id, dash.Name)] = dash.JSON
		}
	}
	return assets
}

// WriteDashboards exports each plugin's dashboards under dir, one
// subdirectory per plugin, for Grafana file provisioning. A blank dir
// disables the export.
func WriteDashboards(dir string, plugins []Plugin) error {
	if dir == "" {
		return nil
	}
	for _, p := range plugins {
		sub := filepath.Join(dir, p.Manifest().PluginID)
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("dashboard dir %s: %w", sub, err)
		}
		for _, dash := range p.Dashboards() {
			file := filepath.Join(sub, dash.Name+".json")
			if err := os.WriteFile(file, dash.JSON, 0o644); err != nil {
				return fmt.Errorf("dashboard %s: %w", file, err)
			}
		}
	}
	return nil
}
