package core

import (
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/gotherm/internal/oauth"
)

type fakePlugin struct {
	manifest   Manifest
	health     HealthStatus
	message    string
	dashboards []Dashboard
	collectors []prometheus.Collector
}

func (f fakePlugin) ID() string                          { return f.manifest.PluginID }
func (f fakePlugin) Manifest() Manifest                  { return f.manifest }
func (f fakePlugin) OAuthDeclaration() oauth.Declaration { return oauth.Declaration{} }
func (f fakePlugin) Dashboards() []Dashboard             { return f.dashboards }
func (f fakePlugin) RegisterHTTP(chi.Router)             {}
func (f fakePlugin) Collectors() []prometheus.Collector  { return f.collectors }
func (f fakePlugin) Health() HealthStatus                { return f.health }
func (f fakePlugin) HealthMessage() string               { return f.message }

func fake(id string) fakePlugin {
	return fakePlugin{
		manifest: Manifest{
			PluginID:    id,
			DisplayName: "Demo",
			Version:     "0.1.0",
			Routes:      []string{"/api/demo"},
		},
		health:     HealthHealthy,
		dashboards: []Dashboard{{Name: "overview", JSON: []byte(`{"title":"Overview"}`)}},
	}
}

func TestRegistryListPlugins(t *testing.T) {
	svc := NewRegistryService([]Plugin{fake("demo")})

	summaries := svc.ListPlugins()
	if len(summaries) != 1 {
		t.Fatalf("ListPlugins returned %d entries, want 1", len(summaries))
	}
	want := PluginSummary{PluginID: "demo", DisplayName: "Demo", Version: "0.1.0", Status: "HEALTHY"}
	if summaries[0] != want {
		t.Fatalf("summary = %+v, want %+v", summaries[0], want)
	}
}

func TestRegistryDescribePlugin(t *testing.T) {
	svc := NewRegistryService([]Plugin{fake("demo")})

	descriptor, ok := svc.DescribePlugin("demo")
	if !ok {
		t.Fatal("DescribePlugin(demo) reported not found")
	}
	if descriptor.PluginID != "demo" || descriptor.Status != "HEALTHY" {
		t.Fatalf("descriptor = %+v", descriptor)
	}
	if len(descriptor.Dashboards) != 1 || descriptor.Dashboards[0].Path != "/dashboards/demo/overview.json" {
		t.Fatalf("dashboards = %+v", descriptor.Dashboards)
	}

	if _, ok := svc.DescribePlugin("nope"); ok {
		t.Fatal("DescribePlugin(nope) found a plugin")
	}
}

func TestDashboardAssets(t *testing.T) {
	assets := DashboardAssets([]Plugin{fake("demo"), fake("other")})

	if len(assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(assets))
	}
	body, ok := assets["/dashboards/other/overview.json"]
	if !ok || string(body) != `{"title":"Overview"}` {
		t.Fatalf("asset lookup failed: ok=%v body=%s", ok, body)
	}
}

func TestMetricsRegistry(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "demo_events_total", Help: "test"})
	shared := prometheus.NewGauge(prometheus.GaugeOpts{Name: "daemon_up", Help: "test"})
	p := fake("demo")
	p.collectors = []prometheus.Collector{counter}

	reg := MetricsRegistry([]Plugin{p}, shared)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	if !names["demo_events_total"] || !names["daemon_up"] {
		t.Fatalf("registry missing expected families: %v", names)
	}
}

func TestFilterPlugins(t *testing.T) {
	compiled := []Plugin{fake("demo"), fake("extra")}

	active := FilterPlugins(compiled, map[string]bool{"demo": true}, false)
	if len(active) != 1 || active[0].ID() != "demo" {
		t.Fatalf("filtered plugins = %v", active)
	}

	if got := FilterPlugins(compiled, nil, true); len(got) != 2 {
		t.Fatalf("allowAll kept %d plugins, want 2", len(got))
	}
}

func TestValidateEnabledPlugins(t *testing.T) {
	compiled := []Plugin{fake("demo")}

	if err := ValidateEnabledPlugins(compiled, map[string]bool{"demo": true}, false); err != nil {
		t.Fatalf("valid selection rejected: %v", err)
	}
	if err := ValidateEnabledPlugins(compiled, map[string]bool{"ghost": true}, false); err == nil {
		t.Fatal("selection of uncompiled plugin accepted")
	}
}

func TestValidatePlugins(t *testing.T) {
	if err := ValidatePlugins([]Plugin{fake("demo")}); err != nil {
		t.Fatalf("valid plugin rejected: %v", err)
	}
	if err := ValidatePlugins([]Plugin{fake("Bad-ID")}); err == nil {
		t.Fatal("invalid plugin id accepted")
	}
	if err := ValidatePlugins([]Plugin{fake("demo"), fake("demo")}); err == nil {
		t.Fatal("duplicate plugin id accepted")
	}
}
