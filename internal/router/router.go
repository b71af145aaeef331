// Package router assembles the daemon's HTTP surface: core endpoints plus
// the routes each plugin registers.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshp123/gotherm/internal/core"
)

// New builds the root router for the daemon.
func New(plugins []core.Plugin, registry *prometheus.Registry) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/dashboards/*", dashboardsHandler(core.DashboardAssets(plugins)))

	svc := core.NewRegistryService(plugins)
	r.Route("/api", func(r chi.Router) {
		r.Get("/core/plugins", listPluginsHandler(svc))
		r.Get("/core/plugins/{pluginID}", describePluginHandler(svc))

		for _, p := range plugins {
			p.RegisterHTTP(r)
		}
	})

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// dashboardsHandler serves embedded dashboard JSON keyed by the full
// request path, so plugin and dashboard names never touch the filesystem.
func dashboardsHandler(assets map[string][]byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := assets[r.URL.Path]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "dashboard not found"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

func listPluginsHandler(svc *core.RegistryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.ListPlugins())
	}
}

func describePluginHandler(svc *core.RegistryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		descriptor, ok := svc.DescribePlugin(chi.URLParam(r, "pluginID"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "plugin not found"})
			return
		}
		writeJSON(w, http.StatusOK, descriptor)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
