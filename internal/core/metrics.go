package core

import "github.com/prometheus/client_golang/prometheus"

// MetricsRegistry assembles the daemon's Prometheus registry from every
// plugin's collectors plus any shared daemon-level collectors.
func MetricsRegistry(plugins []Plugin, shared ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(shared...)
	for _, p := range plugins {
		reg.MustRegister(p.Collectors()...)
	}
	return reg
}
