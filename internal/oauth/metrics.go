package oauth

import "github.com/prometheus/client_golang/prometheus"

var (
	refreshSuccess = counter("gotherm_oauth_refresh_success_total", "Successful token refreshes")
	refreshFailure = counter("gotherm_oauth_refresh_failure_total", "Failed token refreshes")
	scopeMismatch  = counter("gotherm_oauth_scope_mismatch_total", "Persisted state rejected for a scope mismatch")

	tokenValid      = gauge("gotherm_oauth_token_valid", "Access token validity (1=valid)")
	remotePersistOK = gauge("gotherm_oauth_remote_persist_ok", "Blob mirror health (1=ok)")
)

func counter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{"provider"})
}

func gauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"provider"})
}

// MetricsCollectors returns the package's collectors for registration.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{refreshSuccess, refreshFailure, scopeMismatch, tokenValid, remotePersistOK}
}
