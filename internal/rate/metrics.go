package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	remainingGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gotherm_rate_limit_remaining",
		Help: "Requests left in the provider's budget window",
	}, []string{"provider", "window"})

	retryAfterGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gotherm_rate_limit_retry_after_seconds",
		Help: "Cooldown imposed by the provider's last 429",
	}, []string{"provider"})

	lastStatusGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gotherm_rate_limit_last_status_code",
		Help: "Last HTTP status seen from the provider",
	}, []string{"provider"})

	rejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gotherm_rate_limit_rejected_total",
		Help: "Requests refused before reaching the provider",
	}, []string{"provider", "reason"})
)

// MetricsCollectors returns the package's collectors for registration.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{remainingGauge, retryAfterGauge, lastStatusGauge, rejectedTotal}
}
