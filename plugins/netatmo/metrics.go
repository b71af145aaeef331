package netatmo

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes climate state as Prometheus metrics. Each scrape
// runs one refresh cycle; the rate guard's cache keeps scrapes from
// spending provider budget the poll loop already spent.
type MetricsCollector struct {
	client *Client

	roomMeasured  *prometheus.GaugeVec
	roomSetpoint  *prometheus.GaugeVec
	roomMode      *prometheus.GaugeVec
	roomReachable *prometheus.GaugeVec

	moduleReachable *prometheus.GaugeVec
	batteryLevel    *prometheus.GaugeVec
	batteryState    *prometheus.GaugeVec
	boilerActive    *prometheus.GaugeVec

	frostGuardTemp *prometheus.GaugeVec
	awayTemp       *prometheus.GaugeVec

	success     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

func NewMetricsCollector(client *Client) *MetricsCollector {
	homeLabels := []string{"home_id", "home_name"}
	roomLabels := []string{"home_id", "home_name", "room_id", "room_name"}
	moduleLabels := []string{"home_id", "home_name", "module_id", "module_name", "device_type"}

	return &MetricsCollector{
		client: client,
		roomMeasured: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_room_measured_temperature_celsius",
			Help: "Measured room temperature",
		}, roomLabels),
		roomSetpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_room_setpoint_temperature_celsius",
			Help: "Room setpoint temperature",
		}, roomLabels),
		roomMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_room_setpoint_mode",
			Help: "Room setpoint mode (1 for the active mode)",
		}, append(append([]string{}, roomLabels...), "mode")),
		roomReachable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_room_reachable_bool",
			Help: "Room reachability",
		}, roomLabels),
		moduleReachable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_module_reachable_bool",
			Help: "Module reachability",
		}, moduleLabels),
		batteryLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_module_battery_level_millivolts",
			Help: "Module battery level",
		}, moduleLabels),
		batteryState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_module_battery_state",
			Help: "Module battery state (1 for the reported state)",
		}, append(append([]string{}, moduleLabels...), "state")),
		boilerActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_module_boiler_active_bool",
			Help: "Boiler actively heating",
		}, moduleLabels),
		frostGuardTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_home_frost_guard_temperature_celsius",
			Help: "Frost-guard temperature of the selected schedule",
		}, homeLabels),
		awayTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_home_away_temperature_celsius",
			Help: "Away temperature of the selected schedule",
		}, homeLabels),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_scrape_success",
			Help: "Whether the last refresh succeeded",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gotherm_netatmo_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.roomMeasured.Describe(ch)
	c.roomSetpoint.Describe(ch)
	c.roomMode.Describe(ch)
	c.roomReachable.Describe(ch)
	c.moduleReachable.Describe(ch)
	c.batteryLevel.Describe(ch)
	c.batteryState.Describe(ch)
	c.boilerActive.Describe(ch)
	c.frostGuardTemp.Describe(ch)
	c.awayTemp.Describe(ch)
	c.success.Describe(ch)
	c.lastSuccess.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.client.Update(ctx); err != nil {
		c.success.Set(0)
		c.collectAll(ch)
		return
	}

	c.roomMeasured.Reset()
	c.roomSetpoint.Reset()
	c.roomMode.Reset()
	c.roomReachable.Reset()
	c.moduleReachable.Reset()
	c.batteryLevel.Reset()
	c.batteryState.Reset()
	c.boilerActive.Reset()
	c.frostGuardTemp.Reset()
	c.awayTemp.Reset()

	for _, home := range c.client.Views() {
		if home.FrostGuardTemperature != nil {
			c.frostGuardTemp.WithLabelValues(home.ID, home.Name).Set(*home.FrostGuardTemperature)
		}
		if home.AwayTemperature != nil {
			c.awayTemp.WithLabelValues(home.ID, home.Name).Set(*home.AwayTemperature)
		}

		for _, room := range home.Rooms {
			labels := []string{home.ID, home.Name, room.ID, room.Name}
			c.roomReachable.WithLabelValues(labels...).Set(boolToFloat(room.Reachable))
			if room.MeasuredTemperature != nil {
				c.roomMeasured.WithLabelValues(labels...).Set(*room.MeasuredTemperature)
			}
			if room.SetpointTemperature != nil {
				c.roomSetpoint.WithLabelValues(labels...).Set(*room.SetpointTemperature)
			}
			if room.SetpointMode != nil {
				c.roomMode.WithLabelValues(append(append([]string{}, labels...), *room.SetpointMode)...).Set(1)
			}
		}

		for _, module := range home.Modules {
			labels := []string{home.ID, home.Name, module.ID, module.Name, module.DeviceType}
			c.moduleReachable.WithLabelValues(labels...).Set(boolToFloat(module.Reachable))
			if module.BatteryLevel != nil {
				c.batteryLevel.WithLabelValues(labels...).Set(float64(*module.BatteryLevel))
			}
			if module.BatteryState != nil {
				c.batteryState.WithLabelValues(append(append([]string{}, labels...), *module.BatteryState)...).Set(1)
			}
			if module.BoilerStatus != nil {
				c.boilerActive.WithLabelValues(labels...).Set(boolToFloat(*module.BoilerStatus))
			}
		}
	}

	c.success.Set(1)
	c.lastSuccess.Set(float64(time.Now().Unix()))
	c.collectAll(ch)
}

func (c *MetricsCollector) collectAll(ch chan<- prometheus.Metric) {
	c.roomMeasured.Collect(ch)
	c.roomSetpoint.Collect(ch)
	c.roomMode.Collect(ch)
	c.roomReachable.Collect(ch)
	c.moduleReachable.Collect(ch)
	c.batteryLevel.Collect(ch)
	c.batteryState.Collect(ch)
	c.boilerActive.Collect(ch)
	c.frostGuardTemp.Collect(ch)
	c.awayTemp.Collect(ch)
	c.success.Collect(ch)
	c.lastSuccess.Collect(ch)
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
