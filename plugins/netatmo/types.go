// Package netatmo maintains a live model of Netatmo Energy homes: topology
// from homesdata, status overlaid from homestatus, and commands back out.
package netatmo

// DeviceType tags a module with its hardware family.
type DeviceType string

const (
	DeviceValve               DeviceType = "NRV"
	DeviceThermostat          DeviceType = "NATherm1"
	DeviceOpenThermThermostat DeviceType = "OTM"
	DeviceRelay               DeviceType = "NAPlug"
	DeviceOpenThermRelay      DeviceType = "OTH"
	DeviceOutdoorCamera       DeviceType = "NOC"
	DeviceIndoorCamera        DeviceType = "NACamera"
	DeviceSmokeDetector       DeviceType = "NSD"
	DeviceSiren               DeviceType = "NIS"
	DeviceDoorTag             DeviceType = "NACamDoorTag"
	DeviceWeatherStation      DeviceType = "NAMain"
	DeviceOutdoorModule       DeviceType = "NAModule1"
	DeviceWindGauge           DeviceType = "NAModule2"
	DeviceRainGauge           DeviceType = "NAModule3"
	DeviceIndoorModule        DeviceType = "NAModule4"
	DeviceHomeCoach           DeviceType = "NHC"
	DeviceUnknown             DeviceType = "unknown"
)

var deviceTypes = map[string]DeviceType{
	"NRV":          DeviceValve,
	"NATherm1":     DeviceThermostat,
	"OTM":          DeviceOpenThermThermostat,
	"NAPlug":       DeviceRelay,
	"OTH":          DeviceOpenThermRelay,
	"NOC":          DeviceOutdoorCamera,
	"NACamera":     DeviceIndoorCamera,
	"NSD":          DeviceSmokeDetector,
	"NIS":          DeviceSiren,
	"NACamDoorTag": DeviceDoorTag,
	"NAMain":       DeviceWeatherStation,
	"NAModule1":    DeviceOutdoorModule,
	"NAModule2":    DeviceWindGauge,
	"NAModule3":    DeviceRainGauge,
	"NAModule4":    DeviceIndoorModule,
	"NHC":          DeviceHomeCoach,
}

// ParseDeviceType maps a raw type string onto a known device type. Types the
// API adds later come back as DeviceUnknown rather than failing the build.
func ParseDeviceType(raw string) DeviceType {
	if t, ok := deviceTypes[raw]; ok {
		return t
	}
	return DeviceUnknown
}

// Category groups device types into hardware families.
func (d DeviceType) Category() string {
	switch d {
	case DeviceValve:
		return "valve"
	case DeviceThermostat, DeviceOpenThermThermostat:
		return "thermostat"
	case DeviceRelay, DeviceOpenThermRelay:
		return "relay"
	case DeviceOutdoorCamera, DeviceIndoorCamera, DeviceSmokeDetector, DeviceSiren, DeviceDoorTag:
		return "camera"
	case DeviceWeatherStation, DeviceOutdoorModule, DeviceWindGauge, DeviceRainGauge, DeviceIndoorModule:
		return "weather"
	case DeviceHomeCoach:
		return "airquality"
	default:
		return "unknown"
	}
}

// Payload is one decoded API body, routed by shape: a "home" key carries a
// status update for a single home, a "homes" key carries full topology.
// Anything else is ignored.
type Payload struct {
	Home   *HomeStatus   `json:"home,omitempty"`
	Homes  []HomeData    `json:"homes,omitempty"`
	Errors []ModuleError `json:"errors,omitempty"`
}

// HomeData is one home descriptor in a homesdata payload.
type HomeData struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Modules   []ModuleData   `json:"modules"`
	Rooms     []RoomData     `json:"rooms"`
	Schedules []ScheduleData `json:"schedules"`
}

// ModuleData is one device descriptor in a homesdata payload.
type ModuleData struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	RoomID  *string  `json:"room_id"`
	Bridge  *string  `json:"bridge"`
	Bridged []string `json:"modules_bridged"`
}

// RoomData is one room descriptor in a homesdata payload.
type RoomData struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ModuleIDs []string `json:"module_ids"`
}

// ScheduleData is one schedule descriptor in a homesdata payload.
type ScheduleData struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Selected bool     `json:"selected"`
	AwayTemp *float64 `json:"away_temp"`
	HgTemp   *float64 `json:"hg_temp"`
}

// HomeStatus is the "home" object of a homestatus payload.
type HomeStatus struct {
	ID      string         `json:"id"`
	Modules []ModuleStatus `json:"modules"`
	Rooms   []RoomStatus   `json:"rooms"`
}

// ModuleStatus is one module entry in a homestatus payload. Fields the
// provider omits decode to their zero values, and applying the entry
// overwrites every status field, so omission means reset.
type ModuleStatus struct {
	ID           string  `json:"id"`
	Reachable    bool    `json:"reachable"`
	BoilerStatus *bool   `json:"boiler_status"`
	BatteryLevel *int    `json:"battery_level"`
	BatteryState *string `json:"battery_state"`
}

// RoomStatus is one room entry in a homestatus payload.
type RoomStatus struct {
	ID                  string   `json:"id"`
	Reachable           bool     `json:"reachable"`
	MeasuredTemperature *float64 `json:"therm_measured_temperature"`
	SetpointMode        *string  `json:"therm_setpoint_mode"`
	SetpointTemperature *float64 `json:"therm_setpoint_temperature"`
}

// ModuleError is one entry of a homestatus errors list. The provider sends
// these for modules it could not query; the affected module resets to its
// unreachable defaults.
type ModuleError struct {
	ID string `json:"id"`
}
