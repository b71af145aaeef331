package netatmo

import "sort"

// HomeView is a deep-copied snapshot of one home, safe to hold across
// later reconciliations. Collections are sorted by id for stable output.
type HomeView struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	Rooms                 []RoomView     `json:"rooms"`
	Modules               []ModuleView   `json:"modules"`
	Schedules             []ScheduleView `json:"schedules"`
	FrostGuardTemperature *float64       `json:"frost_guard_temperature,omitempty"`
	AwayTemperature       *float64       `json:"away_temperature,omitempty"`
}

// RoomView is a deep-copied snapshot of one room.
type RoomView struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	HomeID              string   `json:"home_id"`
	ModuleIDs           []string `json:"module_ids,omitempty"`
	Reachable           bool     `json:"reachable"`
	MeasuredTemperature *float64 `json:"measured_temperature,omitempty"`
	SetpointMode        *string  `json:"setpoint_mode,omitempty"`
	SetpointTemperature *float64 `json:"setpoint_temperature,omitempty"`
	HeatingPowerRequest *int     `json:"heating_power_request,omitempty"`
}

// ModuleView is a deep-copied snapshot of one module.
type ModuleView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	HomeID       string   `json:"home_id"`
	DeviceType   string   `json:"device_type"`
	Category     string   `json:"category"`
	RoomID       *string  `json:"room_id,omitempty"`
	Bridge       *string  `json:"bridge,omitempty"`
	Bridged      []string `json:"modules_bridged,omitempty"`
	Reachable    bool     `json:"reachable"`
	BoilerStatus *bool    `json:"boiler_status,omitempty"`
	BatteryLevel *int     `json:"battery_level,omitempty"`
	BatteryState *string  `json:"battery_state,omitempty"`
}

// ScheduleView is a snapshot of one schedule.
type ScheduleView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	HomeID   string   `json:"home_id"`
	Selected bool     `json:"selected"`
	AwayTemp *float64 `json:"away_temp,omitempty"`
	HgTemp   *float64 `json:"hg_temp,omitempty"`
}

func (h *Home) view() HomeView {
	view := HomeView{
		ID:                    h.ID,
		Name:                  h.Name,
		Rooms:                 make([]RoomView, 0, len(h.Rooms)),
		Modules:               make([]ModuleView, 0, len(h.Modules)),
		Schedules:             make([]ScheduleView, 0, len(h.Schedules)),
		FrostGuardTemperature: clonePtr(h.HgTemp()),
		AwayTemperature:       clonePtr(h.AwayTemp()),
	}

	for _, room := range h.Rooms {
		view.Rooms = append(view.Rooms, room.view())
	}
	for _, module := range h.Modules {
		view.Modules = append(view.Modules, module.view())
	}
	for _, schedule := range h.Schedules {
		view.Schedules = append(view.Schedules, schedule.view())
	}

	sort.Slice(view.Rooms, func(i, j int) bool { return view.Rooms[i].ID < view.Rooms[j].ID })
	sort.Slice(view.Modules, func(i, j int) bool { return view.Modules[i].ID < view.Modules[j].ID })
	sort.Slice(view.Schedules, func(i, j int) bool { return view.Schedules[i].ID < view.Schedules[j].ID })

	return view
}

func (r *Room) view() RoomView {
	return RoomView{
		ID:                  r.ID,
		Name:                r.Name,
		HomeID:              r.home.ID,
		ModuleIDs:           append([]string(nil), r.ModuleIDs...),
		Reachable:           r.Reachable,
		MeasuredTemperature: clonePtr(r.MeasuredTemperature),
		SetpointMode:        clonePtr(r.SetpointMode),
		SetpointTemperature: clonePtr(r.SetpointTemperature),
		HeatingPowerRequest: clonePtr(r.HeatingPowerRequest),
	}
}

func (m *Module) view() ModuleView {
	return ModuleView{
		ID:           m.ID,
		Name:         m.Name,
		HomeID:       m.home.ID,
		DeviceType:   string(m.Type),
		Category:     m.Type.Category(),
		RoomID:       clonePtr(m.RoomID),
		Bridge:       clonePtr(m.Bridge),
		Bridged:      append([]string(nil), m.Bridged...),
		Reachable:    m.Reachable,
		BoilerStatus: clonePtr(m.BoilerStatus),
		BatteryLevel: clonePtr(m.BatteryLevel),
		BatteryState: clonePtr(m.BatteryState),
	}
}

func (s *Schedule) view() ScheduleView {
	return ScheduleView{
		ID:       s.ID,
		Name:     s.Name,
		HomeID:   s.HomeID,
		Selected: s.Selected,
		AwayTemp: clonePtr(s.AwayTemp),
		HgTemp:   clonePtr(s.HgTemp),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
