package netatmo

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const testTopology = `{
  "homes": [
    {
      "id": "home-1",
      "name": "Main House",
      "modules": [
        {"id": "relay-1", "name": "Boiler Relay", "type": "NAPlug", "modules_bridged": ["valve-1", "therm-1"]},
        {"id": "valve-1", "name": "Living Valve", "type": "NRV", "room_id": "room-1", "bridge": "relay-1"},
        {"id": "therm-1", "name": "Bedroom Thermostat", "type": "NATherm1", "room_id": "room-2", "bridge": "relay-1"}
      ],
      "rooms": [
        {"id": "room-1", "name": "Living Room", "module_ids": ["valve-1", "ghost"]},
        {"id": "room-2", "name": "Bedroom", "module_ids": ["therm-1"]}
      ],
      "schedules": [
        {"id": "sched-1", "name": "Winter", "selected": true, "away_temp": 14, "hg_temp": 7},
        {"id": "sched-2", "name": "Summer", "away_temp": 16, "hg_temp": 8}
      ]
    }
  ]
}`

const testStatus = `{
  "home": {
    "id": "home-1",
    "modules": [
      {"id": "relay-1", "reachable": true},
      {"id": "valve-1", "reachable": true, "battery_level": 3200, "battery_state": "high"},
      {"id": "therm-1", "reachable": true, "boiler_status": true, "battery_level": 4100, "battery_state": "full"}
    ],
    "rooms": [
      {"id": "room-1", "reachable": true, "therm_measured_temperature": 20.5, "therm_setpoint_mode": "schedule", "therm_setpoint_temperature": 21.0},
      {"id": "room-2", "reachable": true, "therm_measured_temperature": 18.0, "therm_setpoint_mode": "manual", "therm_setpoint_temperature": 19.5}
    ]
  }
}`

func decodePayload(t *testing.T, raw string) Payload {
	t.Helper()
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return p
}

func newTestClimate(t *testing.T) *Climate {
	t.Helper()
	c := NewClimate()
	if err := c.Process(decodePayload(t, testTopology)); err != nil {
		t.Fatalf("process topology: %v", err)
	}
	return c
}

func homeView(t *testing.T, c *Climate, id string) HomeView {
	t.Helper()
	view, ok := c.View(id)
	if !ok {
		t.Fatalf("home %s not in registry", id)
	}
	return view
}

func moduleView(t *testing.T, home HomeView, id string) ModuleView {
	t.Helper()
	for _, m := range home.Modules {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("module %s not in view", id)
	return ModuleView{}
}

func roomView(t *testing.T, home HomeView, id string) RoomView {
	t.Helper()
	for _, r := range home.Rooms {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("room %s not in view", id)
	return RoomView{}
}

func TestTopologyBuild(t *testing.T) {
	c := newTestClimate(t)

	home := homeView(t, c, "home-1")
	if home.Name != "Main House" {
		t.Fatalf("unexpected home name: %s", home.Name)
	}
	if len(home.Modules) != 3 || len(home.Rooms) != 2 || len(home.Schedules) != 2 {
		t.Fatalf("unexpected graph sizes: %d modules, %d rooms, %d schedules",
			len(home.Modules), len(home.Rooms), len(home.Schedules))
	}

	relay := moduleView(t, home, "relay-1")
	if relay.DeviceType != "NAPlug" || relay.Category != "relay" {
		t.Fatalf("unexpected relay typing: %s/%s", relay.DeviceType, relay.Category)
	}
	if relay.Reachable {
		t.Fatalf("modules must start unreachable")
	}
	if len(relay.Bridged) != 2 {
		t.Fatalf("unexpected bridged list: %v", relay.Bridged)
	}

	living := roomView(t, home, "room-1")
	if living.Reachable {
		t.Fatalf("rooms must start unreachable")
	}
	if len(living.ModuleIDs) != 1 || living.ModuleIDs[0] != "valve-1" {
		t.Fatalf("module ids not filtered against topology: %v", living.ModuleIDs)
	}

	if home.FrostGuardTemperature == nil || *home.FrostGuardTemperature != 7 {
		t.Fatalf("unexpected frost guard temperature: %v", home.FrostGuardTemperature)
	}
	if home.AwayTemperature == nil || *home.AwayTemperature != 14 {
		t.Fatalf("unexpected away temperature: %v", home.AwayTemperature)
	}
}

func TestTopologyDefaultsHomeName(t *testing.T) {
	c := NewClimate()
	if err := c.Process(decodePayload(t, `{"homes": [{"id": "home-2"}]}`)); err != nil {
		t.Fatalf("process topology: %v", err)
	}
	if home := homeView(t, c, "home-2"); home.Name != "Unknown" {
		t.Fatalf("unexpected default name: %s", home.Name)
	}
}

func TestTopologyReplacesRegistry(t *testing.T) {
	c := newTestClimate(t)
	if err := c.Process(decodePayload(t, `{"homes": [{"id": "home-2", "name": "Cabin"}]}`)); err != nil {
		t.Fatalf("process replacement topology: %v", err)
	}

	if _, ok := c.View("home-1"); ok {
		t.Fatalf("old home survived a topology rebuild")
	}
	views := c.Views()
	if len(views) != 1 || views[0].ID != "home-2" {
		t.Fatalf("unexpected registry contents: %+v", views)
	}
}

func TestStatusOverwrite(t *testing.T) {
	c := newTestClimate(t)
	if err := c.Process(decodePayload(t, testStatus)); err != nil {
		t.Fatalf("process status: %v", err)
	}

	home := homeView(t, c, "home-1")
	valve := moduleView(t, home, "valve-1")
	if !valve.Reachable {
		t.Fatalf("valve should be reachable")
	}
	if valve.BatteryLevel == nil || *valve.BatteryLevel != 3200 {
		t.Fatalf("unexpected battery level: %v", valve.BatteryLevel)
	}
	therm := moduleView(t, home, "therm-1")
	if therm.BoilerStatus == nil || !*therm.BoilerStatus {
		t.Fatalf("unexpected boiler status: %v", therm.BoilerStatus)
	}
	living := roomView(t, home, "room-1")
	if living.MeasuredTemperature == nil || *living.MeasuredTemperature != 20.5 {
		t.Fatalf("unexpected measured temperature: %v", living.MeasuredTemperature)
	}
	if living.SetpointMode == nil || *living.SetpointMode != "schedule" {
		t.Fatalf("unexpected setpoint mode: %v", living.SetpointMode)
	}

	// A sparser update resets everything the entry omits.
	sparse := `{
	  "home": {
	    "id": "home-1",
	    "modules": [{"id": "valve-1", "reachable": true}],
	    "rooms": [{"id": "room-1", "reachable": true}]
	  }
	}`
	if err := c.Process(decodePayload(t, sparse)); err != nil {
		t.Fatalf("process sparse status: %v", err)
	}

	home = homeView(t, c, "home-1")
	valve = moduleView(t, home, "valve-1")
	if !valve.Reachable || valve.BatteryLevel != nil || valve.BatteryState != nil {
		t.Fatalf("omitted module fields should reset: %+v", valve)
	}
	living = roomView(t, home, "room-1")
	if !living.Reachable || living.MeasuredTemperature != nil || living.SetpointTemperature != nil {
		t.Fatalf("omitted room fields should reset: %+v", living)
	}
}

func TestStatusUnknownHome(t *testing.T) {
	c := newTestClimate(t)
	err := c.Process(decodePayload(t, `{"home": {"id": "home-9"}}`))

	var invalid *InvalidHomeError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidHomeError, got %v", err)
	}
	if invalid.Error() != "home-9 is not a valid home id." {
		t.Fatalf("unexpected error message: %s", invalid.Error())
	}
}

func TestStatusIgnoresUnrecognizedShape(t *testing.T) {
	c := newTestClimate(t)
	if err := c.Process(decodePayload(t, `{"user": {"mail": "x@example.com"}}`)); err != nil {
		t.Fatalf("unrecognized payloads must be no-ops, got %v", err)
	}
	if len(c.Views()) != 1 {
		t.Fatalf("no-op payload changed the registry")
	}
}

func TestErrorEntryResetsModule(t *testing.T) {
	c := newTestClimate(t)
	if err := c.Process(decodePayload(t, testStatus)); err != nil {
		t.Fatalf("process status: %v", err)
	}

	errPayload := `{"home": {"id": "home-1"}, "errors": [{"id": "valve-1"}]}`
	if err := c.Process(decodePayload(t, errPayload)); err != nil {
		t.Fatalf("process error payload: %v", err)
	}

	valve := moduleView(t, homeView(t, c, "home-1"), "valve-1")
	if valve.Reachable || valve.BatteryLevel != nil || valve.BatteryState != nil {
		t.Fatalf("error entry should reset the module: %+v", valve)
	}
}

func TestBridgeCascade(t *testing.T) {
	c := newTestClimate(t)
	if err := c.Process(decodePayload(t, testStatus)); err != nil {
		t.Fatalf("process status: %v", err)
	}

	down := `{"home": {"id": "home-1", "modules": [{"id": "relay-1", "reachable": false}]}}`
	if err := c.Process(decodePayload(t, down)); err != nil {
		t.Fatalf("process relay-down status: %v", err)
	}

	home := homeView(t, c, "home-1")
	for _, id := range []string{"relay-1", "valve-1", "therm-1"} {
		if m := moduleView(t, home, id); m.Reachable {
			t.Fatalf("%s should be unreachable after bridge loss", id)
		}
	}
	valve := moduleView(t, home, "valve-1")
	if valve.BatteryLevel != nil {
		t.Fatalf("cascade should reset bridged module fields: %+v", valve)
	}
	for _, id := range []string{"room-1", "room-2"} {
		room := roomView(t, home, id)
		if room.Reachable {
			t.Fatalf("%s should be unreachable after bridge loss", id)
		}
		if room.MeasuredTemperature != nil || room.SetpointTemperature != nil {
			t.Fatalf("cascade should reset room fields: %+v", room)
		}
	}
}

func TestLaterEntryWinsAfterCascade(t *testing.T) {
	c := newTestClimate(t)

	mixed := `{
	  "home": {
	    "id": "home-1",
	    "modules": [
	      {"id": "relay-1", "reachable": false},
	      {"id": "valve-1", "reachable": true, "battery_level": 2900, "battery_state": "medium"}
	    ]
	  }
	}`
	if err := c.Process(decodePayload(t, mixed)); err != nil {
		t.Fatalf("process status: %v", err)
	}

	home := homeView(t, c, "home-1")
	valve := moduleView(t, home, "valve-1")
	if !valve.Reachable {
		t.Fatalf("valve's own entry should win over the earlier cascade")
	}
	if valve.BatteryLevel == nil || *valve.BatteryLevel != 2900 {
		t.Fatalf("unexpected battery level: %v", valve.BatteryLevel)
	}
	// No room entry followed, so the cascade's reset stands for the room.
	if room := roomView(t, home, "room-1"); room.Reachable {
		t.Fatalf("room should keep the cascade reset without an entry of its own")
	}
}

func TestBridgeCycleTerminates(t *testing.T) {
	c := NewClimate()
	cyclic := `{
	  "homes": [
	    {
	      "id": "home-3",
	      "name": "Loop",
	      "modules": [
	        {"id": "a-1", "name": "A", "type": "NAPlug", "modules_bridged": ["b-1"]},
	        {"id": "b-1", "name": "B", "type": "NAPlug", "modules_bridged": ["a-1"]}
	      ]
	    }
	  ]
	}`
	if err := c.Process(decodePayload(t, cyclic)); err != nil {
		t.Fatalf("process topology: %v", err)
	}

	down := `{"home": {"id": "home-3", "modules": [{"id": "a-1", "reachable": false}]}}`
	if err := c.Process(decodePayload(t, down)); err != nil {
		t.Fatalf("process status: %v", err)
	}

	home := homeView(t, c, "home-3")
	if moduleView(t, home, "a-1").Reachable || moduleView(t, home, "b-1").Reachable {
		t.Fatalf("both ends of the cycle should be unreachable")
	}
}

func TestUnknownStatusIdsSurfaced(t *testing.T) {
	c := newTestClimate(t)

	stray := `{
	  "home": {
	    "id": "home-1",
	    "modules": [
	      {"id": "ghost-1", "reachable": true},
	      {"id": "valve-1", "reachable": true, "battery_level": 3000}
	    ],
	    "rooms": [{"id": "ghost-r", "reachable": true}]
	  },
	  "errors": [{"id": "ghost-e"}]
	}`
	err := c.Process(decodePayload(t, stray))

	var unknown *UnknownEntitiesError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEntitiesError, got %v", err)
	}
	if len(unknown.Modules) != 2 || unknown.Modules[0] != "ghost-1" || unknown.Modules[1] != "ghost-e" {
		t.Fatalf("unexpected unknown modules: %v", unknown.Modules)
	}
	if len(unknown.Rooms) != 1 || unknown.Rooms[0] != "ghost-r" {
		t.Fatalf("unexpected unknown rooms: %v", unknown.Rooms)
	}
	if !strings.Contains(unknown.Error(), "home home-1") {
		t.Fatalf("unexpected error message: %s", unknown.Error())
	}

	// Known entries still applied despite the strays.
	valve := moduleView(t, homeView(t, c, "home-1"), "valve-1")
	if !valve.Reachable || valve.BatteryLevel == nil || *valve.BatteryLevel != 3000 {
		t.Fatalf("known entries should apply alongside unknown ids: %+v", valve)
	}
}

func TestCascadeSurfacesUnknownBridged(t *testing.T) {
	c := NewClimate()
	topo := `{
	  "homes": [
	    {
	      "id": "home-4",
	      "name": "Partial",
	      "modules": [{"id": "relay-4", "name": "Relay", "type": "NAPlug", "modules_bridged": ["phantom"]}]
	    }
	  ]
	}`
	if err := c.Process(decodePayload(t, topo)); err != nil {
		t.Fatalf("process topology: %v", err)
	}

	down := `{"home": {"id": "home-4", "modules": [{"id": "relay-4", "reachable": false}]}}`
	err := c.Process(decodePayload(t, down))

	var unknown *UnknownEntitiesError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEntitiesError, got %v", err)
	}
	if len(unknown.Modules) != 1 || unknown.Modules[0] != "phantom" {
		t.Fatalf("unexpected unknown modules: %v", unknown.Modules)
	}
}

func TestThermModeValidation(t *testing.T) {
	c := newTestClimate(t)
	schedule := "sched-1"
	bogus := "sched-9"

	var invalid *InvalidHomeError
	if err := c.checkThermMode("home-9", "", &bogus); !errors.As(err, &invalid) {
		t.Fatalf("home check should come first, got %v", err)
	}

	var noSchedule *NoScheduleError
	err := c.checkThermMode("home-1", "schedule", &bogus)
	if !errors.As(err, &noSchedule) {
		t.Fatalf("expected NoScheduleError, got %v", err)
	}
	if noSchedule.Error() != "sched-9 is not a valid schedule id." {
		t.Fatalf("unexpected message: %s", noSchedule.Error())
	}

	err = c.checkThermMode("home-1", "", &schedule)
	if !errors.As(err, &noSchedule) {
		t.Fatalf("expected NoScheduleError for empty mode, got %v", err)
	}
	if noSchedule.Error() != " is not a valid mode." {
		t.Fatalf("unexpected message: %s", noSchedule.Error())
	}

	if err := c.checkThermMode("home-1", "away", nil); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	if err := c.checkThermMode("home-1", "schedule", &schedule); err != nil {
		t.Fatalf("valid schedule request rejected: %v", err)
	}
}

func TestScheduleValidation(t *testing.T) {
	c := newTestClimate(t)

	var invalid *InvalidHomeError
	if err := c.checkSchedule("home-9", "sched-1"); !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidHomeError, got %v", err)
	}

	var noSchedule *NoScheduleError
	if err := c.checkSchedule("home-1", "sched-9"); !errors.As(err, &noSchedule) {
		t.Fatalf("expected NoScheduleError, got %v", err)
	}

	if err := c.checkSchedule("home-1", "sched-2"); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
}

func TestViewIsolation(t *testing.T) {
	c := newTestClimate(t)
	if err := c.Process(decodePayload(t, testStatus)); err != nil {
		t.Fatalf("process status: %v", err)
	}

	first := homeView(t, c, "home-1")
	living := roomView(t, first, "room-1")
	*living.MeasuredTemperature = 99
	living.ModuleIDs[0] = "tampered"

	second := roomView(t, homeView(t, c, "home-1"), "room-1")
	if *second.MeasuredTemperature != 20.5 {
		t.Fatalf("view mutation leaked into the registry: %v", *second.MeasuredTemperature)
	}
	if second.ModuleIDs[0] != "valve-1" {
		t.Fatalf("view slice mutation leaked into the registry: %v", second.ModuleIDs)
	}
}
