package netatmo

// Module is one device in a home's topology.
type Module struct {
	ID      string
	Name    string
	Type    DeviceType
	RoomID  *string
	Bridge  *string
	Bridged []string

	Reachable    bool
	BoilerStatus *bool
	BatteryLevel *int
	BatteryState *string

	home *Home
}

func newModule(home *Home, data ModuleData) *Module {
	return &Module{
		ID:      data.ID,
		Name:    data.Name,
		Type:    ParseDeviceType(data.Type),
		RoomID:  data.RoomID,
		Bridge:  data.Bridge,
		Bridged: data.Bridged,
		home:    home,
	}
}

// applyStatus overwrites the module's status with the payload entry, then
// fans the same entry out across the bridge graph when the module ends up
// unreachable: a dead bridge means every module behind it is dark too, along
// with the rooms those modules sit in. seen is scoped to a single top-level
// payload entry and stops cyclic bridge wiring from recursing forever.
func (m *Module) applyStatus(s ModuleStatus, seen map[string]bool, missing *statusMisses) {
	if seen[m.ID] {
		return
	}
	seen[m.ID] = true

	m.Reachable = s.Reachable
	m.BoilerStatus = s.BoilerStatus
	m.BatteryLevel = s.BatteryLevel
	m.BatteryState = s.BatteryState

	if m.Reachable {
		return
	}

	for _, id := range m.Bridged {
		bridged, ok := m.home.Modules[id]
		if !ok {
			missing.module(id)
			continue
		}
		bridged.applyStatus(s, seen, missing)
		if bridged.RoomID == nil {
			continue
		}
		room, ok := m.home.Rooms[*bridged.RoomID]
		if !ok {
			missing.room(*bridged.RoomID)
			continue
		}
		// The module entry carries no room fields, so this resets the room's
		// temperatures and marks it unreachable along with its module.
		room.applyStatus(RoomStatus{ID: room.ID, Reachable: s.Reachable})
	}
}
