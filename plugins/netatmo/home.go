package netatmo

// Home is the root of one home's entity graph. Rooms, modules, and
// schedules are keyed by provider id.
type Home struct {
	ID   string
	Name string

	Rooms     map[string]*Room
	Modules   map[string]*Module
	Schedules map[string]*Schedule
}

// newHome builds a home's entity graph from a topology descriptor. Modules
// are built before rooms so each room can resolve its module ids against the
// finished module map.
func newHome(data HomeData) *Home {
	name := data.Name
	if name == "" {
		name = "Unknown"
	}

	home := &Home{
		ID:        data.ID,
		Name:      name,
		Rooms:     make(map[string]*Room, len(data.Rooms)),
		Modules:   make(map[string]*Module, len(data.Modules)),
		Schedules: make(map[string]*Schedule, len(data.Schedules)),
	}

	for _, moduleData := range data.Modules {
		home.Modules[moduleData.ID] = newModule(home, moduleData)
	}
	for _, roomData := range data.Rooms {
		home.Rooms[roomData.ID] = newRoom(home, roomData)
	}
	for _, scheduleData := range data.Schedules {
		home.Schedules[scheduleData.ID] = newSchedule(home.ID, scheduleData)
	}

	return home
}

// applyStatus reconciles one homestatus payload into the entity graph.
// Known entries apply even when others reference unknown ids; the unknowns
// are collected and surfaced so callers can trigger a topology rebuild.
func (h *Home) applyStatus(p Payload) error {
	misses := newStatusMisses()

	for _, entry := range p.Errors {
		mod, ok := h.Modules[entry.ID]
		if !ok {
			misses.module(entry.ID)
			continue
		}
		// An errors entry is an empty update: every status field resets to
		// its unreachable default, and the reset cascades over the bridge.
		mod.applyStatus(ModuleStatus{ID: entry.ID}, make(map[string]bool), misses)
	}

	for _, status := range p.Home.Modules {
		mod, ok := h.Modules[status.ID]
		if !ok {
			misses.module(status.ID)
			continue
		}
		mod.applyStatus(status, make(map[string]bool), misses)
	}

	for _, status := range p.Home.Rooms {
		room, ok := h.Rooms[status.ID]
		if !ok {
			misses.room(status.ID)
			continue
		}
		room.applyStatus(status)
	}

	return misses.err(h.ID)
}

// SelectedSchedule returns the schedule currently active for the home.
func (h *Home) SelectedSchedule() *Schedule {
	for _, schedule := range h.Schedules {
		if schedule.Selected {
			return schedule
		}
	}
	return nil
}

// IsValidSchedule reports whether the home knows the given schedule id.
func (h *Home) IsValidSchedule(scheduleID string) bool {
	_, ok := h.Schedules[scheduleID]
	return ok
}

// HgTemp returns the frost-guard temperature of the selected schedule.
func (h *Home) HgTemp() *float64 {
	schedule := h.SelectedSchedule()
	if schedule == nil {
		return nil
	}
	return schedule.HgTemp
}

// AwayTemp returns the away temperature of the selected schedule.
func (h *Home) AwayTemp() *float64 {
	schedule := h.SelectedSchedule()
	if schedule == nil {
		return nil
	}
	return schedule.AwayTemp
}
