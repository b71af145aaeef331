package netatmo

// Room is one room of a home, tracking the modules placed in it and the
// climate status the provider last reported for it.
type Room struct {
	ID        string
	Name      string
	ModuleIDs []string

	Reachable           bool
	MeasuredTemperature *float64
	SetpointMode        *string
	SetpointTemperature *float64

	// HeatingPowerRequest is declared on the wire but absent from room
	// status payloads, so it stays nil until the provider starts sending it.
	HeatingPowerRequest *int

	home *Home
}

func newRoom(home *Home, data RoomData) *Room {
	room := &Room{
		ID:   data.ID,
		Name: data.Name,
		home: home,
	}
	// Only modules that exist in this home's topology are attached; ids the
	// provider lists but never describes are dropped.
	for _, id := range data.ModuleIDs {
		if _, ok := home.Modules[id]; ok {
			room.ModuleIDs = append(room.ModuleIDs, id)
		}
	}
	return room
}

// applyStatus overwrites the room's status with the payload entry. Fields
// the entry omits reset to unset rather than surviving from the previous
// update.
func (r *Room) applyStatus(s RoomStatus) {
	r.Reachable = s.Reachable
	r.MeasuredTemperature = s.MeasuredTemperature
	r.SetpointMode = s.SetpointMode
	r.SetpointTemperature = s.SetpointTemperature
}
