package netatmo

// Schedule is a heating calendar attached to a home.
type Schedule struct {
	ID       string
	Name     string
	HomeID   string
	Selected bool
	AwayTemp *float64
	HgTemp   *float64
}

func newSchedule(homeID string, data ScheduleData) *Schedule {
	return &Schedule{
		ID:       data.ID,
		Name:     data.Name,
		HomeID:   homeID,
		Selected: data.Selected,
		AwayTemp: data.AwayTemp,
		HgTemp:   data.HgTemp,
	}
}
