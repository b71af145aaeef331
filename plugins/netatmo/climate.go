package netatmo

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// InvalidHomeError reports a home id the registry does not know.
type InvalidHomeError struct {
	ID string
}

func (e *InvalidHomeError) Error() string {
	return fmt.Sprintf("%s is not a valid home id.", e.ID)
}

// NoScheduleError reports a schedule id or mode rejected for a home.
type NoScheduleError struct {
	Value string
	Field string
}

func (e *NoScheduleError) Error() string {
	if e.Field == "mode" {
		return fmt.Sprintf("%s is not a valid mode.", e.Value)
	}
	return fmt.Sprintf("%s is not a valid schedule id.", e.Value)
}

// UnknownEntitiesError reports status entries that referenced ids missing
// from the home's topology. Known entries were still applied; the usual
// remedy is a topology rebuild followed by a status retry.
type UnknownEntitiesError struct {
	HomeID  string
	Modules []string
	Rooms   []string
}

func (e *UnknownEntitiesError) Error() string {
	var parts []string
	if len(e.Modules) > 0 {
		parts = append(parts, "modules "+strings.Join(e.Modules, ", "))
	}
	if len(e.Rooms) > 0 {
		parts = append(parts, "rooms "+strings.Join(e.Rooms, ", "))
	}
	return fmt.Sprintf("home %s status referenced unknown %s", e.HomeID, strings.Join(parts, "; "))
}

// statusMisses collects unknown ids seen while applying one status payload.
type statusMisses struct {
	modules map[string]bool
	rooms   map[string]bool
}

func newStatusMisses() *statusMisses {
	return &statusMisses{
		modules: make(map[string]bool),
		rooms:   make(map[string]bool),
	}
}

func (m *statusMisses) module(id string) {
	m.modules[id] = true
}

func (m *statusMisses) room(id string) {
	m.rooms[id] = true
}

func (m *statusMisses) err(homeID string) error {
	if len(m.modules) == 0 && len(m.rooms) == 0 {
		return nil
	}
	return &UnknownEntitiesError{
		HomeID:  homeID,
		Modules: sortedKeys(m.modules),
		Rooms:   sortedKeys(m.rooms),
	}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Climate is the registry of homes. All mutation flows through Process;
// reads hand out deep-copied views.
type Climate struct {
	mu    sync.RWMutex
	homes map[string]*Home
}

func NewClimate() *Climate {
	return &Climate{homes: make(map[string]*Home)}
}

// Process routes one decoded payload by shape. A "home" key reconciles
// status into an existing home, a "homes" key rebuilds the registry
// wholesale, and anything else is a no-op.
func (c *Climate) Process(p Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case p.Home != nil:
		home, ok := c.homes[p.Home.ID]
		if !ok {
			return &InvalidHomeError{ID: p.Home.ID}
		}
		return home.applyStatus(p)
	case p.Homes != nil:
		rebuilt := make(map[string]*Home, len(p.Homes))
		for _, data := range p.Homes {
			home := newHome(data)
			rebuilt[home.ID] = home
		}
		c.homes = rebuilt
		return nil
	default:
		return nil
	}
}

// Empty reports whether any topology has been loaded yet.
func (c *Climate) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.homes) == 0
}

// HomeIDs returns the known home ids in sorted order.
func (c *Climate) HomeIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.homes))
	for id := range c.homes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Views snapshots every home, sorted by id.
func (c *Climate) Views() []HomeView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]HomeView, 0, len(c.homes))
	for _, home := range c.homes {
		views = append(views, home.view())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// View snapshots a single home.
func (c *Climate) View(homeID string) (HomeView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	home, ok := c.homes[homeID]
	if !ok {
		return HomeView{}, false
	}
	return home.view(), true
}

// checkThermMode validates a setthermmode request against the registry.
// Order matters: the home is checked first, then the schedule id when one
// is given, then the mode itself.
func (c *Climate) checkThermMode(homeID, mode string, scheduleID *string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	home, ok := c.homes[homeID]
	if !ok {
		return &InvalidHomeError{ID: homeID}
	}
	if scheduleID != nil && !home.IsValidSchedule(*scheduleID) {
		return &NoScheduleError{Value: *scheduleID, Field: "schedule_id"}
	}
	if mode == "" {
		return &NoScheduleError{Value: mode, Field: "mode"}
	}
	return nil
}

// checkSchedule validates a switchhomeschedule request against the
// registry. Looking up an unknown home is itself the failure here.
func (c *Climate) checkSchedule(homeID, scheduleID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	home, ok := c.homes[homeID]
	if !ok {
		return &InvalidHomeError{ID: homeID}
	}
	if !home.IsValidSchedule(scheduleID) {
		return &NoScheduleError{Value: scheduleID, Field: "schedule_id"}
	}
	return nil
}
