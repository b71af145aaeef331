package netatmo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/joshp123/gotherm/internal/mqtt"
	"github.com/joshp123/gotherm/internal/rate"
)

// Schedules renamed in the Netatmo app only show up in topology data, so
// the poll loop rebuilds the full graph at this cadence even without drift.
const topologyRefreshEvery = time.Hour

// Service owns the poll loop, the MQTT state feed and the plugin's HTTP
// surface.
type Service struct {
	client *Client
	log    *zap.SugaredLogger

	pub         mqtt.Publisher
	topicPrefix string

	refreshEvery time.Duration

	mu           sync.Mutex
	lastTopology time.Time
}

func NewService(client *Client, log *zap.SugaredLogger, pub mqtt.Publisher, topicPrefix string, refreshEvery time.Duration) *Service {
	return &Service{
		client:       client,
		log:          log,
		pub:          pub,
		topicPrefix:  topicPrefix,
		refreshEvery: refreshEvery,
	}
}

// RegisterRoutes mounts the plugin API on the given router.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Route("/netatmo", func(r chi.Router) {
		r.Get("/homes", s.handleListHomes)
		r.Get("/homes/{homeID}", s.handleGetHome)
		r.Post("/homes/{homeID}/thermmode", s.handleSetThermMode)
		r.Post("/homes/{homeID}/schedule", s.handleSwitchSchedule)
		r.Post("/refresh", s.handleRefresh)
	})
}

// Run drives the poll loop: one refresh immediately, then one per tick
// until the context ends. Refresh failures are logged and retried on the
// next tick.
func (s *Service) Run(ctx context.Context) {
	_ = s.refresh(ctx)

	ticker := time.NewTicker(s.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.refresh(ctx)
		}
	}
}

func (s *Service) refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.update(ctx)
	var drift *UnknownEntitiesError
	if errors.As(err, &drift) {
		s.log.Warnw("topology drift detected; rebuilding", "home_id", drift.HomeID)
		if err = s.client.UpdateTopology(ctx); err == nil {
			s.lastTopology = time.Now()
		}
	}
	if err != nil {
		s.log.Warnw("netatmo refresh failed", "error", err)
		return err
	}
	s.publishState()
	return nil
}

func (s *Service) update(ctx context.Context) error {
	if time.Since(s.lastTopology) < topologyRefreshEvery {
		return s.client.Update(ctx)
	}
	if err := s.client.UpdateTopology(ctx); err != nil {
		return err
	}
	s.lastTopology = time.Now()
	return nil
}

// publishState pushes retained per-home and per-room state topics.
func (s *Service) publishState() {
	if s.pub == nil {
		return
	}
	for _, home := range s.client.Views() {
		payload, err := json.Marshal(home)
		if err != nil {
			continue
		}
		topic := fmt.Sprintf("%s/homes/%s/state", s.topicPrefix, home.ID)
		if err := s.pub.Publish(topic, payload, true); err != nil {
			s.log.Warnw("mqtt publish failed", "topic", topic, "error", err)
		}

		for _, room := range home.Rooms {
			payload, err := json.Marshal(room)
			if err != nil {
				continue
			}
			topic := fmt.Sprintf("%s/homes/%s/rooms/%s/state", s.topicPrefix, home.ID, room.ID)
			if err := s.pub.Publish(topic, payload, true); err != nil {
				s.log.Warnw("mqtt publish failed", "topic", topic, "error", err)
			}
		}
	}
}

// freshen updates before a read. Topology drift is tolerated here: status
// still applied to the known graph, and the poll loop rebuilds on its
// next pass.
func (s *Service) freshen(ctx context.Context) error {
	err := s.client.Update(ctx)
	var drift *UnknownEntitiesError
	if errors.As(err, &drift) {
		return nil
	}
	return err
}

func (s *Service) handleListHomes(w http.ResponseWriter, r *http.Request) {
	if err := s.freshen(r.Context()); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"homes": s.client.Views()})
}

func (s *Service) handleGetHome(w http.ResponseWriter, r *http.Request) {
	if err := s.freshen(r.Context()); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	view, ok := s.client.View(chi.URLParam(r, "homeID"))
	if !ok {
		err := &InvalidHomeError{ID: chi.URLParam(r, "homeID")}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type thermModeRequest struct {
	Mode       string  `json:"mode"`
	EndTime    *int64  `json:"end_time,omitempty"`
	ScheduleID *string `json:"schedule_id,omitempty"`
}

func (s *Service) handleSetThermMode(w http.ResponseWriter, r *http.Request) {
	var req thermModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	homeID := chi.URLParam(r, "homeID")
	raw, err := s.client.SetThermMode(r.Context(), homeID, req.Mode, req.EndTime, req.ScheduleID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	// Switching to a schedule changes the selected flag upstream.
	if req.Mode == "schedule" {
		s.refreshTopology(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

type switchScheduleRequest struct {
	ScheduleID string `json:"schedule_id"`
}

func (s *Service) handleSwitchSchedule(w http.ResponseWriter, r *http.Request) {
	var req switchScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	homeID := chi.URLParam(r, "homeID")
	if err := s.client.SwitchHomeSchedule(r.Context(), homeID, req.ScheduleID); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	s.refreshTopology(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.refresh(r.Context()); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"homes": s.client.Views()})
}

// refreshTopology picks up upstream topology changes after a write.
// Best effort: the poll loop converges regardless.
func (s *Service) refreshTopology(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.UpdateTopology(ctx); err != nil {
		s.log.Warnw("topology refresh after write failed", "error", err)
		return
	}
	s.lastTopology = time.Now()
}

func statusForError(err error) int {
	var invalidHome *InvalidHomeError
	var badSchedule *NoScheduleError
	var limited rate.RateLimitError
	switch {
	case errors.As(err, &invalidHome):
		return http.StatusNotFound
	case errors.As(err, &badSchedule):
		return http.StatusUnprocessableEntity
	case errors.As(err, &limited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
