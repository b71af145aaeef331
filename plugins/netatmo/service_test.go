package netatmo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/joshp123/gotherm/internal/mqtt"
	"github.com/joshp123/gotherm/internal/rate"
)

type fakePublisher struct {
	mu     sync.Mutex
	topics map[string][]byte
	retain map[string]bool
}

func (p *fakePublisher) Publish(topic string, payload []byte, retain bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topics == nil {
		p.topics = make(map[string][]byte)
		p.retain = make(map[string]bool)
	}
	p.topics[topic] = payload
	p.retain[topic] = retain
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) get(topic string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.topics[topic]
	return data, ok
}

func (p *fakePublisher) retained(topic string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retain[topic]
}

func newServiceStack(t *testing.T, api *fakeNetatmo, pub mqtt.Publisher) (*Service, *httptest.Server) {
	t.Helper()

	upstream := httptest.NewServer(api.handler())
	t.Cleanup(upstream.Close)

	client := newTestClient(t, upstream)
	svc := NewService(client, zap.NewNop().Sugar(), pub, "gotherm", time.Minute)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		svc.RegisterRoutes(r)
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return svc, ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestServiceHTTPFlow(t *testing.T) {
	api := newFakeNetatmo(t)
	_, ts := newServiceStack(t, api, nil)

	resp, err := http.Get(ts.URL + "/api/netatmo/homes")
	if err != nil {
		t.Fatalf("list homes: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list homes status = %d", resp.StatusCode)
	}
	var listing struct {
		Homes []HomeView `json:"homes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode homes: %v", err)
	}
	resp.Body.Close()
	if len(listing.Homes) != 1 || listing.Homes[0].ID != "home-1" {
		t.Fatalf("unexpected homes: %+v", listing.Homes)
	}

	resp, err = http.Get(ts.URL + "/api/netatmo/homes/home-1")
	if err != nil {
		t.Fatalf("get home: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get home status = %d", resp.StatusCode)
	}
	var home HomeView
	if err := json.NewDecoder(resp.Body).Decode(&home); err != nil {
		t.Fatalf("decode home: %v", err)
	}
	resp.Body.Close()
	if home.Name != "Main House" {
		t.Fatalf("unexpected home name: %s", home.Name)
	}
	living := roomView(t, home, "room-1")
	if living.MeasuredTemperature == nil || *living.MeasuredTemperature != 20.5 {
		t.Fatalf("unexpected measured temperature: %v", living.MeasuredTemperature)
	}

	resp, err = http.Get(ts.URL + "/api/netatmo/homes/home-9")
	if err != nil {
		t.Fatalf("get unknown home: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown home status = %d", resp.StatusCode)
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	resp.Body.Close()
	if !strings.Contains(apiErr.Error, "is not a valid home id.") {
		t.Fatalf("unexpected error message: %s", apiErr.Error)
	}

	resp = postJSON(t, ts.URL+"/api/netatmo/homes/home-1/thermmode", `{"mode":"away","end_time":3600}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("thermmode status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if body := api.lastThermBody(); !strings.Contains(body, "endtime=3600") {
		t.Fatalf("unexpected upstream thermmode body: %s", body)
	}

	resp = postJSON(t, ts.URL+"/api/netatmo/homes/home-1/thermmode", `{"mode":"schedule","schedule_id":"sched-9"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid schedule status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/netatmo/homes/home-9/thermmode", `{"mode":"away"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown home thermmode status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/netatmo/homes/home-1/schedule", `{"schedule_id":"sched-2"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("switch schedule status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if body := api.lastScheduleBody(); !strings.Contains(body, "schedule_id=sched-2") {
		t.Fatalf("unexpected upstream schedule body: %s", body)
	}

	resp = postJSON(t, ts.URL+"/api/netatmo/refresh", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// One real topology fetch for the cold start, one for the rebuild after
	// the schedule switch. Status was fetched once and cached for the rest.
	if got := api.counts(); got.topology != 2 || got.status != 1 {
		t.Fatalf("unexpected upstream calls: %+v", got)
	}
}

const driftTopologyV1 = `{
  "homes": [
    {
      "id": "home-5",
      "name": "Drift",
      "modules": [{"id": "relay-5", "name": "Relay", "type": "NAPlug"}]
    }
  ]
}`

const driftTopologyV2 = `{
  "homes": [
    {
      "id": "home-5",
      "name": "Drift",
      "modules": [
        {"id": "relay-5", "name": "Relay", "type": "NAPlug", "modules_bridged": ["valve-2"]},
        {"id": "valve-2", "name": "New Valve", "type": "NRV", "room_id": "room-5", "bridge": "relay-5"}
      ],
      "rooms": [{"id": "room-5", "name": "Attic", "module_ids": ["valve-2"]}]
    }
  ]
}`

const driftStatus = `{
  "home": {
    "id": "home-5",
    "modules": [
      {"id": "relay-5", "reachable": true},
      {"id": "valve-2", "reachable": true, "battery_level": 3100, "battery_state": "high"}
    ],
    "rooms": [{"id": "room-5", "reachable": true, "therm_measured_temperature": 17.5}]
  }
}`

func TestServiceDriftRebuild(t *testing.T) {
	api := newFakeNetatmo(t)
	api.topologies = []string{driftTopologyV1, driftTopologyV2}
	api.status = driftStatus
	pub := &fakePublisher{}
	svc, _ := newServiceStack(t, api, pub)

	if err := svc.refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	got := api.counts()
	if got.topology != 2 {
		t.Fatalf("expected a rebuild after drift, topology calls = %d", got.topology)
	}
	if got.status != 1 {
		t.Fatalf("retry should reuse the cached status, calls = %d", got.status)
	}

	view, ok := svc.client.View("home-5")
	if !ok {
		t.Fatalf("home-5 missing after rebuild")
	}
	valve := moduleView(t, view, "valve-2")
	if !valve.Reachable || valve.BatteryLevel == nil || *valve.BatteryLevel != 3100 {
		t.Fatalf("status not reapplied to the rebuilt graph: %+v", valve)
	}
	attic := roomView(t, view, "room-5")
	if attic.MeasuredTemperature == nil || *attic.MeasuredTemperature != 17.5 {
		t.Fatalf("room status not reapplied: %+v", attic)
	}

	payload, ok := pub.get("gotherm/homes/home-5/state")
	if !ok {
		t.Fatalf("home state topic not published")
	}
	var published HomeView
	if err := json.Unmarshal(payload, &published); err != nil {
		t.Fatalf("decode published home: %v", err)
	}
	if published.ID != "home-5" {
		t.Fatalf("unexpected published home: %+v", published)
	}
	if !pub.retained("gotherm/homes/home-5/state") {
		t.Fatalf("home state must be retained")
	}

	roomPayload, ok := pub.get("gotherm/homes/home-5/rooms/room-5/state")
	if !ok {
		t.Fatalf("room state topic not published")
	}
	var publishedRoom RoomView
	if err := json.Unmarshal(roomPayload, &publishedRoom); err != nil {
		t.Fatalf("decode published room: %v", err)
	}
	if publishedRoom.MeasuredTemperature == nil || *publishedRoom.MeasuredTemperature != 17.5 {
		t.Fatalf("unexpected published room: %+v", publishedRoom)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	api := newFakeNetatmo(t)
	svc, _ := newServiceStack(t, api, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not stop on cancel")
	}
}

func TestStatusForError(t *testing.T) {
	if got := statusForError(&InvalidHomeError{ID: "x"}); got != http.StatusNotFound {
		t.Errorf("invalid home mapped to %d", got)
	}
	if got := statusForError(&NoScheduleError{Value: "x"}); got != http.StatusUnprocessableEntity {
		t.Errorf("invalid schedule mapped to %d", got)
	}
	wrapped := &url.Error{
		Op:  "Post",
		URL: "https://api.netatmo.com/api/homestatus",
		Err: rate.RateLimitError{Provider: "netatmo", Reason: "budget"},
	}
	if got := statusForError(wrapped); got != http.StatusTooManyRequests {
		t.Errorf("rate limit mapped to %d", got)
	}
	if got := statusForError(fmt.Errorf("boom")); got != http.StatusBadGateway {
		t.Errorf("unexpected default mapping: %d", got)
	}
}
