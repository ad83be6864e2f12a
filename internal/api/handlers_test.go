package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pdpnav/internal/config"
	"pdpnav/internal/model"
	"pdpnav/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Search.Seed = 1
	cfg.Search.IterationsLimit = 100
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { s.Pool.Close() })
	return s
}

func snapshotBody(t *testing.T, snap model.WorldSnapshot) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func demoWorld() model.WorldSnapshot {
	return model.WorldSnapshot{
		Units: model.DefaultUnits(),
		Available: []model.Parcel{
			{ID: "p1", Pickup: model.GeoPoint{}, Delivery: model.GeoPoint{Lat: 0.001, Lng: 0.001}},
		},
		Vehicles: []model.VehicleSnapshot{
			{ID: "v1", SpeedKmh: 50, HasRoute: true},
		},
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthzHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "version") {
		t.Fatalf("missing build info: %s", rr.Body.String())
	}
}

func TestSnapshotsProblemChanged(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/snapshots?mode=problem-changed", snapshotBody(t, demoWorld()))
	s.SnapshotsHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("snapshots: got %d body=%s", rr.Code, rr.Body.String())
	}

	// The search runs async; the latest schedule shows up in the store.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, err := s.Store.LatestSchedule(req.Context())
		if err != nil {
			t.Fatalf("LatestSchedule: %v", err)
		}
		if rec != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no schedule published")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rr = httptest.NewRecorder()
	s.SchedulesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/schedules/latest", nil))
	if rr.Code != 200 {
		t.Fatalf("latest: got %d", rr.Code)
	}
}

func TestSnapshotsRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name string
		url  string
		body string
		want int
	}{
		{"bad json", "/v1/snapshots", "{", http.StatusBadRequest},
		{"bad mode", "/v1/snapshots?mode=sideways", "{}", http.StatusBadRequest},
		{"no vehicles", "/v1/snapshots", `{"time":0,"vehicles":[]}`, http.StatusBadRequest},
		{"negative time", "/v1/snapshots", `{"time":-1,"vehicles":[{"id":"v1","hasRoute":true}]}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, c.url, strings.NewReader(c.body))
		s.SnapshotsHandler(rr, req)
		if rr.Code != c.want {
			t.Fatalf("%s: got %d, want %d", c.name, rr.Code, c.want)
		}
	}
}

func TestSnapshotsUnitMismatch(t *testing.T) {
	s := newTestServer(t)
	snap := demoWorld()
	snap.Units = model.Units{Time: "s", Speed: "m/s", Distance: "m"}
	rr := httptest.NewRecorder()
	s.SnapshotsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/snapshots", snapshotBody(t, snap)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unit mismatch: got %d", rr.Code)
	}
}

func TestSnapshotsMissingRoute(t *testing.T) {
	s := newTestServer(t)
	snap := demoWorld()
	snap.Vehicles = append(snap.Vehicles, model.VehicleSnapshot{ID: "v2", SpeedKmh: 40})
	rr := httptest.NewRecorder()
	s.SnapshotsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/snapshots", snapshotBody(t, snap)))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing route: got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCancelAndStatus(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.StatusHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "idle") {
		t.Fatalf("status: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.CancelHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/cancel", nil))
	if rr.Code != 200 {
		t.Fatalf("cancel: got %d", rr.Code)
	}
}

func TestHeartbeatRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.HeartbeatRPS = 1 // burst of 2
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { s.Pool.Close() })

	limited := false
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/snapshots?mode=heartbeat", snapshotBody(t, demoWorld()))
		s.SnapshotsHandler(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		if rr.Code != http.StatusAccepted {
			t.Fatalf("heartbeat %d: got %d", i, rr.Code)
		}
	}
	if !limited {
		t.Fatalf("burst of heartbeats never hit the limiter")
	}
}

func TestVehicleRouteLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.Hub.Get("v1").Replace([]string{"p1", "p1"})

	// GET route
	rr := httptest.NewRecorder()
	s.VehiclesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/vehicles/v1/route", nil))
	if rr.Code != 200 {
		t.Fatalf("route: got %d", rr.Code)
	}
	var resp struct {
		Route   []string `json:"route"`
		Current string   `json:"current"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Route) != 2 || resp.Current != "p1" {
		t.Fatalf("resp: %+v", resp)
	}

	// POST advance twice drains the queue.
	for i := 0; i < 2; i++ {
		rr = httptest.NewRecorder()
		s.VehiclesHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/vehicles/v1/advance", nil))
		if rr.Code != 200 {
			t.Fatalf("advance %d: got %d", i, rr.Code)
		}
	}
	rr = httptest.NewRecorder()
	s.VehiclesHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/vehicles/v1/advance", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("advance on empty: got %d", rr.Code)
	}
}

func TestVehiclePlanEndpoint(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/vehicles/v1/plan", snapshotBody(t, demoWorld()))
	s.VehiclesHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("plan: got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Route []string `json:"route"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Route) != 2 {
		t.Fatalf("route: %v", resp.Route)
	}
	// The consumer queue was replaced with the planned route.
	if got := s.Hub.Get("v1").Route(); len(got) != 2 {
		t.Fatalf("consumer: %v", got)
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"url":"http://example.invalid/hook","secret":"s"}`)
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rr.Code)
	}
	var sub store.Subscription
	if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil || sub.ID == "" {
		t.Fatalf("decode sub: %v %+v", err, sub)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), sub.ID) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", strings.NewReader(`{}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing url: got %d", rr.Code)
	}
}

func TestProblemDetailsShape(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.SnapshotsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/snapshots", strings.NewReader("{")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content type: %q", ct)
	}
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Type != problemType || p.Status != http.StatusBadRequest || p.Instance != "/v1/snapshots" {
		t.Fatalf("problem: %+v", p)
	}
}

func TestValidateSnapshot(t *testing.T) {
	ok := demoWorld()
	if err := validateSnapshot(&ok); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*model.WorldSnapshot)
	}{
		{"dup parcel", func(s *model.WorldSnapshot) { s.Available = append(s.Available, s.Available[0]) }},
		{"empty parcel id", func(s *model.WorldSnapshot) { s.Available[0].ID = "" }},
		{"dup vehicle", func(s *model.WorldSnapshot) { s.Vehicles = append(s.Vehicles, s.Vehicles[0]) }},
		{"empty vehicle id", func(s *model.WorldSnapshot) { s.Vehicles[0].ID = "" }},
		{"negative speed", func(s *model.WorldSnapshot) { s.Vehicles[0].SpeedKmh = -1 }},
		{"route without flag", func(s *model.WorldSnapshot) {
			s.Vehicles[0].HasRoute = false
			s.Vehicles[0].Route = []string{"p1"}
		}},
	}
	for _, c := range cases {
		snap := demoWorld()
		c.mutate(&snap)
		if err := validateSnapshot(&snap); err == nil {
			t.Fatalf("%s: want error", c.name)
		}
	}
}
