package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pdpnav/internal/buildinfo"
	"pdpnav/internal/model"
	"pdpnav/internal/plan"
	"pdpnav/internal/rt"
	"pdpnav/internal/sink"
)

// SnapshotsHandler handles POST /v1/snapshots?mode=problem-changed|heartbeat.
// A problem change restarts the search unconditionally; a heartbeat only
// restarts it when a vehicle has newly committed to a destination.
func (s *Server) SnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "problem-changed"
	}
	if mode != "problem-changed" && mode != "heartbeat" {
		writeProblem(w, http.StatusBadRequest, "Invalid mode", fmt.Sprintf("unknown mode %q", mode), r.URL.Path)
		return
	}
	var snap model.WorldSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if snap.Units == (model.Units{}) {
		snap.Units = model.DefaultUnits()
	}
	if err := validateSnapshot(&snap); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid snapshot", err.Error(), r.URL.Path)
		return
	}

	var err error
	switch mode {
	case "heartbeat":
		if !s.heartbeats.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Heartbeat rate exceeded", "retry later", r.URL.Path)
			return
		}
		err = s.Coordinator.ReceiveSnapshot(r.Context(), snap)
	default:
		err = s.Coordinator.ProblemChanged(r.Context(), snap)
	}
	if err != nil {
		var mismatch *plan.UnitMismatchError
		var missing *plan.MissingRouteError
		switch {
		case errors.As(err, &mismatch):
			writeProblem(w, http.StatusBadRequest, "Unit mismatch", err.Error(), r.URL.Path)
		case errors.As(err, &missing):
			writeProblem(w, http.StatusUnprocessableEntity, "Incomplete snapshot", err.Error(), r.URL.Path)
		default:
			writeProblem(w, http.StatusInternalServerError, "Snapshot rejected", err.Error(), r.URL.Path)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"state": s.Coordinator.State().String()})
}

// CancelHandler handles POST /v1/cancel: revoke permission to run and stop
// the active search attempt.
func (s *Server) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.Coordinator.Cancel(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"state": s.Coordinator.State().String()})
}

// StatusHandler handles GET /v1/status.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":       s.Coordinator.State().String(),
		"isComputing": s.Coordinator.IsComputing(),
	})
}

// SchedulesHandler handles GET /v1/schedules and GET /v1/schedules/latest.
func (s *Server) SchedulesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if strings.HasSuffix(r.URL.Path, "/latest") {
		rec, err := s.Store.LatestSchedule(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
			return
		}
		if rec == nil {
			writeProblem(w, http.StatusNotFound, "No schedule published yet", "", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListSchedules(r.Context(), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// VehiclesHandler handles the per-vehicle route endpoints:
//
//	GET  /v1/vehicles/{id}/route    current queue and head
//	POST /v1/vehicles/{id}/advance  pop the head after servicing it
//	POST /v1/vehicles/{id}/plan     synchronous re-plan from a snapshot
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing vehicle id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	id, action := parts[0], parts[1]
	c := s.Hub.Get(id)

	switch action {
	case "route":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		cur, ok := c.Current()
		resp := map[string]any{"vehicleId": id, "route": c.Route(), "hasNext": c.HasNext()}
		if ok {
			resp["current"] = cur
		}
		writeJSON(w, http.StatusOK, resp)
	case "advance":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !c.HasNext() {
			writeProblem(w, http.StatusConflict, "Route exhausted", "no next parcel to advance past", r.URL.Path)
			return
		}
		c.Advance()
		writeJSON(w, http.StatusOK, map[string]any{"vehicleId": id, "route": c.Route()})
	case "plan":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var snap model.WorldSnapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if snap.Units == (model.Units{}) {
			snap.Units = model.DefaultUnits()
		}
		if err := validateSnapshot(&snap); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid snapshot", err.Error(), r.URL.Path)
			return
		}
		route, err := s.Planner.Update(r.Context(), snap, id, c.Route())
		if err != nil {
			if errors.Is(err, rt.ErrInfeasible) {
				writeProblem(w, http.StatusUnprocessableEntity, "No feasible route", err.Error(), r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Plan failed", err.Error(), r.URL.Path)
			return
		}
		c.Replace(route)
		writeJSON(w, http.StatusOK, map[string]any{"vehicleId": id, "route": route})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions and
// DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	if rest := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/"); rest != r.URL.Path && rest != "" {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := s.Store.DeleteSubscription(r.Context(), rest); err != nil {
			writeProblem(w, http.StatusNotFound, "Subscription not found", err.Error(), r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req struct {
			URL    string `json:"url"`
			Secret string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" {
			writeProblem(w, http.StatusBadRequest, "Missing url", "", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req.URL, req.Secret)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		subs, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": subs})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// StreamHandler handles GET /v1/schedules/stream: an SSE feed of schedule
// publications and search lifecycle events.
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(sink.TopicSchedules)
	defer s.Broker.Unsubscribe(sink.TopicSchedules, ch)
	// initial heartbeat
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			b, _ := json.Marshal(evt)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// HealthzHandler handles GET /healthz.
func (s *Server) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}
