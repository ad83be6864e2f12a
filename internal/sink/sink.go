// Package sink fans coordinator output out to the schedule store, the event
// broker and webhook subscribers. It is the host-facing schedule sink: all
// methods are push-style and return without waiting for downstream
// processing.
package sink

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"pdpnav/internal/model"
	"pdpnav/internal/route"
	"pdpnav/internal/store"
)

// Publisher delivers schedule events to stream subscribers (SSE/websocket).
type Publisher interface {
	Publish(topic string, event Event)
}

// Event is one sink notification as seen by stream subscribers.
type Event struct {
	Type     string          `json:"type"`
	Schedule *model.Schedule `json:"schedule,omitempty"`
	Error    string          `json:"error,omitempty"`
	TS       string          `json:"ts"`
}

const (
	TopicSchedules = "schedules"

	EventSchedule   = "schedule.updated"
	EventDoneForNow = "search.done"
	EventError      = "search.error"
)

// Fanout implements the coordinator's Sink.
type Fanout struct {
	Store  store.Store
	Pub    Publisher
	Hub    *route.Hub
	Errors chan error
}

func NewFanout(s store.Store, pub Publisher, hub *route.Hub) *Fanout {
	return &Fanout{Store: s, Pub: pub, Hub: hub, Errors: make(chan error, 16)}
}

// UpdateSchedule archives the schedule, replaces every consumer's queue and
// notifies stream and webhook subscribers. Idempotent replacement semantics:
// repeated publications of the same schedule are harmless.
func (f *Fanout) UpdateSchedule(snapshot model.WorldSnapshot, schedule model.Schedule) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schedule.ID = uuid.New().String()
	schedule.SnapshotTime = snapshot.Time
	if _, err := f.Store.SaveSchedule(ctx, store.ScheduleRecord{
		ID:           schedule.ID,
		SnapshotTime: snapshot.Time,
		Cost:         schedule.Cost,
		Schedule:     schedule,
	}); err != nil {
		log.Printf("archive schedule: %v", err)
	}

	if f.Hub != nil {
		f.Hub.Apply(schedule)
	}
	if f.Pub != nil {
		s := schedule
		f.Pub.Publish(TopicSchedules, Event{
			Type: EventSchedule, Schedule: &s, TS: time.Now().UTC().Format(time.RFC3339),
		})
	}
	f.enqueuePushes(ctx, EventSchedule, schedule)
}

// DoneForNow signals that no further improvement is forthcoming until the
// world changes again.
func (f *Fanout) DoneForNow() {
	if f.Pub != nil {
		f.Pub.Publish(TopicSchedules, Event{
			Type: EventDoneForNow, TS: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReportError forwards a fatal search anomaly to the host's error channel.
func (f *Fanout) ReportError(err error) {
	log.Printf("search error: %v", err)
	select {
	case f.Errors <- err:
	default:
	}
	if f.Pub != nil {
		f.Pub.Publish(TopicSchedules, Event{
			Type: EventError, Error: err.Error(), TS: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (f *Fanout) enqueuePushes(ctx context.Context, eventType string, schedule model.Schedule) {
	subs, err := f.Store.ListSubscriptions(ctx)
	if err != nil || len(subs) == 0 {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"id":       "evt_" + uuid.New().String(),
		"type":     eventType,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"schedule": schedule,
	})
	for _, s := range subs {
		_ = f.Store.EnqueuePush(ctx, store.Push{
			SubscriptionID: s.ID,
			URL:            s.URL,
			Secret:         s.Secret,
			EventType:      eventType,
			Payload:        payload,
		})
	}
}
