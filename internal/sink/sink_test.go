package sink

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"pdpnav/internal/model"
	"pdpnav/internal/route"
	"pdpnav/internal/store"
)

type capturePub struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePub) Publish(topic string, e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *capturePub) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func TestFanoutUpdateSchedule(t *testing.T) {
	mem := store.NewMemory()
	pub := &capturePub{}
	hub := route.NewHub()
	f := NewFanout(mem, pub, hub)

	if _, err := mem.CreateSubscription(context.Background(), "http://example.invalid/hook", "s"); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	snap := model.WorldSnapshot{Time: 99}
	sched := model.Schedule{
		Cost:   12.5,
		Routes: []model.VehicleRoute{{VehicleID: "v1", Parcels: []string{"p1", "p1"}}},
	}
	f.UpdateSchedule(snap, sched)

	// Archived with the snapshot time.
	rec, err := mem.LatestSchedule(context.Background())
	if err != nil || rec == nil {
		t.Fatalf("LatestSchedule: %v %v", rec, err)
	}
	if rec.SnapshotTime != 99 || rec.Cost != 12.5 {
		t.Fatalf("record: %+v", rec)
	}

	// Consumers got their segment.
	if got := hub.Get("v1").Route(); !reflect.DeepEqual(got, []string{"p1", "p1"}) {
		t.Fatalf("consumer route: %v", got)
	}

	// Stream subscribers saw exactly one schedule event.
	if got := pub.types(); !reflect.DeepEqual(got, []string{EventSchedule}) {
		t.Fatalf("events: %v", got)
	}

	// One webhook push queued for the subscription.
	due, _ := mem.FetchDuePushes(context.Background(), 10)
	if len(due) != 1 || due[0].EventType != EventSchedule {
		t.Fatalf("pushes: %+v", due)
	}
}

func TestFanoutDoneForNow(t *testing.T) {
	pub := &capturePub{}
	f := NewFanout(store.NewMemory(), pub, nil)
	f.DoneForNow()
	if got := pub.types(); !reflect.DeepEqual(got, []string{EventDoneForNow}) {
		t.Fatalf("events: %v", got)
	}
}

func TestFanoutReportError(t *testing.T) {
	pub := &capturePub{}
	f := NewFanout(store.NewMemory(), pub, nil)
	boom := errors.New("boom")
	f.ReportError(boom)

	select {
	case err := <-f.Errors:
		if !errors.Is(err, boom) {
			t.Fatalf("got %v", err)
		}
	default:
		t.Fatalf("error not delivered to host channel")
	}
	if got := pub.types(); !reflect.DeepEqual(got, []string{EventError}) {
		t.Fatalf("events: %v", got)
	}
}
