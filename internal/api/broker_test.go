package api

import (
	"testing"
	"time"

	"pdpnav/internal/sink"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(sink.TopicSchedules)

	evt := sink.Event{Type: "test.event", TS: "now"}
	b.Publish(sink.TopicSchedules, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(sink.TopicSchedules, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerDropsWhenSubscriberSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(sink.TopicSchedules)
	defer b.Unsubscribe(sink.TopicSchedules, ch)

	// Overfill the buffer; Publish never blocks.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(sink.TopicSchedules, sink.Event{Type: "burst"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBrokerIsolatesTopics(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("other")
	defer b.Unsubscribe("other", ch)

	b.Publish(sink.TopicSchedules, sink.Event{Type: "x"})
	select {
	case <-ch:
		t.Fatal("event crossed topics")
	case <-time.After(50 * time.Millisecond):
	}
}
