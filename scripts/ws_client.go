// Package main runs a demo WebSocket client for schedule events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS first so we see the publication
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// connection_init
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// subscribe to schedule publications
	pl, _ := json.Marshal(map[string]any{"events": []string{"schedule.updated", "search.done"}})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger a search with a tiny two-parcel world
	body := []byte(`{
	  "time": 0,
	  "available": [
	    {"id": "p1", "pickup": {"lat": 51.0, "lng": 4.0}, "delivery": {"lat": 51.1, "lng": 4.1},
	     "pickupTw": {"start": 0, "end": 3600000}, "deliveryTw": {"start": 0, "end": 7200000}},
	    {"id": "p2", "pickup": {"lat": 51.2, "lng": 4.0}, "delivery": {"lat": 51.0, "lng": 4.2},
	     "pickupTw": {"start": 0, "end": 3600000}, "deliveryTw": {"start": 0, "end": 7200000}}
	  ],
	  "vehicles": [
	    {"id": "v1", "location": {"lat": 51.05, "lng": 4.05}, "speedKmh": 50, "capacity": 10,
	     "shift": {"start": 0, "end": 28800000}}
	  ]
	}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/snapshots?mode=problem-changed", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("snapshot accepted: %s", resp.Status)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}
