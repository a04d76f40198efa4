// Package stream fans accepted-session events out to live subscribers.
package stream

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventSessionAccepted = "session.accepted"
	EventRateLimited     = "session.rate_limited"
)

type Event struct {
	Type string          `json:"type"`
	At   string          `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType string, data interface{}) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{Type: eventType, At: time.Now().UTC().Format(time.RFC3339Nano), Data: raw}
}

// SessionAccepted summarizes an ingested session for stream consumers.
// Raw signal payloads never enter the stream.
type SessionAccepted struct {
	SessionID       string  `json:"session_id"`
	FingerprintHash string  `json:"fingerprint_hash"`
	Confidence      float64 `json:"confidence"`
	IP              string  `json:"ip,omitempty"`
}

type RateLimited struct {
	Identity string `json:"identity"`
	Limit    int64  `json:"limit"`
	Count    int64  `json:"count"`
}

// Hub is a non-blocking broadcast fan-out. Slow subscribers drop events
// rather than stalling ingest.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Event]struct{}{}}
}

func (h *Hub) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	_, exists := h.subs[ch]
	if exists {
		delete(h.subs, ch)
	}
	h.mu.Unlock()
	if exists {
		close(ch)
	}
}

func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
