package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Hub is the central event bus.
// It provides pub/sub semantics with typed events and non-blocking fan-out.
type Hub struct {
	mu   sync.RWMutex
	subs map[EventType][]chan Event

	// Global subscribers receive all events
	global []chan Event

	// Metrics
	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a new event hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[EventType][]chan Event),
	}
}

// Publish sends an event to all subscribers of that event type.
// This is non-blocking - if a subscriber's channel is full, the event is dropped.
func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	h.published.Add(1)

	for _, ch := range h.subs[e.Type] {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}

	for _, ch := range h.global {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel that receives events of the specified types.
// If no types are specified, subscribes to all events.
// The caller is responsible for draining the channel to avoid drops.
func (h *Hub) Subscribe(bufSize int, types ...EventType) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}

	ch := make(chan Event, bufSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(types) == 0 {
		h.global = append(h.global, ch)
	} else {
		for _, t := range types {
			h.subs[t] = append(h.subs[t], ch)
		}
	}

	return ch
}

// Unsubscribe removes a channel from all subscriptions.
// The channel is NOT closed by this method.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.global = removeFromSlice(h.global, ch)
	for t, subs := range h.subs {
		h.subs[t] = removeFromSlice(subs, ch)
		if len(h.subs[t]) == 0 {
			delete(h.subs, t)
		}
	}
}

// Subscribers returns the number of distinct subscription channels.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[chan Event]struct{}, len(h.global))
	for _, ch := range h.global {
		seen[ch] = struct{}{}
	}
	for _, subs := range h.subs {
		for _, ch := range subs {
			seen[ch] = struct{}{}
		}
	}
	return len(seen)
}

// Stats returns publish/drop counts for monitoring.
func (h *Hub) Stats() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}

// removeFromSlice removes a channel from a slice of channels.
func removeFromSlice(slice []chan Event, target <-chan Event) []chan Event {
	result := make([]chan Event, 0, len(slice))
	for _, ch := range slice {
		if ch != target {
			result = append(result, ch)
		}
	}
	return result
}

// ──────────────────────────────────────────────────────────────────────────────
// Convenience Methods
// ──────────────────────────────────────────────────────────────────────────────

// EmitStatusLine publishes a status line.
func (h *Hub) EmitStatusLine(ts time.Time, source, level, message string) {
	h.Publish(Event{
		Type:      EventStatusLine,
		Timestamp: ts,
		Source:    "status",
		Data: StatusLineData{
			Source:  source,
			Level:   level,
			Message: message,
		},
	})
}

// EmitJamState publishes the current jammed and pending address sets.
func (h *Hub) EmitJamState(jammed, pending []string) {
	h.Publish(Event{
		Type:   EventJamState,
		Source: "jammer",
		Data: JamStateData{
			JammedDevices:     jammed,
			JamPendingDevices: pending,
		},
	})
}

// EmitTrafficState publishes a monitoring session toggle.
func (h *Hub) EmitTrafficState(active bool) {
	h.Publish(Event{
		Type:   EventTrafficState,
		Source: "traffic",
		Data:   TrafficStateData{Active: active},
	})
}

// EmitTrafficSnapshot publishes a traffic snapshot. The payload must not be
// mutated after publishing.
func (h *Hub) EmitTrafficSnapshot(snapshot any) {
	h.Publish(Event{
		Type:   EventTrafficSnapshot,
		Source: "traffic",
		Data:   snapshot,
	})
}
