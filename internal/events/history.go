package events

import (
	"sync"
	"time"

	"spokestack-tray/internal/domain"
)

// History stores recent events and provides incremental reads.
type History struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []domain.Event
	now       func() time.Time
}

// NewHistory creates a bounded in-memory event buffer.
func NewHistory(maxEvents int) *History {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &History{
		maxEvents: maxEvents,
		events:    make([]domain.Event, 0, maxEvents),
		now:       time.Now,
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (h *History) Publish(event domain.Event) domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	event.Seq = h.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now().UTC()
	}

	h.events = append(h.events, event)
	if len(h.events) > h.maxEvents {
		trim := len(h.events) - h.maxEvents
		h.events = append([]domain.Event(nil), h.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (h *History) Since(seq int64) []domain.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.events) == 0 {
		return nil
	}

	out := make([]domain.Event, 0, len(h.events))
	for _, event := range h.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
