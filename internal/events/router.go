package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

const defaultBuffer = 16

// subscription is a single fan-out target. A nil types set means the
// subscriber receives every event.
type subscription struct {
	ch    chan Envelope
	types map[string]struct{}
}

func (s *subscription) wants(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Router fans envelopes out to subscribers over buffered channels. Slow
// subscribers never block publishers; envelopes that do not fit in a
// subscriber's buffer are dropped and logged.
type Router struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		logger: logger.With().Str("component", "events").Logger(),
		subs:   make(map[int]*subscription),
	}
}

// Subscribe registers a buffered channel for the given event types. No
// types subscribes to everything. The returned cancel func unregisters
// the subscriber and closes its channel; calling it twice is safe.
func (r *Router) Subscribe(buffer int, types ...string) (<-chan Envelope, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &subscription{ch: make(chan Envelope, buffer)}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := r.nextID
	r.nextID++
	r.subs[id] = sub
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

// Publish delivers e to every matching subscriber without blocking.
// Publishing on a closed router is a no-op.
func (r *Router) Publish(_ context.Context, e Envelope) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, sub := range r.subs {
		if !sub.wants(e.Type) {
			continue
		}
		if !trySend(sub.ch, e) {
			r.logger.Warn().
				Str("event_id", e.ID).
				Str("event_type", e.Type).
				Msg("subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount reports the number of registered subscribers.
func (r *Router) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Close unregisters every subscriber and closes their channels. Publishes
// after Close are dropped.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, sub := range r.subs {
		close(sub.ch)
		delete(r.subs, id)
	}
}

func trySend(ch chan Envelope, e Envelope) bool {
	select {
	case ch <- e:
		return true
	default:
		return false
	}
}
