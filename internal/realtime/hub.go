// Package realtime provides the in-process publish/subscribe hub that feeds
// message inserts to connected operator clients (the SSE stream and, through
// it, the chat timeline synchronizer).
//
// The hub is deliberately process-local: the pipeline itself is stateless per
// request, and the hub only accelerates UI updates. A subscriber that misses
// an event (slow consumer, reconnect) recovers by refetching the newest page,
// so publishing is non-blocking and drops rather than stalls.
package realtime

import (
	"sync"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

// Event is one realtime message insert, scoped to an organization.
type Event struct {
	OrganizationID string         `json:"organization_id"`
	SessionID      string         `json:"session_id"`
	Message        domain.Message `json:"message"`
}

// subscriber buffer size. Slow consumers lose events past this depth.
const subscriberBuffer = 16

// Hub fans out events to per-organization subscribers. Safe for concurrent
// use.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{} // orgID -> subscriber set
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for the organization's events. The returned
// cancel function must be called when the consumer goes away; it closes the
// channel.
func (h *Hub) Subscribe(orgID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[orgID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[orgID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[orgID]; ok {
			if _, present := set[ch]; present {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(h.subs, orgID)
				}
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its organization.
// Delivery is best-effort: a full subscriber buffer drops the event for that
// subscriber instead of blocking the request path.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[evt.OrganizationID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscribers for an
// organization. Used by tests and the health surface.
func (h *Hub) SubscriberCount(orgID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orgID])
}
