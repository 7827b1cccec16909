// Package timeline implements the chat UI synchronizer: the client-side
// controller that keeps one session's visible message list consistent across
// optimistic sends, backward history pagination, and realtime inserts.
//
// The controller holds messages in chronological order. The server serves
// pages newest-first; LoadInitial and LoadOlder reverse each page before
// splicing it in. Sends append a temporary row immediately (status=sending)
// and either replace it with the authoritative row returned by the dispatch
// call or roll it back on failure. Realtime events for the active session
// append at the tail unless a message with the same ID is already present —
// which covers the echo of one's own insert arriving over the realtime
// channel.
//
// Scroll preservation: prepending older history grows the rendered list
// upward. The controller measures the rendered height before and after the
// prepend (via the caller-supplied Measurer) and advances ScrollOffset by the
// delta so the messages on screen do not visually jump.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

// Fetcher loads one descending page of a session's history.
type Fetcher interface {
	// Page returns up to limit messages starting at offset, newest first.
	Page(ctx context.Context, sessionID string, offset, limit int) ([]domain.Message, error)
}

// Sender dispatches an operator-composed message and returns the
// authoritative persisted row (plus a soft warning, which the controller
// ignores: a saved-but-undelivered message still belongs on the timeline).
type Sender interface {
	Send(ctx context.Context, sessionID, content, mediaURL string) (*domain.Message, string, error)
}

// Measurer reports the rendered height of a message list. The UI layer
// supplies it; tests use synthetic heights.
type Measurer func(msgs []domain.Message) int

// DefaultPageSize is the fixed history page size.
const DefaultPageSize = 50

// ErrNothingOlder is returned by LoadOlder once history is exhausted.
var ErrNothingOlder = errors.New("no older messages")

// tempSeq feeds locally-unique temporary message IDs.
var tempSeq atomic.Int64

// Timeline is the synchronizer state for one selected session. Safe for
// concurrent use (UI event loop vs realtime goroutine).
type Timeline struct {
	fetcher  Fetcher
	sender   Sender
	measure  Measurer
	pageSize int

	mu        sync.Mutex
	sessionID string
	msgs      []domain.Message // chronological
	// pagesLoaded counts server pages already spliced in; the next older
	// fetch starts at pagesLoaded*pageSize.
	pagesLoaded int
	exhausted   bool

	// ScrollOffset accumulates the height the view must shift down by to
	// keep the visible messages stationary after prepends.
	scrollOffset int
}

// New builds a timeline controller for one session.
func New(sessionID string, fetcher Fetcher, sender Sender, measure Measurer) *Timeline {
	if measure == nil {
		// Item count is a serviceable height proxy when the UI does not
		// supply real pixel measurements.
		measure = func(msgs []domain.Message) int { return len(msgs) }
	}
	return &Timeline{
		fetcher:   fetcher,
		sender:    sender,
		measure:   measure,
		pageSize:  DefaultPageSize,
		sessionID: sessionID,
	}
}

// Messages returns a snapshot of the chronological message list.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// ScrollOffset returns the accumulated scroll correction.
func (t *Timeline) ScrollOffset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scrollOffset
}

// LoadInitial fetches the newest page and resets the controller state.
func (t *Timeline) LoadInitial(ctx context.Context) error {
	page, err := t.fetcher.Page(ctx, t.sessionID, 0, t.pageSize)
	if err != nil {
		return err
	}
	reverse(page)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = page
	t.pagesLoaded = 1
	t.exhausted = len(page) < t.pageSize
	t.scrollOffset = 0
	return nil
}

// LoadOlder fetches the next older page and prepends it, preserving the
// visual scroll position. Triggered by the UI when the list is scrolled to
// the top.
func (t *Timeline) LoadOlder(ctx context.Context) error {
	t.mu.Lock()
	if t.exhausted {
		t.mu.Unlock()
		return ErrNothingOlder
	}
	offset := t.pagesLoaded * t.pageSize
	t.mu.Unlock()

	page, err := t.fetcher.Page(ctx, t.sessionID, offset, t.pageSize)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(page) == 0 {
		t.exhausted = true
		return ErrNothingOlder
	}
	reverse(page)

	heightBefore := t.measure(t.msgs)
	merged := make([]domain.Message, 0, len(page)+len(t.msgs))
	merged = append(merged, page...)
	merged = append(merged, t.msgs...)
	t.msgs = merged
	heightAfter := t.measure(t.msgs)

	t.scrollOffset += heightAfter - heightBefore
	t.pagesLoaded++
	if len(page) < t.pageSize {
		t.exhausted = true
	}
	return nil
}

// Send appends an optimistic temporary message, dispatches it, and replaces
// the temporary row with the authoritative server row. On dispatch failure
// the temporary row is removed and the error returned for the UI to surface.
func (t *Timeline) Send(ctx context.Context, content, mediaURL string) (*domain.Message, error) {
	temp := domain.Message{
		ID:        fmt.Sprintf("temp-%d", tempSeq.Add(1)),
		SessionID: t.sessionID,
		Direction: domain.DirectionOutbound,
		Content:   content,
		Status:    domain.StatusSending,
	}
	if mediaURL != "" {
		mu := mediaURL
		temp.MediaURL = &mu
	}

	t.mu.Lock()
	t.msgs = append(t.msgs, temp)
	t.mu.Unlock()

	saved, _, err := t.sender.Send(ctx, t.sessionID, content, mediaURL)
	if err != nil {
		t.removeByID(temp.ID)
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.msgs {
		if t.msgs[i].ID == temp.ID {
			t.msgs[i] = *saved
			return saved, nil
		}
	}
	// Temp row already gone (e.g. session reloaded mid-send): fall back to
	// the realtime-style merge.
	t.appendIfAbsentLocked(*saved)
	return saved, nil
}

// ApplyRealtime merges a realtime insert into the visible list. Events for
// other sessions are ignored; an ID already present (the echo of our own
// insert, or the dispatch response racing the push) is skipped.
func (t *Timeline) ApplyRealtime(m domain.Message) bool {
	if m.SessionID != t.sessionID {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendIfAbsentLocked(m)
}

func (t *Timeline) appendIfAbsentLocked(m domain.Message) bool {
	for i := range t.msgs {
		if t.msgs[i].ID == m.ID {
			return false
		}
	}
	t.msgs = append(t.msgs, m)
	return true
}

func (t *Timeline) removeByID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.msgs {
		if t.msgs[i].ID == id {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			return
		}
	}
}

func reverse(msgs []domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
