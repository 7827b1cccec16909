// Package services – MessageService
//
// This file implements the session/message persister and the echo
// deduplicator. It finds or creates the chat session for the routed contact,
// collapses provider echoes of operator-sent messages onto the locally
// persisted row, inserts new message rows, and maintains the session's
// last-message timestamp and unread counter.
//
// Dedup contract: only events marked from-me are candidates. A match is an
// outbound message in the same session with byte-identical content, no
// confirmed external ID, and a creation time inside the dedup window. On
// match the existing row is claimed (external ID recorded, status delivered)
// and no new row is inserted. Exact-text matching is a known-weak heuristic —
// it fails on provider-side text transformation and on legitimately repeated
// identical texts — and is preserved as specified rather than "fixed".
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/ingest"
	"github.com/fluxleads/flux-leads-backend/internal/realtime"
	"github.com/fluxleads/flux-leads-backend/internal/repo"
)

// MessageService persists chat sessions and messages for the pipeline.
type MessageService struct {
	DB  *gorm.DB
	Hub *realtime.Hub

	// DedupWindow bounds the echo search (defaults to 2 minutes).
	DedupWindow time.Duration

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// PersistResult reports what the persister did with one message.
type PersistResult struct {
	Session *domain.ChatSession
	Message *domain.Message
	// Deduplicated is true when the message collapsed onto an existing
	// outbound row instead of inserting a new one.
	Deduplicated bool
}

// Persist applies one routed message to the store: find-or-create the
// session, dedup or insert the message, update session counters, and publish
// the insert to the realtime hub.
func (s *MessageService) Persist(ctx context.Context, orgID string, routing *Routing, lead *ingest.Lead) (*PersistResult, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Persist",
		trace.WithAttributes(
			attribute.String("contact.id", routing.Contact.ID),
			attribute.String("direction", routing.Direction),
		),
	)
	defer span.End()

	session, err := s.findOrCreateSession(ctx, orgID, routing)
	if err != nil {
		return nil, err
	}

	now := s.clock()()

	// Echo dedup applies only to operator-self-sent events.
	if lead.IsFromMe && routing.Content != "" {
		window := s.DedupWindow
		if window <= 0 {
			window = 2 * time.Minute
		}
		prior, err := repo.FindRecentOutboundEcho(ctx, s.DB, session.ID, routing.Content, now.Add(-window))
		switch {
		case err == nil:
			if lead.ExternalMessageID != "" {
				if err := repo.ClaimEcho(ctx, s.DB, prior.ID, lead.ExternalMessageID); err != nil && !errors.Is(err, repo.ErrNotFound) {
					return nil, err
				}
			}
			// Echoes never bump unread; the timestamp still advances.
			if err := repo.TouchSession(ctx, s.DB, orgID, session.ID, now, false); err != nil {
				return nil, err
			}
			claimed, err := repo.GetMessage(ctx, s.DB, orgID, prior.ID)
			if err != nil {
				return nil, err
			}
			return &PersistResult{Session: session, Message: claimed, Deduplicated: true}, nil
		case !errors.Is(err, repo.ErrNotFound):
			return nil, err
		}
		// No match: the operator sent from a device outside this system;
		// fall through and insert a fresh outbound row.
	}

	m := &domain.Message{
		OrganizationID: orgID,
		SessionID:      session.ID,
		Direction:      routing.Direction,
		Content:        routing.Content,
		MessageType:    lead.MessageType,
		Status:         domain.StatusDelivered,
		CreatedAt:      now,
	}
	if m.MessageType == "" {
		m.MessageType = ingest.TypeText
	}
	if lead.MediaURL != "" {
		mediaURL := lead.MediaURL
		m.MediaURL = &mediaURL
	}
	if lead.ExternalMessageID != "" {
		extID := lead.ExternalMessageID
		m.ExternalID = &extID
	}

	inserted, err := repo.CreateMessage(ctx, s.DB, m)
	if err != nil {
		return nil, err
	}

	incrementUnread := routing.Direction == domain.DirectionInbound
	if err := repo.TouchSession(ctx, s.DB, orgID, session.ID, now, incrementUnread); err != nil {
		return nil, err
	}

	if s.Hub != nil {
		s.Hub.Publish(realtime.Event{
			OrganizationID: orgID,
			SessionID:      session.ID,
			Message:        *inserted,
		})
	}
	return &PersistResult{Session: session, Message: inserted}, nil
}

// ListPage returns one descending page of a session's messages plus the
// total count, verifying tenant ownership of the session first.
func (s *MessageService) ListPage(ctx context.Context, orgID, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if _, err := repo.GetSession(ctx, s.DB, orgID, sessionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrSessionNotFound
		}
		return nil, 0, err
	}
	total, err := repo.CountMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesDesc(ctx, s.DB, sessionID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// ListSessions returns one page of the organization's sessions ordered by
// recency, plus the total count.
func (s *MessageService) ListSessions(ctx context.Context, orgID string, page, pageSize int) ([]domain.ChatSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountSessions(ctx, s.DB, orgID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatSession{}, 0, nil
	}
	items, err := repo.ListSessionsPage(ctx, s.DB, orgID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// MarkRead zeroes a session's unread counter.
func (s *MessageService) MarkRead(ctx context.Context, orgID, sessionID string) error {
	err := repo.ResetUnread(ctx, s.DB, orgID, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func (s *MessageService) findOrCreateSession(ctx context.Context, orgID string, routing *Routing) (*domain.ChatSession, error) {
	session, err := repo.GetSessionByContact(ctx, s.DB, orgID, routing.Contact.ID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return repo.CreateSession(ctx, s.DB, &domain.ChatSession{
		OrganizationID: orgID,
		ContactID:      routing.Contact.ID,
		Provider:       "whatsapp",
		ProviderID:     routing.ProviderID,
		LastMessageAt:  s.clock()(),
	})
}

func (s *MessageService) clock() func() time.Time {
	if s.now != nil {
		return s.now
	}
	return func() time.Time { return time.Now().UTC() }
}
