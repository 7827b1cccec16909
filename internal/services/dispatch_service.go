// Package services – DispatchService
//
// This file implements the outbound delivery dispatcher. An operator-composed
// message is persisted immediately with status=sent — the local write is the
// system of record and must never depend on external delivery availability.
// Delivery to the organization's configured outbound webhook (n8n or similar,
// which performs the actual WhatsApp send) is strictly best-effort: no
// endpoint configured is a success-with-warning, and a failed POST is logged
// and surfaced as a soft warning, never as an API error. There is no retry
// and no backoff; the HTTP timeout is the only bound.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/ingest"
	"github.com/fluxleads/flux-leads-backend/internal/realtime"
	"github.com/fluxleads/flux-leads-backend/internal/repo"
)

// WarnNoEndpoint is returned as the warning string when the organization has
// no active outbound webhook configured.
const WarnNoEndpoint = "No active outbound webhook configured; message saved without external delivery"

// WarnDeliveryFailed is returned as the warning string when the POST to the
// outbound webhook did not succeed.
const WarnDeliveryFailed = "Outbound webhook delivery failed; message saved locally"

// SendRequest is an operator-composed outbound message.
type SendRequest struct {
	SessionID        string   `json:"session_id"`
	Content          string   `json:"content"`
	MediaURL         string   `json:"media_url"`
	MessageType      string   `json:"message_type"`
	ReplyToMessageID string   `json:"reply_to_message_id"`
	Mentions         []string `json:"mentions"`
}

// outboundEvent is the normalized payload POSTed to the outbound webhook.
type outboundEvent struct {
	Event          string   `json:"event"`
	OrganizationID string   `json:"organization_id"`
	SessionID      string   `json:"session_id"`
	MessageID      string   `json:"message_id"`
	ContactID      string   `json:"contact_id"`
	ProviderID     string   `json:"provider_id,omitempty"`
	Content        string   `json:"content,omitempty"`
	MediaURL       string   `json:"media_url,omitempty"`
	MessageType    string   `json:"message_type"`
	Mentions       []string `json:"mentions,omitempty"`
	// ReplyTo carries the resolved reply target so the delivery side can
	// quote it without a lookup.
	ReplyTo *outboundReplyTo `json:"reply_to,omitempty"`
}

type outboundReplyTo struct {
	MessageID  string `json:"message_id"`
	ExternalID string `json:"external_id,omitempty"`
	Content    string `json:"content"`
}

// DispatchService persists outbound messages and forwards them best-effort.
type DispatchService struct {
	DB     *gorm.DB
	Hub    *realtime.Hub
	Client *resty.Client
}

// NewDispatchService builds a dispatcher with a bounded-timeout resty client.
func NewDispatchService(db *gorm.DB, hub *realtime.Hub, timeout time.Duration) *DispatchService {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "flux-leads-backend")
	return &DispatchService{DB: db, Hub: hub, Client: client}
}

// Send persists the operator's message and forwards it to the organization's
// active outbound webhook. The returned warning is empty on full success;
// a non-empty warning with a nil error means the message was saved but not
// (or not confirmably) delivered externally.
func (s *DispatchService) Send(ctx context.Context, orgID string, req SendRequest) (*domain.Message, string, error) {
	tr := otel.Tracer("services/DispatchService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)),
	)
	defer span.End()

	if req.Content == "" && req.MediaURL == "" {
		return nil, "", ErrEmptyMessage
	}

	session, err := repo.GetSession(ctx, s.DB, orgID, req.SessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, "", ErrSessionNotFound
		}
		return nil, "", err
	}

	var replyTo *outboundReplyTo
	if req.ReplyToMessageID != "" {
		target, err := repo.GetMessage(ctx, s.DB, orgID, req.ReplyToMessageID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, "", ErrMessageNotFound
			}
			return nil, "", err
		}
		replyTo = &outboundReplyTo{MessageID: target.ID, Content: target.Content}
		if target.ExternalID != nil {
			replyTo.ExternalID = *target.ExternalID
		}
	}

	msgType := req.MessageType
	if msgType == "" {
		if req.MediaURL != "" {
			msgType = ingest.TypeImage
		} else {
			msgType = ingest.TypeText
		}
	}

	now := time.Now().UTC()
	m := &domain.Message{
		OrganizationID: orgID,
		SessionID:      session.ID,
		Direction:      domain.DirectionOutbound,
		Content:        req.Content,
		MessageType:    msgType,
		Status:         domain.StatusSent,
		CreatedAt:      now,
	}
	if req.MediaURL != "" {
		mediaURL := req.MediaURL
		m.MediaURL = &mediaURL
	}
	if req.ReplyToMessageID != "" {
		replyID := req.ReplyToMessageID
		m.ReplyToMessageID = &replyID
	}

	saved, err := repo.CreateMessage(ctx, s.DB, m)
	if err != nil {
		return nil, "", err
	}
	// Operator-authored: timestamp advances, unread does not.
	if err := repo.TouchSession(ctx, s.DB, orgID, session.ID, now, false); err != nil {
		return nil, "", err
	}
	if s.Hub != nil {
		s.Hub.Publish(realtime.Event{
			OrganizationID: orgID,
			SessionID:      session.ID,
			Message:        *saved,
		})
	}

	warning := s.forward(ctx, orgID, session, saved, req.Mentions, replyTo)
	return saved, warning, nil
}

// forward POSTs the normalized event to the active outbound endpoint. All
// failure modes collapse to a warning string; the local write already
// succeeded and is authoritative.
func (s *DispatchService) forward(ctx context.Context, orgID string, session *domain.ChatSession, m *domain.Message, mentions []string, replyTo *outboundReplyTo) string {
	endpoint, err := repo.GetActiveOutboundEndpoint(ctx, s.DB, orgID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return WarnNoEndpoint
		}
		log.Error().Err(err).Str("organization_id", orgID).Msg("outbound endpoint lookup failed")
		return WarnDeliveryFailed
	}

	evt := outboundEvent{
		Event:          "message.send",
		OrganizationID: orgID,
		SessionID:      session.ID,
		MessageID:      m.ID,
		ContactID:      session.ContactID,
		ProviderID:     session.ProviderID,
		Content:        m.Content,
		MessageType:    m.MessageType,
		Mentions:       mentions,
		ReplyTo:        replyTo,
	}
	if m.MediaURL != nil {
		evt.MediaURL = *m.MediaURL
	}

	resp, err := s.Client.R().
		SetContext(ctx).
		SetHeader("X-Webhook-Secret", endpoint.Secret).
		SetBody(evt).
		Post(endpoint.URL)
	if err != nil {
		log.Warn().Err(err).
			Str("endpoint", endpoint.URL).
			Str("message_id", m.ID).
			Msg("outbound webhook delivery failed")
		return WarnDeliveryFailed
	}
	if resp.IsError() {
		log.Warn().
			Int("status", resp.StatusCode()).
			Str("endpoint", endpoint.URL).
			Str("message_id", m.ID).
			Msg("outbound webhook answered non-2xx")
		return WarnDeliveryFailed
	}
	return ""
}
