// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the WebhookEvent
// ledger used to implement true idempotency against duplicate provider event
// delivery.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

// ErrDuplicateEvent indicates that a ledger row already exists for the given
// (source_id, external_event_id) tuple: the provider re-delivered an event
// the pipeline has already seen.
var ErrDuplicateEvent = errors.New("duplicate webhook event")

// CreateWebhookEvent appends a ledger row for an inbound provider event and
// returns ErrDuplicateEvent on a uniqueness violation. externalEventID may be
// empty, in which case the row is audit-only and never collides.
func CreateWebhookEvent(ctx context.Context, db *gorm.DB, sourceID, orgID, externalEventID string, payload []byte) (*domain.WebhookEvent, error) {
	rec := &domain.WebhookEvent{
		ID:             uuid.NewString(),
		SourceID:       sourceID,
		OrganizationID: orgID,
		Payload:        datatypes.JSON(payload),
		Status:         domain.EventStatusReceived,
		CreatedAt:      time.Now().UTC(),
	}
	if externalEventID != "" {
		rec.ExternalEventID = &externalEventID
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEvent
		}
		return nil, err
	}
	return rec, nil
}

// GetWebhookEvent returns the ledger row for (source_id, external_event_id),
// or ErrNotFound. Used to answer duplicate deliveries with the result IDs of
// the first run.
func GetWebhookEvent(ctx context.Context, db *gorm.DB, sourceID, externalEventID string) (*domain.WebhookEvent, error) {
	var rec domain.WebhookEvent
	err := db.WithContext(ctx).
		Where("source_id = ? AND external_event_id = ?", sourceID, externalEventID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkWebhookEventProcessed records the pipeline's result IDs on the ledger
// row and flips its status to processed. Any failure message from an earlier
// run of the same event is cleared.
func MarkWebhookEventProcessed(ctx context.Context, db *gorm.DB, id, contactID, dealID, sessionID, messageID string) error {
	return db.WithContext(ctx).
		Model(&domain.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.EventStatusProcessed,
			"contact_id": contactID,
			"deal_id":    dealID,
			"session_id": sessionID,
			"message_id": messageID,
			"error":      "",
		}).Error
}

// MarkWebhookEventFailed records a pipeline failure on the ledger row.
func MarkWebhookEventFailed(ctx context.Context, db *gorm.DB, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return db.WithContext(ctx).
		Model(&domain.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": domain.EventStatusFailed,
			"error":  msg,
		}).Error
}

// isUniqueViolation recognizes uniqueness errors across the supported
// drivers. glebarez/sqlite often returns plain-text errors for UNIQUE
// violations; Postgres reports SQLSTATE 23505 in the message.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") ||
		strings.Contains(low, "23505")
}
