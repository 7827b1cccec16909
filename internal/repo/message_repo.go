// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the echo-claim query used by the deduplicator.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

// CreateMessage inserts a new message row, assigning an ID and UTC creation
// time when absent.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (*domain.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID scoped to the organization.
func GetMessage(ctx context.Context, db *gorm.DB, orgID, id string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages returns the number of messages in a session.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error
	return total, err
}

// ListMessagesDesc returns a page of messages for the session in descending
// creation order (newest first). The timeline client reverses the page for
// chronological display; ties on created_at break by ID for determinism.
func ListMessagesDesc(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// FindRecentOutboundEcho searches the dedup window for an outbound message in
// the session with byte-identical content and no confirmed external ID. It
// returns the newest match or ErrNotFound.
//
// This is the documented-weak exact-text heuristic: it cannot distinguish two
// legitimately identical sends inside the window, and it misses echoes whose
// text the provider transformed in transit.
func FindRecentOutboundEcho(ctx context.Context, db *gorm.DB, sessionID, content string, since time.Time) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ? AND direction = ? AND content = ? AND external_id IS NULL AND created_at >= ?",
			sessionID, domain.DirectionOutbound, content, since).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ClaimEcho records the provider's message ID on a locally persisted outbound
// row and marks it delivered. No new row is created for the echo.
func ClaimEcho(ctx context.Context, db *gorm.DB, messageID, externalID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND external_id IS NULL", messageID).
		Updates(map[string]any{
			"external_id": externalID,
			"status":      domain.StatusDelivered,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateMessageStatus sets the delivery status of a message.
func UpdateMessageStatus(ctx context.Context, db *gorm.DB, orgID, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND organization_id = ?", id, orgID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
