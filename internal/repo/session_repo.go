// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatSession
// model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

// GetSessionByContact returns the session for (organization, contact), or
// ErrNotFound.
func GetSessionByContact(ctx context.Context, db *gorm.DB, orgID, contactID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Where("organization_id = ? AND contact_id = ?", orgID, contactID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession fetches a session by ID scoped to the organization.
func GetSession(ctx context.Context, db *gorm.DB, orgID, id string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a session for the contact. The insert carries an
// ON CONFLICT DO NOTHING clause on the (organization_id, contact_id) unique
// index; when a concurrent first-contact request won the race, the existing
// session is fetched and returned so the thread is never split.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.ChatSession) (*domain.ChatSession, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(s)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return GetSessionByContact(ctx, db, s.OrganizationID, s.ContactID)
	}
	return s, nil
}

// TouchSession updates the session's last-message timestamp and, when
// incrementUnread is true, bumps the unread counter by one. The counter is
// only incremented for inbound messages the operator has not authored.
func TouchSession(ctx context.Context, db *gorm.DB, orgID, id string, at time.Time, incrementUnread bool) error {
	updates := map[string]any{"last_message_at": at}
	if incrementUnread {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND organization_id = ?", id, orgID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ResetUnread zeroes the unread counter (operator opened the thread).
func ResetUnread(ctx context.Context, db *gorm.DB, orgID, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND organization_id = ?", id, orgID).
		Update("unread_count", 0)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountSessions returns the number of sessions in the organization.
func CountSessions(ctx context.Context, db *gorm.DB, orgID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("organization_id = ?", orgID).
		Count(&total).Error
	return total, err
}

// ListSessionsPage returns a page of sessions ordered by last message time
// descending (most recently active first).
func ListSessionsPage(ctx context.Context, db *gorm.DB, orgID string, offset, limit int) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("last_message_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
