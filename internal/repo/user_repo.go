// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model
// consumed by the bearer-token middleware and the admin CRUD surface.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

// GetUserByToken returns the active user owning the bearer token, or
// ErrNotFound. Inactive users cannot authenticate.
func GetUserByToken(ctx context.Context, db *gorm.DB, token string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("token = ? AND active = ?", token, true).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by ID scoped to the organization.
func GetUser(ctx context.Context, db *gorm.DB, orgID, id string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CountUsers returns the number of users in the organization.
func CountUsers(ctx context.Context, db *gorm.DB, orgID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("organization_id = ?", orgID).
		Count(&total).Error
	return total, err
}

// ListUsersPage returns a page of the organization's users ordered by
// creation time ascending (stable roster order).
func ListUsersPage(ctx context.Context, db *gorm.DB, orgID string, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CreateUser inserts a new user row.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser applies the given column updates to a user in the organization.
// Returns ErrNotFound when no row matched.
func UpdateUser(ctx context.Context, db *gorm.DB, orgID, id string, updates map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
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

// DeleteUser soft-deletes a user in the organization. Returns ErrNotFound
// when no row matched.
func DeleteUser(ctx context.Context, db *gorm.DB, orgID, id string) error {
	res := db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Delete(&domain.User{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
