// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Deal model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

// FindOpenDeal returns the canonical open deal (is_won=false AND
// is_lost=false) for the (organization, board, contact) triple, or
// ErrNotFound. When more than one open deal exists (pre-existing data), the
// oldest is treated as canonical.
func FindOpenDeal(ctx context.Context, db *gorm.DB, orgID, boardID, contactID string) (*domain.Deal, error) {
	var d domain.Deal
	err := db.WithContext(ctx).
		Where("organization_id = ? AND board_id = ? AND contact_id = ? AND is_won = ? AND is_lost = ?",
			orgID, boardID, contactID, false, false).
		Order("created_at ASC").
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDeal inserts a new deal row at the given stage.
func CreateDeal(ctx context.Context, db *gorm.DB, d *domain.Deal) (*domain.Deal, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateDealFromIngest applies re-ingestion updates to an existing open deal:
// title, value, optional company link, and merged custom fields. Stage,
// is_won, and is_lost are deliberately absent from the update set so that
// re-ingestion can never regress pipeline position or reopen a closed deal.
func UpdateDealFromIngest(ctx context.Context, db *gorm.DB, d *domain.Deal, title string, value *float64, companyID *string, custom map[string]any) (*domain.Deal, error) {
	updates := map[string]any{}
	if title != "" {
		updates["title"] = title
	}
	if value != nil {
		updates["value"] = *value
	}
	if companyID != nil && d.ClientCompanyID == nil {
		updates["client_company_id"] = *companyID
	}
	if len(custom) > 0 {
		merged := map[string]any{}
		for k, v := range d.CustomFields {
			merged[k] = v
		}
		for k, v := range custom {
			merged[k] = v
		}
		updates["custom_fields"] = datatypes.JSONMap(merged)
	}
	if len(updates) == 0 {
		return d, nil
	}
	err := db.WithContext(ctx).
		Model(&domain.Deal{}).
		Where("id = ? AND organization_id = ?", d.ID, d.OrganizationID).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}
	var out domain.Deal
	if err := db.WithContext(ctx).First(&out, "id = ?", d.ID).Error; err != nil {
		return nil, err
	}
	return &out, nil
}
