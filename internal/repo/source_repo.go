// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for inbound source
// and outbound endpoint configuration rows.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

// GetInboundSource fetches an inbound source by ID regardless of active
// state. Callers decide how to respond to inactive sources (the webhook
// route answers 404 for them, same as unknown IDs).
func GetInboundSource(ctx context.Context, db *gorm.DB, id string) (*domain.InboundSource, error) {
	var s domain.InboundSource
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetActiveOutboundEndpoint returns the organization's single honored
// outbound webhook endpoint: the most recently created active row. Returns
// ErrNotFound when none is configured.
func GetActiveOutboundEndpoint(ctx context.Context, db *gorm.DB, orgID string) (*domain.OutboundEndpoint, error) {
	var e domain.OutboundEndpoint
	err := db.WithContext(ctx).
		Where("organization_id = ? AND active = ?", orgID, true).
		Order("created_at DESC").
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}
