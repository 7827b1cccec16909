// Package services – DealService
//
// This file implements the deal upserter. An open deal (not won, not lost)
// for the (board, contact) pair configured on the inbound source is treated
// as canonical: re-ingestion updates its title/value/custom metadata in place
// and leaves its stage alone, so pipeline position can only be moved forward
// by operators, never regressed by a webhook. Closed deals are never touched
// and never block creation of a fresh open deal.
package services

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/ingest"
	"github.com/fluxleads/flux-leads-backend/internal/repo"
)

// defaultDealTitle names deals created from payloads that carried no title.
const defaultDealTitle = "New lead"

// DealService owns open-deal upsert semantics for inbound leads.
type DealService struct {
	DB *gorm.DB

	// Defaults applied to newly created deals.
	DefaultProbability int
	DefaultPriority    string
}

// Upsert finds the open deal for the source's board and the resolved contact,
// updating it in place, or creates one at the source's entry stage. It
// guarantees: is_won/is_lost are never mutated, the stage of an existing deal
// is never changed, and a second open deal is never created while one exists.
func (s *DealService) Upsert(ctx context.Context, src *domain.InboundSource, contact *domain.Contact, company *domain.Company, lead *ingest.Lead) (*domain.Deal, error) {
	var companyID *string
	if company != nil {
		companyID = &company.ID
	}

	existing, err := repo.FindOpenDeal(ctx, s.DB, src.OrganizationID, src.BoardID, contact.ID)
	switch {
	case err == nil:
		return repo.UpdateDealFromIngest(ctx, s.DB, existing, lead.DealTitle, lead.DealValue, companyID, lead.CustomFields)

	case errors.Is(err, repo.ErrNotFound):
		title := lead.DealTitle
		if title == "" {
			title = defaultDealTitle
		}
		d := &domain.Deal{
			OrganizationID:  src.OrganizationID,
			BoardID:         src.BoardID,
			StageID:         src.EntryStageID,
			ContactID:       contact.ID,
			ClientCompanyID: companyID,
			Title:           title,
			Probability:     s.DefaultProbability,
			Priority:        s.DefaultPriority,
		}
		if lead.DealValue != nil {
			d.Value = *lead.DealValue
		}
		if len(lead.CustomFields) > 0 {
			d.CustomFields = datatypes.JSONMap(lead.CustomFields)
		}
		return repo.CreateDeal(ctx, s.DB, d)

	default:
		return nil, err
	}
}
