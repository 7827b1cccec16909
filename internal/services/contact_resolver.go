// Package services – ContactResolver
//
// This file implements the contact/company resolver: the pipeline stage that
// turns a normalized lead into persisted Contact and Company rows within the
// target organization.
//
// Matching is an OR of exact email/phone equality within the organization,
// first match wins; there is no fuzzy matching. Existing non-empty fields are
// never overwritten — new data only back-fills blanks. Company rows are
// looked up by exact name and created when absent.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/ingest"
	"github.com/fluxleads/flux-leads-backend/internal/repo"
)

// ContactResolver finds or creates contacts and companies for inbound leads.
type ContactResolver struct {
	DB *gorm.DB
}

// Resolve upserts a Contact and, when the lead names a company, a Company
// linked to it. It returns (nil, nil, nil) when the lead carries neither an
// email nor a phone: callers that still need a chat contact (JID-only
// payloads) fall through to the chat router's own resolution.
func (r *ContactResolver) Resolve(ctx context.Context, orgID string, lead *ingest.Lead) (*domain.Contact, *domain.Company, error) {
	var company *domain.Company
	if lead.CompanyName != "" {
		co, err := r.findOrCreateCompany(ctx, orgID, lead.CompanyName)
		if err != nil {
			return nil, nil, err
		}
		company = co
	}

	if lead.ContactEmail == "" && lead.ContactPhone == "" {
		return nil, company, nil
	}

	contact, err := repo.FindContactByEmailOrPhone(ctx, r.DB, orgID, lead.ContactEmail, lead.ContactPhone)
	switch {
	case err == nil:
		var companyID *string
		if company != nil {
			companyID = &company.ID
		}
		contact, err = repo.BackfillContact(ctx, r.DB, contact, lead.ContactName, lead.ContactEmail, lead.ContactPhone, companyID)
		if err != nil {
			return nil, nil, err
		}
		return contact, company, nil

	case errors.Is(err, repo.ErrNotFound):
		c := &domain.Contact{
			OrganizationID: orgID,
			Name:           contactDisplayName(lead),
			Source:         contactSource(lead),
		}
		if lead.ContactEmail != "" {
			email := lead.ContactEmail
			c.Email = &email
		}
		if lead.ContactPhone != "" {
			phone := lead.ContactPhone
			c.Phone = &phone
		}
		if company != nil {
			c.ClientCompanyID = &company.ID
		}
		created, err := repo.CreateContact(ctx, r.DB, c)
		if err != nil {
			return nil, nil, err
		}
		return created, company, nil

	default:
		return nil, nil, err
	}
}

func (r *ContactResolver) findOrCreateCompany(ctx context.Context, orgID, name string) (*domain.Company, error) {
	co, err := repo.FindCompanyByName(ctx, r.DB, orgID, name)
	if err == nil {
		return co, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return repo.CreateCompany(ctx, r.DB, orgID, name)
}

// contactDisplayName picks a human-readable name for a new contact, falling
// back through the identity fields the payload actually carried.
func contactDisplayName(lead *ingest.Lead) string {
	switch {
	case lead.ContactName != "":
		return lead.ContactName
	case lead.ContactEmail != "":
		return lead.ContactEmail
	default:
		return lead.ContactPhone
	}
}

// contactSource labels where a new contact came from. Chat-born contacts are
// tagged whatsapp; plain lead submissions keep the generic webhook source.
func contactSource(lead *ingest.Lead) string {
	if lead.RemoteJID != "" || lead.GroupID != "" {
		return domain.SourceWhatsApp
	}
	return "webhook"
}
