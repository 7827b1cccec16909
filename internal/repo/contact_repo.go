// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Contact
// and Company models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FindContactByEmailOrPhone returns the first contact in the organization
// whose email or phone exactly matches one of the given values. Email match
// wins over phone match when both exist; no fuzzy matching is attempted.
// Returns ErrNotFound when neither value matches.
func FindContactByEmailOrPhone(ctx context.Context, db *gorm.DB, orgID, email, phone string) (*domain.Contact, error) {
	if email != "" {
		var c domain.Contact
		err := db.WithContext(ctx).
			Where("organization_id = ? AND email = ?", orgID, email).
			First(&c).Error
		if err == nil {
			return &c, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}
	if phone != "" {
		var c domain.Contact
		err := db.WithContext(ctx).
			Where("organization_id = ? AND phone = ?", orgID, phone).
			First(&c).Error
		if err == nil {
			return &c, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// FindContactByPhone returns the contact with the exact phone within the
// organization, or ErrNotFound.
func FindContactByPhone(ctx context.Context, db *gorm.DB, orgID, phone string) (*domain.Contact, error) {
	var c domain.Contact
	err := db.WithContext(ctx).
		Where("organization_id = ? AND phone = ?", orgID, phone).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindContactsByPhones returns all contacts in the organization whose phone
// is one of the candidate values. Used by group routing, where the same
// group may have been recorded under its full JID or its bare numeric ID.
func FindContactsByPhones(ctx context.Context, db *gorm.DB, orgID string, phones []string) ([]domain.Contact, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	var out []domain.Contact
	err := db.WithContext(ctx).
		Where("organization_id = ? AND phone IN ?", orgID, phones).
		Find(&out).Error
	return out, err
}

// CreateContact inserts a new contact row. The insert carries an ON CONFLICT
// DO NOTHING clause on the (organization_id, phone) unique index: when a
// concurrent request created the same phone first, the insert is a no-op and
// the existing row is fetched and returned instead.
func CreateContact(ctx context.Context, db *gorm.DB, c *domain.Contact) (*domain.Contact, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(c)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 && c.Phone != nil {
		// Lost the race: return the winner.
		return FindContactByPhone(ctx, db, c.OrganizationID, *c.Phone)
	}
	return c, nil
}

// BackfillContact fills only the empty fields of an existing contact from
// newly ingested data. Populated fields are never overwritten. It returns
// the refreshed contact; when nothing needs filling it returns the input
// unchanged without touching the database.
func BackfillContact(ctx context.Context, db *gorm.DB, c *domain.Contact, name, email, phone string, companyID *string) (*domain.Contact, error) {
	updates := map[string]any{}
	if c.Name == "" && name != "" {
		updates["name"] = name
	}
	if c.Email == nil && email != "" {
		updates["email"] = email
	}
	if c.Phone == nil && phone != "" {
		updates["phone"] = phone
	}
	if c.ClientCompanyID == nil && companyID != nil {
		updates["client_company_id"] = *companyID
	}
	if len(updates) == 0 {
		return c, nil
	}
	err := db.WithContext(ctx).
		Model(&domain.Contact{}).
		Where("id = ? AND organization_id = ?", c.ID, c.OrganizationID).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}
	var out domain.Contact
	if err := db.WithContext(ctx).First(&out, "id = ?", c.ID).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// FindCompanyByName returns the company with the exact name within the
// organization, or ErrNotFound.
func FindCompanyByName(ctx context.Context, db *gorm.DB, orgID, name string) (*domain.Company, error) {
	var co domain.Company
	err := db.WithContext(ctx).
		Where("organization_id = ? AND name = ?", orgID, name).
		First(&co).Error
	if err != nil {
		return nil, err
	}
	return &co, nil
}

// CreateCompany inserts a new company row.
func CreateCompany(ctx context.Context, db *gorm.DB, orgID, name string) (*domain.Company, error) {
	co := &domain.Company{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(co).Error; err != nil {
		return nil, err
	}
	return co, nil
}
