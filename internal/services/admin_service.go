// Package services – AdminService
//
// Tenant-scoped user administration consumed by the admin HTTP surface.
// Straightforward CRUD: the interesting enforcement (admin role, origin
// allowlist) lives in middleware; this service only validates payloads and
// keeps every query inside the caller's organization.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/repo"
)

// AdminService manages the organization's user roster.
type AdminService struct {
	DB *gorm.DB
}

// ResolveToken maps a bearer token to an active user, satisfying the HTTP
// layer's auth middleware.
func (s *AdminService) ResolveToken(ctx context.Context, token string) (*domain.User, error) {
	u, err := repo.GetUserByToken(ctx, s.DB, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// ListPage returns a page of the organization's users and the total count.
func (s *AdminService) ListPage(ctx context.Context, orgID string, page, pageSize int) ([]domain.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountUsers(ctx, s.DB, orgID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.User{}, 0, nil
	}
	items, err := repo.ListUsersPage(ctx, s.DB, orgID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Create adds a user to the organization with a freshly minted bearer token.
func (s *AdminService) Create(ctx context.Context, orgID, email, name, role string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if role == "" {
		role = domain.RoleMember
	}
	if role != domain.RoleAdmin && role != domain.RoleMember {
		return nil, ErrInvalidRole
	}
	u := &domain.User{
		OrganizationID: orgID,
		Email:          email,
		Name:           name,
		Role:           role,
		Token:          uuid.NewString(),
		Active:         true,
	}
	return repo.CreateUser(ctx, s.DB, u)
}

// Update applies name/role/active changes to a user in the organization.
// Nil pointers leave the corresponding field untouched.
func (s *AdminService) Update(ctx context.Context, orgID, id string, name, role *string, active *bool) error {
	updates := map[string]any{}
	if name != nil && strings.TrimSpace(*name) != "" {
		updates["name"] = strings.TrimSpace(*name)
	}
	if role != nil {
		if *role != domain.RoleAdmin && *role != domain.RoleMember {
			return ErrInvalidRole
		}
		updates["role"] = *role
	}
	if active != nil {
		updates["active"] = *active
	}
	if len(updates) == 0 {
		return nil
	}
	err := repo.UpdateUser(ctx, s.DB, orgID, id, updates)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}

// Delete soft-removes a user from the organization.
func (s *AdminService) Delete(ctx context.Context, orgID, id string) error {
	err := repo.DeleteUser(ctx, s.DB, orgID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}
