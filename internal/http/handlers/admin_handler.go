// Admin HTTP handlers.
//
// This file exposes the organization's user-roster management:
//   - GET    /users        (list, paginated)
//   - POST   /users        (invite: creates the user with a fresh API token)
//   - PATCH  /users/{id}   (rename, change role, activate/deactivate)
//   - DELETE /users/{id}   (soft delete)
//
// Routing protects this surface with admin role plus the origin allowlist;
// the handlers themselves only validate payloads and map service errors.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/http/middleware"
	"github.com/fluxleads/flux-leads-backend/internal/services"
)

// AdminService defines the user administration operations.
type AdminService interface {
	ListPage(ctx context.Context, orgID string, page, pageSize int) ([]domain.User, int64, error)
	Create(ctx context.Context, orgID, email, name, role string) (*domain.User, error)
	Update(ctx context.Context, orgID, id string, name, role *string, active *bool) error
	Delete(ctx context.Context, orgID, id string) error
}

// AdminHandlers groups the admin endpoints.
type AdminHandlers struct {
	admin AdminService
}

// NewAdmin constructs the admin handlers bound to the given service.
func NewAdmin(admin AdminService) *AdminHandlers {
	return &AdminHandlers{admin: admin}
}

// CreateUserRequest is the JSON payload for adding a user.
type CreateUserRequest struct {
	Email string `json:"email" binding:"required,email" example:"ana@example.com"`
	Name  string `json:"name" binding:"required,min=1,max=255" example:"Ana Souza"`
	Role  string `json:"role" example:"member"`
}

// UpdateUserRequest is the JSON payload for modifying a user. Omitted fields
// are left untouched.
type UpdateUserRequest struct {
	Name   *string `json:"name"`
	Role   *string `json:"role"`
	Active *bool   `json:"active"`
}

// ListUsersResponse wraps a page of users and pagination information.
type ListUsersResponse struct {
	Users      []domain.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List organization users (paginated)
// @Tags        Admin
// @Produce     json
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(50)
//
// @Success     200  {object}  handlers.ListUsersResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users [get]
func (h *AdminHandlers) ListUsers(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.admin.ListPage(c.Request.Context(), middleware.OrgID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{
		Users:      items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// CreateUser godoc
// @ID          createUser
// @Summary     Add a user to the organization
// @Description Creates the user and mints their API bearer token; the token is only returned in this response.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateUserRequest  true  "User payload"
//
// @Success     201  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload or role"
// @Failure     409  {object}  handlers.ErrorResponse  "Email already in use"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users [post]
func (h *AdminHandlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: email and name required")
		return
	}

	u, err := h.admin.Create(c.Request.Context(), middleware.OrgID(c),
		req.Email, req.Name, strings.TrimSpace(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRole):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "role must be admin or member")
		case isUniqueConflict(err):
			fail(c, http.StatusConflict, ErrCodeConflict, "email or token already in use")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, u)
}

// UpdateUser godoc
// @ID          updateUser
// @Summary     Modify a user
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "User ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateUserRequest  true  "Fields to change"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id} [patch]
func (h *AdminHandlers) UpdateUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be a UUID")
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.admin.Update(c.Request.Context(), middleware.OrgID(c), id, req.Name, req.Role, req.Active)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRole):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "role must be admin or member")
		case errors.Is(err, services.ErrUserNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		}
		return
	}
	noContent(c)
}

// DeleteUser godoc
// @ID          deleteUser
// @Summary     Remove a user
// @Tags        Admin
// @Produce     json
//
// @Param       id  path  string  true  "User ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id} [delete]
func (h *AdminHandlers) DeleteUser(c *gin.Context) {
	err := h.admin.Delete(c.Request.Context(), middleware.OrgID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// isUniqueConflict matches unique-constraint violations across the sqlite and
// postgres drivers.
func isUniqueConflict(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}
