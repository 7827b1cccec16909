// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication for the operator API and
// the admin role gate. Webhook ingestion authenticates differently (per-source
// shared secret, validated in the webhook handler against the source row);
// the SetSourceID helper lets that handler publish the resolved source into
// the request context so access logs carry it.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

// Gin context keys for the resolved request identity.
const (
	ctxKeyUserID   = "userID"
	ctxKeyOrgID    = "orgID"
	ctxKeyRole     = "role"
	ctxKeySourceID = "sourceID"
)

// TokenResolver maps a bearer token to an active user. The services layer
// provides the implementation; middleware stays free of storage concerns.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*domain.User, error)
}

// UserAuth authenticates operator API requests via "Authorization: Bearer".
// On success the user, organization, and role are stored in the Gin context;
// missing or unknown tokens abort with 401.
func UserAuth(resolver TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			unauthorized(c, "missing_token", "missing bearer token")
			return
		}
		user, err := resolver.ResolveToken(c.Request.Context(), token)
		if err != nil || user == nil {
			unauthorized(c, "invalid_token", "invalid or expired token")
			return
		}
		c.Set(ctxKeyUserID, user.ID)
		c.Set(ctxKeyOrgID, user.OrganizationID)
		c.Set(ctxKeyRole, user.Role)
		c.Next()
	}
}

// RequireAdmin aborts with 403 unless UserAuth resolved an admin. Must run
// after UserAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Role(c) != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "forbidden",
				"message":    "admin role required",
			})
			return
		}
		c.Next()
	}
}

// SetSourceID records the authenticated inbound source on the request context
// so access logs include it. Called by the webhook handler after secret
// verification.
func SetSourceID(c *gin.Context, sourceID string) {
	c.Set(ctxKeySourceID, sourceID)
}

// UserID returns the authenticated user ID, or "" when unauthenticated.
func UserID(c *gin.Context) string { return ctxString(c, ctxKeyUserID) }

// OrgID returns the authenticated organization ID, or "" when unauthenticated.
func OrgID(c *gin.Context) string { return ctxString(c, ctxKeyOrgID) }

// Role returns the authenticated user's role, or "" when unauthenticated.
func Role(c *gin.Context) string { return ctxString(c, ctxKeyRole) }

func ctxString(c *gin.Context, key string) string {
	if v, ok := c.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// bearerToken extracts the token from the Authorization header, accepting the
// conventional "Bearer <token>" form case-insensitively.
func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if h == "" {
		return ""
	}
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func unauthorized(c *gin.Context, code, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       code,
		"message":    msg,
	})
}
