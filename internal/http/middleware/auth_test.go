package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

type stubResolver struct {
	users map[string]*domain.User
}

func (s *stubResolver) ResolveToken(_ context.Context, token string) (*domain.User, error) {
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return nil, errors.New("unknown token")
}

func newAuthRouter(resolver TokenResolver, adminOnly bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	grp := r.Group("/", UserAuth(resolver))
	if adminOnly {
		grp = grp.Group("/", RequireAdmin())
	}
	grp.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": UserID(c),
			"org_id":  OrgID(c),
			"role":    Role(c),
		})
	})
	return r
}

func TestUserAuth(t *testing.T) {
	resolver := &stubResolver{users: map[string]*domain.User{
		"tok-1": {ID: "u1", OrganizationID: "org1", Role: domain.RoleMember},
	}}
	r := newAuthRouter(resolver, false)

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if w.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("expected WWW-Authenticate header")
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer nope")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("valid token resolves identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "bearer tok-1") // scheme is case-insensitive
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		body := w.Body.String()
		for _, want := range []string{`"user_id":"u1"`, `"org_id":"org1"`, `"role":"member"`} {
			if !strings.Contains(body, want) {
				t.Fatalf("body missing %s: %s", want, body)
			}
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	resolver := &stubResolver{users: map[string]*domain.User{
		"tok-admin":  {ID: "ua", OrganizationID: "org1", Role: domain.RoleAdmin},
		"tok-member": {ID: "um", OrganizationID: "org1", Role: domain.RoleMember},
	}}
	r := newAuthRouter(resolver, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok-member")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("member should be rejected, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok-admin")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("admin should pass, got %d", w.Code)
	}
}

func Test_bearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"BEARER abc ": "abc",
		"Basic abc":   "",
		"abc":         "",
		"":            "",
	}
	for in, want := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if in != "" {
			c.Request.Header.Set("Authorization", in)
		}
		if got := bearerToken(c); got != want {
			t.Fatalf("bearerToken(%q) = %q; want %q", in, got, want)
		}
	}
}
