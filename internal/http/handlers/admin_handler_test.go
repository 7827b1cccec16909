package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/services"
)

type stubAdmin struct {
	users     []domain.User
	total     int64
	created   *domain.User
	createErr error
	updateErr error
	deleteErr error

	gotEmail, gotName, gotRole string
	gotID                      string
	gotNamePtr, gotRolePtr     *string
	gotActivePtr               *bool
}

func (s *stubAdmin) ListPage(_ context.Context, _ string, page, pageSize int) ([]domain.User, int64, error) {
	return s.users, s.total, nil
}

func (s *stubAdmin) Create(_ context.Context, _, email, name, role string) (*domain.User, error) {
	s.gotEmail, s.gotName, s.gotRole = email, name, role
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.created, nil
}

func (s *stubAdmin) Update(_ context.Context, _, id string, name, role *string, active *bool) error {
	s.gotID, s.gotNamePtr, s.gotRolePtr, s.gotActivePtr = id, name, role, active
	return s.updateErr
}

func (s *stubAdmin) Delete(_ context.Context, _, id string) error {
	s.gotID = id
	return s.deleteErr
}

func newAdminRouter(stub *stubAdmin) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("orgID", "org-1")
		c.Set("role", domain.RoleAdmin)
	})
	h := NewAdmin(stub)
	r.GET("/users", h.ListUsers)
	r.POST("/users", h.CreateUser)
	r.PATCH("/users/:id", h.UpdateUser)
	r.DELETE("/users/:id", h.DeleteUser)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListUsers(t *testing.T) {
	stub := &stubAdmin{
		users: []domain.User{{ID: "u1", Email: "a@x.com"}},
		total: 1,
	}
	r := newAdminRouter(stub)

	w := doJSON(r, http.MethodGet, "/users", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListUsersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0].ID != "u1" || resp.Pagination.Total != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateUser(t *testing.T) {
	stub := &stubAdmin{
		created: &domain.User{ID: "u1", Email: "ana@example.com", Name: "Ana", Role: domain.RoleMember, Token: "tok"},
	}
	r := newAdminRouter(stub)

	w := doJSON(r, http.MethodPost, "/users", `{"email":"ana@example.com","name":"Ana","role":"member"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if stub.gotEmail != "ana@example.com" || stub.gotRole != "member" {
		t.Fatalf("service args: %q %q", stub.gotEmail, stub.gotRole)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		createErr  error
		wantStatus int
	}{
		{"missing email", `{"name":"Ana"}`, nil, http.StatusBadRequest},
		{"bad email", `{"email":"not-an-email","name":"Ana"}`, nil, http.StatusBadRequest},
		{"missing name", `{"email":"a@x.com"}`, nil, http.StatusBadRequest},
		{"invalid role", `{"email":"a@x.com","name":"A","role":"owner"}`, services.ErrInvalidRole, http.StatusBadRequest},
		{"duplicate email", `{"email":"a@x.com","name":"A"}`, errors.New("UNIQUE constraint failed: users.email"), http.StatusConflict},
		{"internal", `{"email":"a@x.com","name":"A"}`, errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newAdminRouter(&stubAdmin{createErr: tc.createErr})
			w := doJSON(r, http.MethodPost, "/users", tc.body)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d (%s)", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestUpdateUser(t *testing.T) {
	stub := &stubAdmin{}
	r := newAdminRouter(stub)
	id := uuid.NewString()

	w := doJSON(r, http.MethodPatch, "/users/"+id, `{"name":"Ana S.","active":false}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if stub.gotID != id {
		t.Fatalf("id = %q", stub.gotID)
	}
	if stub.gotNamePtr == nil || *stub.gotNamePtr != "Ana S." {
		t.Fatalf("name ptr = %v", stub.gotNamePtr)
	}
	if stub.gotRolePtr != nil {
		t.Fatalf("omitted role must stay nil: %v", stub.gotRolePtr)
	}
	if stub.gotActivePtr == nil || *stub.gotActivePtr != false {
		t.Fatalf("active ptr = %v", stub.gotActivePtr)
	}
}

func TestUpdateUser_Errors(t *testing.T) {
	id := uuid.NewString()
	cases := []struct {
		name       string
		path       string
		body       string
		updateErr  error
		wantStatus int
	}{
		{"non-uuid id", "/users/not-a-uuid", `{"name":"x"}`, nil, http.StatusBadRequest},
		{"invalid json", "/users/" + id, `{"name":`, nil, http.StatusBadRequest},
		{"invalid role", "/users/" + id, `{"role":"owner"}`, services.ErrInvalidRole, http.StatusBadRequest},
		{"not found", "/users/" + id, `{"name":"x"}`, services.ErrUserNotFound, http.StatusNotFound},
		{"internal", "/users/" + id, `{"name":"x"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newAdminRouter(&stubAdmin{updateErr: tc.updateErr})
			w := doJSON(r, http.MethodPatch, tc.path, tc.body)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d (%s)", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestDeleteUser(t *testing.T) {
	stub := &stubAdmin{}
	r := newAdminRouter(stub)

	w := doJSON(r, http.MethodDelete, "/users/u1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if stub.gotID != "u1" {
		t.Fatalf("id = %q", stub.gotID)
	}

	r = newAdminRouter(&stubAdmin{deleteErr: services.ErrUserNotFound})
	w = doJSON(r, http.MethodDelete, "/users/u1", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing user: status = %d", w.Code)
	}
}

func Test_isUniqueConflict(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("UNIQUE constraint failed: users.email"), true},
		{errors.New(`duplicate key value violates unique constraint "users_email_key"`), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := isUniqueConflict(tc.err); got != tc.want {
			t.Fatalf("isUniqueConflict(%v) = %v; want %v", tc.err, got, tc.want)
		}
	}
}
