package services

import (
	"context"
	"testing"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

func TestAdminCreate_NormalizesAndMintsToken(t *testing.T) {
	db := newServiceDB(t, &domain.User{})
	svc := &AdminService{DB: db}

	u, err := svc.Create(context.Background(), "org-1", "  Ana@Example.COM ", "  Ana  ", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Email != "ana@example.com" || u.Name != "Ana" {
		t.Fatalf("normalization failed: %+v", u)
	}
	if u.Role != domain.RoleMember {
		t.Fatalf("Role = %q; want member default", u.Role)
	}
	if u.Token == "" {
		t.Fatal("no token minted")
	}
	if !u.Active {
		t.Fatal("new user not active")
	}
}

func TestAdminCreate_RejectsUnknownRole(t *testing.T) {
	db := newServiceDB(t, &domain.User{})
	svc := &AdminService{DB: db}

	if _, err := svc.Create(context.Background(), "org-1", "a@x.com", "A", "owner"); err != ErrInvalidRole {
		t.Fatalf("err = %v; want ErrInvalidRole", err)
	}
}

func TestAdminResolveToken(t *testing.T) {
	db := newServiceDB(t, &domain.User{})
	svc := &AdminService{DB: db}
	ctx := context.Background()

	created, err := svc.Create(ctx, "org-1", "a@x.com", "A", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	u, err := svc.ResolveToken(ctx, created.Token)
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if u.ID != created.ID {
		t.Fatalf("resolved wrong user: %+v", u)
	}

	if _, err := svc.ResolveToken(ctx, "bogus"); err != ErrUserNotFound {
		t.Fatalf("unknown token: err = %v; want ErrUserNotFound", err)
	}

	// Deactivated users stop authenticating.
	inactive := false
	if err := svc.Update(ctx, "org-1", created.ID, nil, nil, &inactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.ResolveToken(ctx, created.Token); err != ErrUserNotFound {
		t.Fatalf("inactive token: err = %v; want ErrUserNotFound", err)
	}
}

func TestAdminUpdate(t *testing.T) {
	db := newServiceDB(t, &domain.User{})
	svc := &AdminService{DB: db}
	ctx := context.Background()

	u, err := svc.Create(ctx, "org-1", "a@x.com", "A", domain.RoleMember)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	role := domain.RoleAdmin
	name := "Ana S."
	if err := svc.Update(ctx, "org-1", u.ID, &name, &role, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	var got domain.User
	if err := db.First(&got, "id = ?", u.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Name != "Ana S." || got.Role != domain.RoleAdmin || !got.Active {
		t.Fatalf("updates wrong: %+v", got)
	}

	bad := "owner"
	if err := svc.Update(ctx, "org-1", u.ID, nil, &bad, nil); err != ErrInvalidRole {
		t.Fatalf("bad role: err = %v; want ErrInvalidRole", err)
	}
	if err := svc.Update(ctx, "org-1", u.ID, nil, nil, nil); err != nil {
		t.Fatalf("empty update should be a no-op: %v", err)
	}
	if err := svc.Update(ctx, "org-1", "missing", &name, nil, nil); err != ErrUserNotFound {
		t.Fatalf("missing user: err = %v; want ErrUserNotFound", err)
	}
	if err := svc.Update(ctx, "org-2", u.ID, &name, nil, nil); err != ErrUserNotFound {
		t.Fatalf("cross-org update: err = %v; want ErrUserNotFound", err)
	}
}

func TestAdminDelete(t *testing.T) {
	db := newServiceDB(t, &domain.User{})
	svc := &AdminService{DB: db}
	ctx := context.Background()

	u, err := svc.Create(ctx, "org-1", "a@x.com", "A", domain.RoleMember)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(ctx, "org-2", u.ID); err != ErrUserNotFound {
		t.Fatalf("cross-org delete: err = %v; want ErrUserNotFound", err)
	}
	if err := svc.Delete(ctx, "org-1", u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.ResolveToken(ctx, u.Token); err != ErrUserNotFound {
		t.Fatalf("deleted user still authenticates: %v", err)
	}
}

func TestAdminListPage(t *testing.T) {
	db := newServiceDB(t, &domain.User{})
	svc := &AdminService{DB: db}
	ctx := context.Background()

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		if _, err := svc.Create(ctx, "org-1", email, email, domain.RoleMember); err != nil {
			t.Fatalf("seed %s: %v", email, err)
		}
	}

	items, total, err := svc.ListPage(ctx, "org-1", 1, 2)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("page = (%d items, total %d)", len(items), total)
	}

	items, total, err = svc.ListPage(ctx, "org-empty", 1, 10)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("empty org: (%d items, total %d, %v)", len(items), total, err)
	}
}
