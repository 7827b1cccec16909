package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
)

func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func strPtr(s string) *string { return &s }

func TestCreateContact_AssignsIDAndPersists(t *testing.T) {
	db := newRepoDB(t, &domain.Contact{})

	c, err := CreateContact(context.Background(), db, &domain.Contact{
		OrganizationID: "org-1",
		Name:           "Ana",
		Phone:          strPtr("5511999990000"),
		Source:         domain.SourceWhatsApp,
	})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := FindContactByPhone(context.Background(), db, "org-1", "5511999990000")
	if err != nil {
		t.Fatalf("FindContactByPhone: %v", err)
	}
	if got.ID != c.ID || got.Name != "Ana" {
		t.Fatalf("unexpected contact: %+v", got)
	}
}

func TestCreateContact_ConflictReturnsExistingRow(t *testing.T) {
	db := newRepoDB(t, &domain.Contact{})
	ctx := context.Background()

	first, err := CreateContact(ctx, db, &domain.Contact{
		OrganizationID: "org-1",
		Name:           "Winner",
		Phone:          strPtr("5511988887777"),
	})
	if err != nil {
		t.Fatalf("first CreateContact: %v", err)
	}

	second, err := CreateContact(ctx, db, &domain.Contact{
		OrganizationID: "org-1",
		Name:           "Loser",
		Phone:          strPtr("5511988887777"),
	})
	if err != nil {
		t.Fatalf("second CreateContact: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("conflict insert returned new row %s; want existing %s", second.ID, first.ID)
	}
	if second.Name != "Winner" {
		t.Fatalf("existing row overwritten: %+v", second)
	}
}

func TestCreateContact_SamePhoneDifferentOrg(t *testing.T) {
	db := newRepoDB(t, &domain.Contact{})
	ctx := context.Background()

	a, err := CreateContact(ctx, db, &domain.Contact{OrganizationID: "org-a", Name: "A", Phone: strPtr("551100")})
	if err != nil {
		t.Fatalf("org-a: %v", err)
	}
	b, err := CreateContact(ctx, db, &domain.Contact{OrganizationID: "org-b", Name: "B", Phone: strPtr("551100")})
	if err != nil {
		t.Fatalf("org-b: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("phone uniqueness must be scoped to the organization")
	}
}

func TestFindContactByEmailOrPhone_EmailWins(t *testing.T) {
	db := newRepoDB(t, &domain.Contact{})
	ctx := context.Background()

	byEmail, err := CreateContact(ctx, db, &domain.Contact{
		OrganizationID: "org-1", Name: "Email Owner", Email: strPtr("ana@example.com"),
	})
	if err != nil {
		t.Fatalf("create email contact: %v", err)
	}
	if _, err := CreateContact(ctx, db, &domain.Contact{
		OrganizationID: "org-1", Name: "Phone Owner", Phone: strPtr("5511999990000"),
	}); err != nil {
		t.Fatalf("create phone contact: %v", err)
	}

	got, err := FindContactByEmailOrPhone(ctx, db, "org-1", "ana@example.com", "5511999990000")
	if err != nil {
		t.Fatalf("FindContactByEmailOrPhone: %v", err)
	}
	if got.ID != byEmail.ID {
		t.Fatalf("email match must win; got %+v", got)
	}

	// Phone fallback when the email matches nothing.
	got, err = FindContactByEmailOrPhone(ctx, db, "org-1", "nobody@example.com", "5511999990000")
	if err != nil {
		t.Fatalf("phone fallback: %v", err)
	}
	if got.Name != "Phone Owner" {
		t.Fatalf("expected phone match, got %+v", got)
	}

	if _, err := FindContactByEmailOrPhone(ctx, db, "org-1", "", ""); err != ErrNotFound {
		t.Fatalf("empty identifiers: err = %v; want ErrNotFound", err)
	}
	if _, err := FindContactByEmailOrPhone(ctx, db, "org-2", "ana@example.com", ""); err != ErrNotFound {
		t.Fatalf("cross-org lookup: err = %v; want ErrNotFound", err)
	}
}

func TestFindContactsByPhones(t *testing.T) {
	db := newRepoDB(t, &domain.Contact{})
	ctx := context.Background()

	for _, p := range []string{"123@g.us", "123"} {
		if _, err := CreateContact(ctx, db, &domain.Contact{OrganizationID: "org-1", Name: p, Phone: strPtr(p)}); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}

	out, err := FindContactsByPhones(ctx, db, "org-1", []string{"123@g.us", "123", "missing"})
	if err != nil {
		t.Fatalf("FindContactsByPhones: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d; want 2", len(out))
	}

	out, err = FindContactsByPhones(ctx, db, "org-1", nil)
	if err != nil || out != nil {
		t.Fatalf("empty candidates: (%v, %v); want (nil, nil)", out, err)
	}
}

func TestBackfillContact_OnlyFillsEmptyFields(t *testing.T) {
	db := newRepoDB(t, &domain.Contact{})
	ctx := context.Background()

	c, err := CreateContact(ctx, db, &domain.Contact{
		OrganizationID: "org-1",
		Name:           "Ana",
		Phone:          strPtr("5511999990000"),
	})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}

	companyID := "co-1"
	out, err := BackfillContact(ctx, db, c, "Other Name", "ana@example.com", "551188", &companyID)
	if err != nil {
		t.Fatalf("BackfillContact: %v", err)
	}
	if out.Name != "Ana" {
		t.Fatalf("populated name overwritten: %q", out.Name)
	}
	if out.Phone == nil || *out.Phone != "5511999990000" {
		t.Fatalf("populated phone overwritten: %v", out.Phone)
	}
	if out.Email == nil || *out.Email != "ana@example.com" {
		t.Fatalf("empty email not backfilled: %v", out.Email)
	}
	if out.ClientCompanyID == nil || *out.ClientCompanyID != "co-1" {
		t.Fatalf("empty company not backfilled: %v", out.ClientCompanyID)
	}
}

func TestBackfillContact_NoopWithoutChanges(t *testing.T) {
	db := newRepoDB(t, &domain.Contact{})
	ctx := context.Background()

	c, err := CreateContact(ctx, db, &domain.Contact{
		OrganizationID: "org-1",
		Name:           "Full",
		Email:          strPtr("full@example.com"),
		Phone:          strPtr("551100"),
	})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	out, err := BackfillContact(ctx, db, c, "X", "x@example.com", "999", nil)
	if err != nil {
		t.Fatalf("BackfillContact: %v", err)
	}
	if out != c {
		t.Fatal("no-op backfill should return the input unchanged")
	}
}

func TestCompanyFindAndCreate(t *testing.T) {
	db := newRepoDB(t, &domain.Company{})
	ctx := context.Background()

	if _, err := FindCompanyByName(ctx, db, "org-1", "Acme"); err != ErrNotFound {
		t.Fatalf("missing company: err = %v; want ErrNotFound", err)
	}

	co, err := CreateCompany(ctx, db, "org-1", "Acme")
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	got, err := FindCompanyByName(ctx, db, "org-1", "Acme")
	if err != nil {
		t.Fatalf("FindCompanyByName: %v", err)
	}
	if got.ID != co.ID {
		t.Fatalf("unexpected company: %+v", got)
	}

	// Exact-name match only, scoped to the organization.
	if _, err := FindCompanyByName(ctx, db, "org-1", "acme"); err != ErrNotFound {
		t.Fatalf("case-different lookup: err = %v; want ErrNotFound", err)
	}
	if _, err := FindCompanyByName(ctx, db, "org-2", "Acme"); err != ErrNotFound {
		t.Fatalf("cross-org lookup: err = %v; want ErrNotFound", err)
	}
}
