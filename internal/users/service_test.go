package users

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, allowed []string) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Identity{}); err != nil {
		t.Fatalf("failed to migrate identity schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
		AllowedEmails: allowed,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveMemberStripsProviderPrefix(t *testing.T) {
	service, db := newTestService(t, nil)

	claims := auth.SessionClaims{
		UserID:          "google:12345",
		UserEmail:       "Keeper@Example.com",
		UserDisplayName: "Cat Keeper",
	}
	member, err := service.ResolveMember(claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if member.UserID != "12345" {
		t.Fatalf("expected user id without provider prefix, got %q", member.UserID)
	}
	if member.Email != "keeper@example.com" {
		t.Fatalf("expected normalized email, got %q", member.Email)
	}

	// second call should hit cache and not create a duplicate record.
	member, err = service.ResolveMember(claims)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if member.UserID != "12345" {
		t.Fatalf("expected user id to remain stable, got %q", member.UserID)
	}

	var count int64
	if err := db.Model(&Identity{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count identities: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one identity row, got %d", count)
	}
}

func TestResolveMemberEnforcesAllowlist(t *testing.T) {
	service, _ := newTestService(t, []string{" keeper@example.com ", ""})

	if _, err := service.ResolveMember(auth.SessionClaims{UserID: "u-1", UserEmail: "KEEPER@example.com"}); err != nil {
		t.Fatalf("expected allowlisted member to resolve: %v", err)
	}

	_, err := service.ResolveMember(auth.SessionClaims{UserID: "u-2", UserEmail: "stranger@example.com"})
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestResolveMemberRefreshesStoredProfile(t *testing.T) {
	service, db := newTestService(t, nil)

	if _, err := service.ResolveMember(auth.SessionClaims{UserID: "u-1", UserEmail: "old@example.com"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	member, err := service.ResolveMember(auth.SessionClaims{UserID: "u-1", UserEmail: "new@example.com", UserDisplayName: "New Name"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if member.Email != "new@example.com" || member.DisplayName != "New Name" {
		t.Fatalf("expected refreshed member, got %+v", member)
	}

	var stored Identity
	if err := db.Where(providerSubjectQuery, "default", "u-1").Take(&stored).Error; err != nil {
		t.Fatalf("failed to load identity: %v", err)
	}
	if stored.Email != "new@example.com" {
		t.Fatalf("expected stored email to update, got %q", stored.Email)
	}
}

func TestResolveMemberRejectsEmptyClaims(t *testing.T) {
	service, _ := newTestService(t, nil)
	if _, err := service.ResolveMember(auth.SessionClaims{}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}
