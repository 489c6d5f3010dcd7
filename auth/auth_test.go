// mopchan/auth/auth_test.go
package auth

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mopchan/database"
	"mopchan/models"
)

func setupTestAuth(t *testing.T) (*Service, *sql.DB) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	dir, err := os.MkdirTemp("", "mopchan_test_auth")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	dbPath := filepath.Join(dir, "test.db") + "?_journal_mode=WAL&_foreign_keys=on"

	ds, err := database.InitDB(dbPath, logger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() {
		ds.DB.Close()
		os.RemoveAll(dir)
	})

	return NewService(ds.DB, logger, []byte("test-secret"), time.Hour), ds.DB
}

func TestLoginRoundTrip(t *testing.T) {
	svc, _ := setupTestAuth(t)

	if _, err := svc.CreateAdmin("alice", "hunter2", models.RoleAdmin); err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}

	token, ident, err := svc.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("Expected login to succeed: %v", err)
	}
	if token == "" {
		t.Fatal("Expected a non-empty token")
	}
	if ident.Username != "alice" || ident.Role != models.RoleAdmin {
		t.Errorf("Unexpected identity from login: %+v", ident)
	}

	verified, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Expected token to verify: %v", err)
	}
	if verified.ID != ident.ID || verified.Username != "alice" || verified.Role != models.RoleAdmin {
		t.Errorf("Verified identity does not match login identity: %+v vs %+v", verified, ident)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := setupTestAuth(t)

	if _, err := svc.CreateAdmin("alice", "hunter2", models.RoleModerator); err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}

	// Wrong password and unknown user must fail identically.
	if _, _, err := svc.Login("alice", "wrong"); !errors.Is(err, models.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated for wrong password, got %v", err)
	}
	if _, _, err := svc.Login("nobody", "hunter2"); !errors.Is(err, models.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated for unknown user, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, _ := setupTestAuth(t)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.Verify(token); !errors.Is(err, models.ErrUnauthenticated) {
			t.Errorf("Expected ErrUnauthenticated for token %q, got %v", token, err)
		}
	}
}

func TestVerifyRejectsForgedToken(t *testing.T) {
	svc, db := setupTestAuth(t)
	if _, err := svc.CreateAdmin("alice", "hunter2", models.RoleAdmin); err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	other := NewService(db, logger, []byte("different-secret"), time.Hour)
	token, _, err := other.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("Login with other service failed: %v", err)
	}

	if _, err := svc.Verify(token); !errors.Is(err, models.ErrUnauthenticated) {
		t.Errorf("Expected token signed with a different secret to be rejected, got %v", err)
	}
}

// TestVerifyRejectsDeletedAdmin checks that a token outlives neither its
// account nor its role.
func TestVerifyRejectsDeletedAdmin(t *testing.T) {
	svc, db := setupTestAuth(t)

	admin, err := svc.CreateAdmin("alice", "hunter2", models.RoleAdmin)
	if err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}
	token, _, err := svc.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Demotion takes effect on the next check, not at token expiry.
	if _, err := db.Exec("UPDATE admins SET role = 'moderator' WHERE id = ?", admin.ID); err != nil {
		t.Fatalf("Failed to demote admin: %v", err)
	}
	ident, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Expected demoted admin's token to still verify: %v", err)
	}
	if ident.Role != models.RoleModerator {
		t.Errorf("Expected the stored role, got %v", ident.Role)
	}

	if _, err := db.Exec("DELETE FROM admins WHERE id = ?", admin.ID); err != nil {
		t.Fatalf("Failed to delete admin: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, models.ErrUnauthenticated) {
		t.Errorf("Expected deleted admin's token to be rejected, got %v", err)
	}
}

func TestAuthorizeRoleGate(t *testing.T) {
	svc, _ := setupTestAuth(t)

	if _, err := svc.CreateAdmin("mod", "modpass", models.RoleModerator); err != nil {
		t.Fatalf("Failed to create moderator: %v", err)
	}
	token, _, err := svc.Login("mod", "modpass")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := svc.Authorize(token, models.RoleModerator); err != nil {
		t.Errorf("Expected moderator to pass the moderator gate: %v", err)
	}
	if _, err := svc.Authorize(token, models.RoleAdmin); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("Expected moderator to be forbidden at the admin gate, got %v", err)
	}
	if _, err := svc.Authorize("", models.RoleModerator); !errors.Is(err, models.ErrUnauthenticated) {
		t.Errorf("Expected missing token to be unauthenticated, not forbidden, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	svc, db := setupTestAuth(t)
	if _, err := svc.CreateAdmin("alice", "hunter2", models.RoleAdmin); err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	shortLived := NewService(db, logger, []byte("test-secret"), -time.Minute)
	token, _, err := shortLived.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := svc.Verify(token); !errors.Is(err, models.ErrUnauthenticated) {
		t.Errorf("Expected expired token to be rejected, got %v", err)
	}
}
