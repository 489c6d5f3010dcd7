// mopchan/auth/auth.go

// Package auth holds admin accounts, credential verification and the
// moderation gate. The gate is a pure authorization check: it never mutates
// board state itself.
package auth

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"mopchan/database"
	"mopchan/models"
	"mopchan/utils"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Identity is a verified admin identity.
type Identity struct {
	ID       int64
	Username string
	Role     models.Role
}

// Verifier turns an opaque credential into a verified identity, or nil.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// Service verifies admin credentials and issues session tokens.
type Service struct {
	db       *sql.DB
	logger   *slog.Logger
	secret   []byte
	tokenTTL time.Duration
}

func NewService(db *sql.DB, logger *slog.Logger, secret []byte, tokenTTL time.Duration) *Service {
	return &Service{db: db, logger: logger, secret: secret, tokenTTL: tokenTTL}
}

// CreateAdmin stores a new admin account with a bcrypt password hash.
func (s *Service) CreateAdmin(username, password string, role models.Role) (*models.Admin, error) {
	if username == "" || password == "" {
		return nil, models.ValidationError{Reason: "username and password are required"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	res, err := s.db.Exec("INSERT INTO admins (username, password_hash, role) VALUES (?, ?, ?)",
		username, string(hash), role.String())
	if err != nil {
		return nil, fmt.Errorf("failed to insert admin: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	s.logger.Info("Admin account created", "username", username, "role", role.String())
	return &models.Admin{ID: id, Username: username, Role: role}, nil
}

// AdminCount returns the number of admin accounts. Used to decide whether to
// seed an initial account on startup.
func (s *Service) AdminCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM admins").Scan(&count)
	return count, err
}

// ListAdmins returns every admin account, without password hashes.
func (s *Service) ListAdmins() ([]models.Admin, error) {
	rows, err := s.db.Query("SELECT id, username, role FROM admins ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []models.Admin
	for rows.Next() {
		var admin models.Admin
		var roleStr string
		if err := rows.Scan(&admin.ID, &admin.Username, &roleStr); err != nil {
			return nil, fmt.Errorf("failed to scan admin row: %w", err)
		}
		role, err := models.ParseRole(roleStr)
		if err != nil {
			return nil, fmt.Errorf("admin %q has invalid role: %w", admin.Username, err)
		}
		admin.Role = role
		admins = append(admins, admin)
	}
	return admins, rows.Err()
}

// UpdateAdminRole changes an account's privilege level and records the change
// in the audit log. It takes effect on the target's next request because
// Verify re-checks the stored role on every call.
func (s *Service) UpdateAdminRole(targetID int64, role models.Role, moderator string) (*models.Admin, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var username string
	err = tx.QueryRow("SELECT username FROM admins WHERE id = ?", targetID).Scan(&username)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundError{Resource: "admin", ID: targetID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up admin %d: %w", targetID, err)
	}

	if _, err := tx.Exec("UPDATE admins SET role = ? WHERE id = ?", role.String(), targetID); err != nil {
		return nil, fmt.Errorf("failed to update role of admin %d: %w", targetID, err)
	}
	if err := database.LogModAction(tx, moderator, "update_role", targetID, role.String()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role change: %w", err)
	}

	s.logger.Info("Admin role changed", "username", username, "role", role.String(), "by", moderator)
	return &models.Admin{ID: targetID, Username: username, Role: role}, nil
}

// Login checks a username/password pair and issues a signed session token.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(username, password string) (string, *Identity, error) {
	var admin models.Admin
	var roleStr string
	err := s.db.QueryRow("SELECT id, username, password_hash, role FROM admins WHERE username = ?", username).
		Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &roleStr)
	if err == sql.ErrNoRows {
		return "", nil, models.ErrUnauthenticated
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", nil, models.ErrUnauthenticated
	}

	role, err := models.ParseRole(roleStr)
	if err != nil {
		return "", nil, fmt.Errorf("admin %q has invalid role: %w", username, err)
	}

	now := utils.GetTime()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(admin.ID, 10),
		"username": admin.Username,
		"role":     role.String(),
		"iat":      now.Unix(),
		"exp":      now.Add(s.tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("Admin logged in", "username", admin.Username)
	return token, &Identity{ID: admin.ID, Username: admin.Username, Role: role}, nil
}

// Verify parses and validates a session token. Any failure, including an
// account that no longer exists, reports ErrUnauthenticated.
func (s *Service) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, models.ErrUnauthenticated
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, models.ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.ErrUnauthenticated
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, models.ErrUnauthenticated
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return nil, models.ErrUnauthenticated
	}

	// The account is re-checked against the database so a deleted or demoted
	// admin cannot keep acting on a stale token.
	var username, roleStr string
	err = s.db.QueryRow("SELECT username, role FROM admins WHERE id = ?", id).Scan(&username, &roleStr)
	if err == sql.ErrNoRows {
		return nil, models.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up admin %d: %w", id, err)
	}
	role, err := models.ParseRole(roleStr)
	if err != nil {
		return nil, models.ErrUnauthenticated
	}

	return &Identity{ID: id, Username: username, Role: role}, nil
}

// Authorize is the moderation gate. It distinguishes a missing or invalid
// credential (ErrUnauthenticated) from a valid credential whose role is
// insufficient (ErrForbidden), so callers can answer 401 vs 403.
func (s *Service) Authorize(tokenString string, min models.Role) (*Identity, error) {
	ident, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if !ident.Role.AtLeast(min) {
		return nil, models.ErrForbidden
	}
	return ident, nil
}
