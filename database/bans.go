// mopchan/database/bans.go
package database

import (
	"database/sql"
	"fmt"
	"net"

	"mopchan/models"
	"mopchan/utils"
)

// BanIP upserts a ban record: re-banning an IP overwrites reason and expiry,
// last write wins. The entry may be a single IP or a CIDR subnet.
func (ds *DatabaseService) BanIP(ip, reason, moderator string, expiresAt sql.NullTime) (*models.Ban, error) {
	if ip == "" {
		return nil, models.ValidationError{Reason: "ban target must not be empty"}
	}
	if reason == "" {
		return nil, models.ValidationError{Reason: "a ban reason is required"}
	}

	tx, err := ds.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ds.rollback(tx, "BanIP")

	now := utils.GetSQLTime()
	_, err = tx.Exec(`INSERT INTO bans (ip, reason, banned_by, created_at, expires_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ip) DO UPDATE SET reason=excluded.reason, banned_by=excluded.banned_by, expires_at=excluded.expires_at`,
		ip, reason, moderator, now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ban: %w", err)
	}
	if err := LogModAction(tx, moderator, "apply_ban", 0, fmt.Sprintf("IP: %s, Reason: %s", ip, reason)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ban: %w", err)
	}

	ds.logger.Info("Ban applied", "ip", ip, "reason", reason, "moderator", moderator)

	return &models.Ban{
		IP:        ip,
		Reason:    reason,
		BannedBy:  moderator,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// UnbanIP removes a ban record. Returns true iff a record existed.
func (ds *DatabaseService) UnbanIP(ip, moderator string) (bool, error) {
	tx, err := ds.DB.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ds.rollback(tx, "UnbanIP")

	res, err := tx.Exec("DELETE FROM bans WHERE ip = ?", ip)
	if err != nil {
		return false, fmt.Errorf("failed to remove ban: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	if err := LogModAction(tx, moderator, "remove_ban", 0, "IP: "+ip); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit unban: %w", err)
	}

	ds.logger.Info("Ban removed", "ip", ip, "moderator", moderator)
	return true, nil
}

// ActiveBan checks whether an IP is currently banned, by exact match first
// and then against CIDR subnet entries. Expired bans never match.
func (ds *DatabaseService) ActiveBan(ip string) (models.Ban, bool) {
	var ban models.Ban
	now := utils.GetSQLTime()

	err := ds.DB.QueryRow(`
		SELECT ip, reason, banned_by, created_at, expires_at FROM bans
		WHERE ip = ? AND (expires_at IS NULL OR expires_at > ?)`, ip, now).
		Scan(&ban.IP, &ban.Reason, &ban.BannedBy, &ban.CreatedAt, &ban.ExpiresAt)
	if err == nil {
		return ban, true
	}
	if err != sql.ErrNoRows {
		ds.logger.Error("Failed to query for ban", "error", err)
		return models.Ban{}, false
	}

	userIP := net.ParseIP(ip)
	if userIP == nil {
		return models.Ban{}, false
	}

	rows, err := ds.DB.Query(`
		SELECT ip, reason, banned_by, created_at, expires_at FROM bans
		WHERE ip LIKE '%/%' AND (expires_at IS NULL OR expires_at > ?)`, now)
	if err != nil {
		ds.logger.Error("Failed to query CIDR bans", "error", err)
		return models.Ban{}, false
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in ActiveBan", "error", err)
		}
	}()

	for rows.Next() {
		if err := rows.Scan(&ban.IP, &ban.Reason, &ban.BannedBy, &ban.CreatedAt, &ban.ExpiresAt); err != nil {
			continue
		}
		_, subnet, err := net.ParseCIDR(ban.IP)
		if err == nil && subnet.Contains(userIP) {
			return ban, true
		}
	}
	return models.Ban{}, false
}

// ListBans returns all ban records, newest first, including expired ones.
func (ds *DatabaseService) ListBans() ([]models.Ban, error) {
	rows, err := ds.DB.Query("SELECT ip, reason, banned_by, created_at, expires_at FROM bans ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query bans: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in ListBans", "error", err)
		}
	}()

	var bans []models.Ban
	for rows.Next() {
		var b models.Ban
		if err := rows.Scan(&b.IP, &b.Reason, &b.BannedBy, &b.CreatedAt, &b.ExpiresAt); err != nil {
			ds.logger.Error("Failed to scan ban row", "error", err)
			continue
		}
		bans = append(bans, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bans, nil
}
