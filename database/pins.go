// mopchan/database/pins.go
package database

import (
	"database/sql"
	"fmt"

	"mopchan/models"
	"mopchan/utils"
)

// PinThread pins a thread to the top of the catalog. Pinning an
// already-pinned thread is rejected rather than duplicated.
func (ds *DatabaseService) PinThread(threadID int64, moderator string) (*models.Pin, error) {
	tx, err := ds.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ds.rollback(tx, "PinThread")

	var deleted bool
	err = tx.QueryRow("SELECT deleted FROM threads WHERE id = ?", threadID).Scan(&deleted)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundError{Resource: "thread", ID: threadID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up thread %d: %w", threadID, err)
	}
	if deleted {
		return nil, models.NotFoundError{Resource: "thread", ID: threadID}
	}

	var existing int
	if err := tx.QueryRow("SELECT COUNT(*) FROM thread_pins WHERE thread_id = ?", threadID).Scan(&existing); err != nil {
		return nil, fmt.Errorf("failed to check existing pin: %w", err)
	}
	if existing > 0 {
		return nil, models.AlreadyPinnedError{ThreadID: threadID}
	}

	now := utils.GetSQLTime()
	if _, err := tx.Exec("INSERT INTO thread_pins (thread_id, pinned_by, pinned_at) VALUES (?, ?, ?)",
		threadID, moderator, now); err != nil {
		return nil, fmt.Errorf("failed to insert pin: %w", err)
	}
	if err := LogModAction(tx, moderator, "pin_thread", threadID, ""); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit pin: %w", err)
	}

	ds.logger.Info("Thread pinned", "thread_id", threadID, "moderator", moderator)
	return &models.Pin{ThreadID: threadID, PinnedBy: moderator, PinnedAt: now}, nil
}

// UnpinThread removes a thread's pin. Unpinning an unpinned thread is a
// no-op; the return value reports whether a pin was removed.
func (ds *DatabaseService) UnpinThread(threadID int64, moderator string) (bool, error) {
	tx, err := ds.DB.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ds.rollback(tx, "UnpinThread")

	res, err := tx.Exec("DELETE FROM thread_pins WHERE thread_id = ?", threadID)
	if err != nil {
		return false, fmt.Errorf("failed to remove pin: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	if err := LogModAction(tx, moderator, "unpin_thread", threadID, ""); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit unpin: %w", err)
	}

	ds.logger.Info("Thread unpinned", "thread_id", threadID, "moderator", moderator)
	return true, nil
}

// IsPinned reports whether a thread currently has an active pin.
func (ds *DatabaseService) IsPinned(threadID int64) (bool, error) {
	var count int
	if err := ds.DB.QueryRow("SELECT COUNT(*) FROM thread_pins WHERE thread_id = ?", threadID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
