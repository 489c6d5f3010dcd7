// mopchan/database/database.go
package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"mopchan/utils"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseService is the central struct for all database operations. It owns
// the thread/post stores, the ban registry and the pin registry.
type DatabaseService struct {
	DB     *sql.DB
	logger *slog.Logger

	// Per-thread mutation locks. Insert-plus-recompute for a thread runs
	// under its own lock, so unrelated threads can be written concurrently
	// while two replies to the same thread cannot lose an update.
	locksMu     sync.Mutex
	threadLocks map[int64]*sync.Mutex
}

// InitDB connects to the database and runs migrations.
func InitDB(dataSourceName string, logger *slog.Logger) (*DatabaseService, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	// Run the base schema to ensure all tables exist.
	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to execute base schema: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	logger.Info("Database initialized")

	return &DatabaseService{
		DB:          db,
		logger:      logger,
		threadLocks: make(map[int64]*sync.Mutex),
	}, nil
}

// runMigrations applies all un-applied migrations.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY, applied_at DATETIME NOT NULL)`); err != nil {
		return fmt.Errorf("could not create migrations table: %w", err)
	}

	var latestVersion uint
	err := db.QueryRow("SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latestVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("could not get db version: %w", err)
	}

	logger.Info("Current database schema version", "version", latestVersion)

	for _, m := range allMigrations {
		if m.Version > latestVersion {
			logger.Info("Applying migration", "version", m.Version)
			tx, err := db.Begin()
			if err != nil {
				return err
			}

			if _, err := tx.Exec(m.Query); err != nil {
				if rerr := tx.Rollback(); rerr != nil {
					logger.Error("Failed to rollback migration", "version", m.Version, "error", rerr)
				}
				return fmt.Errorf("failed to apply migration v%d: %w", m.Version, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.Version, utils.GetSQLTime()); err != nil {
				if rerr := tx.Rollback(); rerr != nil {
					logger.Error("Failed to rollback migration record", "version", m.Version, "error", rerr)
				}
				return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
			}

			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
			}
			logger.Info("Successfully applied migration", "version", m.Version)
		}
	}
	return nil
}

// threadLock returns the mutation lock for a thread, creating it on first use.
func (ds *DatabaseService) threadLock(threadID int64) *sync.Mutex {
	ds.locksMu.Lock()
	defer ds.locksMu.Unlock()
	l, ok := ds.threadLocks[threadID]
	if !ok {
		l = &sync.Mutex{}
		ds.threadLocks[threadID] = l
	}
	return l
}

// LogModAction records a moderator's action to the audit log within tx.
func LogModAction(tx *sql.Tx, moderator, action string, targetID int64, details string) error {
	_, err := tx.Exec("INSERT INTO mod_actions (timestamp, moderator, action, target_id, details) VALUES (?, ?, ?, ?, ?)",
		utils.GetSQLTime(), moderator, action, targetID, details)
	if err != nil {
		return fmt.Errorf("failed to record mod action: %w", err)
	}
	return nil
}

// rollback is a shared helper for deferred transaction cleanup.
func (ds *DatabaseService) rollback(tx *sql.Tx, op string) {
	if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
		ds.logger.Error("Failed to rollback transaction", "op", op, "error", rerr)
	}
}
