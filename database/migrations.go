// mopchan/database/migrations.go
package database

// migration represents a single database schema migration.
type migration struct {
	Version uint
	Query   string
}

// allMigrations holds all schema changes in order.
var allMigrations = []migration{
	{
		Version: 1,
		Query: `
-- Temporary bans: a NULL expiry means permanent
ALTER TABLE bans ADD COLUMN expires_at DATETIME;
		`,
	},
	{
		Version: 2,
		Query: `
-- Sage replies do not advance the thread's bump timestamp
ALTER TABLE posts ADD COLUMN sage BOOLEAN DEFAULT 0;
		`,
	},
	{
		Version: 3,
		Query: `
-- Privilege levels for the moderation gate
ALTER TABLE admins ADD COLUMN role TEXT NOT NULL DEFAULT 'moderator';
		`,
	},
}
