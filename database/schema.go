package database

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subject TEXT DEFAULT '',
	content TEXT NOT NULL,
	name TEXT DEFAULT 'Anonymous',
	tripcode TEXT DEFAULT '',
	is_admin BOOLEAN DEFAULT 0,
	image_path TEXT DEFAULT '',
	thumbnail_path TEXT DEFAULT '',
	image_hash TEXT DEFAULT '',
	ip TEXT DEFAULT '',
	created DATETIME NOT NULL,
	bump DATETIME NOT NULL,
	reply_count INTEGER DEFAULT 0,
	image_count INTEGER DEFAULT 0,
	deleted BOOLEAN DEFAULT 0
);
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id INTEGER NOT NULL,
	content TEXT NOT NULL,
	name TEXT DEFAULT 'Anonymous',
	tripcode TEXT DEFAULT '',
	is_admin BOOLEAN DEFAULT 0,
	image_path TEXT DEFAULT '',
	thumbnail_path TEXT DEFAULT '',
	image_hash TEXT DEFAULT '',
	ip TEXT DEFAULT '',
	timestamp DATETIME NOT NULL,
	deleted BOOLEAN DEFAULT 0,
	FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS thread_pins (
	thread_id INTEGER PRIMARY KEY,
	pinned_by TEXT NOT NULL,
	pinned_at DATETIME NOT NULL,
	FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
);
-- One row per IP; re-banning updates reason/expiry via upsert.
CREATE TABLE IF NOT EXISTS bans (
	ip TEXT PRIMARY KEY,
	reason TEXT NOT NULL,
	banned_by TEXT DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS admins (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
);
-- Moderator action audit log
CREATE TABLE IF NOT EXISTS mod_actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	moderator TEXT NOT NULL,
	action TEXT NOT NULL,
	target_id INTEGER,
	details TEXT
);

-- --- INDEXES ---
CREATE INDEX IF NOT EXISTS idx_posts_thread ON posts(thread_id, deleted);
CREATE INDEX IF NOT EXISTS idx_threads_bump ON threads(deleted, bump DESC);
CREATE INDEX IF NOT EXISTS idx_posts_ip ON posts(ip);
CREATE INDEX IF NOT EXISTS idx_threads_ip ON threads(ip);
CREATE INDEX IF NOT EXISTS idx_mod_actions_time ON mod_actions(timestamp DESC);
`
