// mopchan/database/threads.go
package database

import (
	"database/sql"
	"fmt"
	"strings"

	"mopchan/models"
	"mopchan/utils"
)

// CreateThread inserts a new thread after the ban gate. The bump timestamp
// starts equal to the creation timestamp and the derived counts at zero:
// reply and image counts track replies only, the OP's own image is carried
// on the thread row and presented separately.
func (ds *DatabaseService) CreateThread(input models.ThreadInput) (*models.Thread, error) {
	if ban, banned := ds.ActiveBan(input.IP); banned {
		return nil, models.BanError{Ban: ban}
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, models.ValidationError{Reason: "thread content must not be empty"}
	}

	now := utils.GetSQLTime()
	name := input.Name
	if name == "" {
		name = "Anonymous"
	}

	res, err := ds.DB.Exec(`
		INSERT INTO threads (subject, content, name, tripcode, is_admin, image_path, thumbnail_path, image_hash, ip, created, bump, reply_count, image_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`,
		input.Subject, input.Content, name, input.Tripcode, input.IsAdmin,
		input.ImagePath, input.ThumbnailPath, input.ImageHash, input.IP, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert thread: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new thread id: %w", err)
	}

	ds.logger.Info("Thread created", "thread_id", id)

	return &models.Thread{
		ID:            id,
		Subject:       input.Subject,
		Content:       input.Content,
		Name:          name,
		Tripcode:      input.Tripcode,
		IsAdmin:       input.IsAdmin,
		ImagePath:     input.ImagePath,
		ThumbnailPath: input.ThumbnailPath,
		CreatedAt:     now,
		BumpedAt:      now,
		IP:            input.IP,
	}, nil
}

// CreatePost inserts a reply and recomputes the owning thread's derived
// fields. The insert and the recompute run in one transaction under the
// thread's mutation lock, so concurrent replies serialize per thread and
// readers never observe a count without its post.
func (ds *DatabaseService) CreatePost(threadID int64, input models.PostInput) (*models.Post, error) {
	if ban, banned := ds.ActiveBan(input.IP); banned {
		return nil, models.BanError{Ban: ban}
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, models.ValidationError{Reason: "reply content must not be empty"}
	}

	lock := ds.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := ds.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ds.rollback(tx, "CreatePost")

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

	now := utils.GetSQLTime()
	name := input.Name
	if name == "" {
		name = "Anonymous"
	}

	res, err := tx.Exec(`
		INSERT INTO posts (thread_id, content, name, tripcode, is_admin, sage, image_path, thumbnail_path, image_hash, ip, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		threadID, input.Content, name, input.Tripcode, input.IsAdmin, input.Sage,
		input.ImagePath, input.ThumbnailPath, input.ImageHash, input.IP, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert post: %w", err)
	}
	postID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new post id: %w", err)
	}

	if err := recomputeThread(tx, threadID); err != nil {
		return nil, err
	}
	if !input.Sage {
		if _, err := tx.Exec("UPDATE threads SET bump = ? WHERE id = ?", now, threadID); err != nil {
			return nil, fmt.Errorf("failed to bump thread %d: %w", threadID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit post: %w", err)
	}

	ds.logger.Info("Post created", "post_id", postID, "thread_id", threadID, "sage", input.Sage)

	return &models.Post{
		ID:            postID,
		ThreadID:      threadID,
		Content:       input.Content,
		Name:          name,
		Tripcode:      input.Tripcode,
		IsAdmin:       input.IsAdmin,
		Sage:          input.Sage,
		ImagePath:     input.ImagePath,
		ThumbnailPath: input.ThumbnailPath,
		Timestamp:     now,
		IP:            input.IP,
	}, nil
}

// recomputeThread rewrites a thread's derived fields from its non-deleted
// posts. Recomputing from source instead of incrementing keeps the counts
// self-healing after concurrent deletions.
func recomputeThread(tx *sql.Tx, threadID int64) error {
	_, err := tx.Exec(`
		UPDATE threads SET
			reply_count = (SELECT COUNT(*) FROM posts WHERE thread_id = ? AND deleted = 0),
			image_count = (SELECT COUNT(*) FROM posts WHERE thread_id = ? AND deleted = 0 AND image_path != '')
		WHERE id = ?`, threadID, threadID, threadID)
	if err != nil {
		return fmt.Errorf("failed to recompute thread %d counters: %w", threadID, err)
	}
	return nil
}

const threadColumns = `t.id, t.subject, t.content, t.name, t.tripcode, t.is_admin,
	t.image_path, t.thumbnail_path, t.ip, t.created, t.bump, t.reply_count, t.image_count`

// GetCatalog returns the ordered thread listing: pinned threads first, newest
// pin on top, then unpinned threads in bump order. The id tie-break makes the
// order total, so repeated reads of an unchanged store are identical.
func (ds *DatabaseService) GetCatalog() ([]models.Thread, error) {
	rows, err := ds.DB.Query(`
		SELECT ` + threadColumns + `, p.pinned_at
		FROM threads t
		LEFT JOIN thread_pins p ON p.thread_id = t.id
		WHERE t.deleted = 0
		ORDER BY (p.thread_id IS NOT NULL) DESC, p.pinned_at DESC, t.bump DESC, t.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in GetCatalog", "error", err)
		}
	}()

	var threads []models.Thread
	for rows.Next() {
		var t models.Thread
		if err := rows.Scan(&t.ID, &t.Subject, &t.Content, &t.Name, &t.Tripcode, &t.IsAdmin,
			&t.ImagePath, &t.ThumbnailPath, &t.IP, &t.CreatedAt, &t.BumpedAt,
			&t.ReplyCount, &t.ImageCount, &t.PinnedAt); err != nil {
			ds.logger.Error("Failed to scan catalog row", "error", err)
			continue
		}
		t.Pinned = t.PinnedAt.Valid
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return threads, nil
}

// GetThread fetches a single thread and all its non-deleted posts, in the
// order the per-thread lock serialized their creation.
func (ds *DatabaseService) GetThread(threadID int64) (*models.Thread, error) {
	var t models.Thread
	err := ds.DB.QueryRow(`
		SELECT `+threadColumns+`, p.pinned_at
		FROM threads t
		LEFT JOIN thread_pins p ON p.thread_id = t.id
		WHERE t.id = ? AND t.deleted = 0`, threadID).Scan(
		&t.ID, &t.Subject, &t.Content, &t.Name, &t.Tripcode, &t.IsAdmin,
		&t.ImagePath, &t.ThumbnailPath, &t.IP, &t.CreatedAt, &t.BumpedAt,
		&t.ReplyCount, &t.ImageCount, &t.PinnedAt)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundError{Resource: "thread", ID: threadID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query thread %d: %w", threadID, err)
	}
	t.Pinned = t.PinnedAt.Valid

	rows, err := ds.DB.Query(`
		SELECT id, thread_id, content, name, tripcode, is_admin, sage, image_path, thumbnail_path, ip, timestamp
		FROM posts WHERE thread_id = ? AND deleted = 0 ORDER BY id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts for thread %d: %w", threadID, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in GetThread", "error", err)
		}
	}()

	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.ThreadID, &p.Content, &p.Name, &p.Tripcode, &p.IsAdmin,
			&p.Sage, &p.ImagePath, &p.ThumbnailPath, &p.IP, &p.Timestamp); err != nil {
			ds.logger.Error("Failed to scan post row", "error", err)
			continue
		}
		t.Posts = append(t.Posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteThread tombstones a thread, its posts and its pin in one
// transaction. Deleting an absent or already-deleted thread reports false
// rather than erroring the caller's flow. The returned paths are the blob
// references freed by the cascade.
func (ds *DatabaseService) DeleteThread(threadID int64, moderator string) (bool, []string, error) {
	lock := ds.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := ds.DB.Begin()
	if err != nil {
		return false, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ds.rollback(tx, "DeleteThread")

	var blobs []blobRef
	rows, err := tx.Query(`
		SELECT image_path, thumbnail_path, image_hash FROM threads WHERE id = ? AND deleted = 0 AND image_path != ''
		UNION ALL
		SELECT image_path, thumbnail_path, image_hash FROM posts WHERE thread_id = ? AND deleted = 0 AND image_path != ''`,
		threadID, threadID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to collect blob paths: %w", err)
	}
	for rows.Next() {
		var b blobRef
		if err := rows.Scan(&b.ImagePath, &b.ThumbPath, &b.Hash); err == nil {
			blobs = append(blobs, b)
		}
	}
	if err := rows.Close(); err != nil {
		ds.logger.Warn("Failed to close rows collecting blob paths", "error", err)
	}

	res, err := tx.Exec("UPDATE threads SET deleted = 1 WHERE id = ? AND deleted = 0", threadID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to delete thread %d: %w", threadID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, nil, err
	}
	if affected == 0 {
		return false, nil, nil
	}

	if _, err := tx.Exec("UPDATE posts SET deleted = 1 WHERE thread_id = ?", threadID); err != nil {
		return false, nil, fmt.Errorf("failed to cascade delete posts of thread %d: %w", threadID, err)
	}
	if _, err := tx.Exec("DELETE FROM thread_pins WHERE thread_id = ?", threadID); err != nil {
		return false, nil, fmt.Errorf("failed to remove pin of thread %d: %w", threadID, err)
	}
	if err := LogModAction(tx, moderator, "delete_thread", threadID, ""); err != nil {
		return false, nil, err
	}

	paths := freeableBlobPaths(tx, ds, blobs)

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("failed to commit thread deletion: %w", err)
	}

	ds.logger.Info("Thread deleted", "thread_id", threadID, "moderator", moderator)
	return true, paths, nil
}

// blobRef is one stored upload with its dedup key.
type blobRef struct {
	ImagePath string
	ThumbPath string
	Hash      string
}

// freeableBlobPaths filters tombstoned uploads down to those no live row
// still references. Uploads are deduplicated by content hash, so a blob can
// only be removed once its last referencing post or thread is gone. Runs
// after the tombstone updates inside the same transaction.
func freeableBlobPaths(tx *sql.Tx, ds *DatabaseService, blobs []blobRef) []string {
	var paths []string
	for _, b := range blobs {
		// Rows without a recorded hash cannot be shared, remove them directly.
		if b.Hash != "" {
			var count int
			err := tx.QueryRow(`
				SELECT (SELECT COUNT(*) FROM posts WHERE image_hash = ? AND deleted = 0)
				     + (SELECT COUNT(*) FROM threads WHERE image_hash = ? AND deleted = 0)`,
				b.Hash, b.Hash).Scan(&count)
			if err != nil {
				ds.logger.Warn("Failed to check for shared image references", "hash", b.Hash, "error", err)
				continue
			}
			if count > 0 {
				continue
			}
		}
		paths = append(paths, b.ImagePath)
		if b.ThumbPath != "" {
			paths = append(paths, b.ThumbPath)
		}
	}
	return paths
}

// DeletePost tombstones one reply and recomputes the owning thread's counts
// in the same transaction, under the thread's mutation lock. The bump
// timestamp is left as-is: deletions do not reorder the catalog.
func (ds *DatabaseService) DeletePost(postID int64, moderator string) (bool, []string, error) {
	var threadID int64
	err := ds.DB.QueryRow("SELECT thread_id FROM posts WHERE id = ? AND deleted = 0", postID).Scan(&threadID)
	if err == sql.ErrNoRows {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to look up post %d: %w", postID, err)
	}

	lock := ds.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := ds.DB.Begin()
	if err != nil {
		return false, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ds.rollback(tx, "DeletePost")

	var blob blobRef
	// Re-check under the lock: a concurrent delete may have won.
	err = tx.QueryRow("SELECT image_path, thumbnail_path, image_hash FROM posts WHERE id = ? AND deleted = 0", postID).
		Scan(&blob.ImagePath, &blob.ThumbPath, &blob.Hash)
	if err == sql.ErrNoRows {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to re-check post %d: %w", postID, err)
	}

	if _, err := tx.Exec("UPDATE posts SET deleted = 1 WHERE id = ?", postID); err != nil {
		return false, nil, fmt.Errorf("failed to delete post %d: %w", postID, err)
	}
	if err := recomputeThread(tx, threadID); err != nil {
		return false, nil, err
	}
	if err := LogModAction(tx, moderator, "delete_post", postID, ""); err != nil {
		return false, nil, err
	}

	var paths []string
	if blob.ImagePath != "" {
		paths = freeableBlobPaths(tx, ds, []blobRef{blob})
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("failed to commit post deletion: %w", err)
	}

	ds.logger.Info("Post deleted", "post_id", postID, "thread_id", threadID, "moderator", moderator)
	return true, paths, nil
}

// FindImageByHash looks up an already-stored upload by content hash, so the
// same image posted twice reuses the stored blob instead of duplicating it.
func (ds *DatabaseService) FindImageByHash(hash string) (string, string, bool) {
	var imagePath, thumbPath string
	err := ds.DB.QueryRow(`
		SELECT image_path, thumbnail_path FROM posts WHERE image_hash = ? AND deleted = 0 AND image_path != ''
		UNION ALL
		SELECT image_path, thumbnail_path FROM threads WHERE image_hash = ? AND deleted = 0 AND image_path != ''
		LIMIT 1`, hash, hash).Scan(&imagePath, &thumbPath)
	if err == sql.ErrNoRows {
		return "", "", false
	}
	if err != nil {
		ds.logger.Error("Failed to check for existing image hash", "error", err)
		return "", "", false
	}
	return imagePath, thumbPath, true
}

// LookupPostsByIP returns all non-deleted posts made from an IP, most recent
// first. Admin surface only.
func (ds *DatabaseService) LookupPostsByIP(ip string) ([]models.Post, error) {
	rows, err := ds.DB.Query(`
		SELECT id, thread_id, content, name, tripcode, is_admin, sage, image_path, thumbnail_path, ip, timestamp
		FROM posts WHERE ip = ? AND deleted = 0 ORDER BY id DESC LIMIT 100`, ip)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts by ip: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in LookupPostsByIP", "error", err)
		}
	}()

	var posts []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.ThreadID, &p.Content, &p.Name, &p.Tripcode, &p.IsAdmin,
			&p.Sage, &p.ImagePath, &p.ThumbnailPath, &p.IP, &p.Timestamp); err != nil {
			ds.logger.Error("Failed to scan post row in LookupPostsByIP", "error", err)
			continue
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}
