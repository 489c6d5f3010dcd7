// mopchan/handlers/moderation.go
package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mopchan/models"
	"mopchan/utils"

	"github.com/go-chi/chi/v5"
)

// HandleLogin exchanges admin credentials for a signed token.
func HandleLogin(w http.ResponseWriter, r *http.Request, app App) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body."}, app)
		return
	}

	token, ident, err := app.Auth().Login(req.Username, req.Password)
	if err != nil {
		app.Logger().Warn("Failed login attempt", "username", req.Username, "ip", utils.GetIPAddress(r))
		respondError(w, err, app)
		return
	}

	app.Logger().Info("Admin logged in", "username", ident.Username, "role", ident.Role.String())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":    token,
		"username": ident.Username,
		"role":     ident.Role.String(),
	}, app)
}

// HandlePinThread pins a thread to the top of the catalog.
func HandlePinThread(w http.ResponseWriter, r *http.Request, app App) {
	threadID, err := strconv.ParseInt(chi.URLParam(r, "threadID"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid thread ID."}, app)
		return
	}

	ident := identityFrom(r)
	pin, err := app.DB().PinThread(threadID, ident.Username)
	if err != nil {
		respondError(w, err, app)
		return
	}

	app.Logger().Info("Thread pinned", "thread_id", threadID, "moderator", ident.Username)
	respondJSON(w, http.StatusOK, pin, app)
}

// HandleUnpinThread removes a thread's pin. Unpinning a thread that is not
// pinned succeeds without effect.
func HandleUnpinThread(w http.ResponseWriter, r *http.Request, app App) {
	threadID, err := strconv.ParseInt(chi.URLParam(r, "threadID"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid thread ID."}, app)
		return
	}

	ident := identityFrom(r)
	removed, err := app.DB().UnpinThread(threadID, ident.Username)
	if err != nil {
		respondError(w, err, app)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"unpinned": removed}, app)
}

// HandleDeleteThread tombstones a thread and all of its replies.
func HandleDeleteThread(w http.ResponseWriter, r *http.Request, app App) {
	threadID, err := strconv.ParseInt(chi.URLParam(r, "threadID"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid thread ID."}, app)
		return
	}

	ident := identityFrom(r)
	deleted, blobPaths, err := app.DB().DeleteThread(threadID, ident.Username)
	if err != nil {
		respondError(w, err, app)
		return
	}
	if !deleted {
		respondError(w, models.NotFoundError{Resource: "thread", ID: threadID}, app)
		return
	}

	cleanupBlobs(app, blobPaths)
	app.Logger().Info("Thread deleted", "thread_id", threadID, "moderator", ident.Username)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, app)
}

// HandleDeletePost tombstones a single reply.
func HandleDeletePost(w http.ResponseWriter, r *http.Request, app App) {
	postID, err := strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid post ID."}, app)
		return
	}

	ident := identityFrom(r)
	deleted, blobPaths, err := app.DB().DeletePost(postID, ident.Username)
	if err != nil {
		respondError(w, err, app)
		return
	}
	if !deleted {
		respondError(w, models.NotFoundError{Resource: "post", ID: postID}, app)
		return
	}

	cleanupBlobs(app, blobPaths)
	app.Logger().Info("Post deleted", "post_id", postID, "moderator", ident.Username)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, app)
}

// HandleBanIP creates or updates a ban record. Duration is expressed as a Go
// duration string; an empty value means permanent. A zero duration produces a
// ban that is already expired, which effectively records without blocking.
func HandleBanIP(w http.ResponseWriter, r *http.Request, app App) {
	var req struct {
		IP       string `json:"ip"`
		Reason   string `json:"reason"`
		Duration string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body."}, app)
		return
	}

	var expiresAt sql.NullTime
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid duration: " + err.Error()}, app)
			return
		}
		expiresAt = sql.NullTime{Time: utils.GetSQLTime().Add(d), Valid: true}
	}

	ident := identityFrom(r)
	ban, err := app.DB().BanIP(req.IP, req.Reason, ident.Username, expiresAt)
	if err != nil {
		respondError(w, err, app)
		return
	}

	app.Logger().Info("IP banned", "ip", req.IP, "moderator", ident.Username, "permanent", !expiresAt.Valid)
	respondJSON(w, http.StatusOK, ban, app)
}

// HandleUnbanIP lifts a ban.
func HandleUnbanIP(w http.ResponseWriter, r *http.Request, app App) {
	var req struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body."}, app)
		return
	}

	ident := identityFrom(r)
	removed, err := app.DB().UnbanIP(req.IP, ident.Username)
	if err != nil {
		respondError(w, err, app)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"unbanned": removed}, app)
}

// HandleListBans returns every ban record, active or expired.
func HandleListBans(w http.ResponseWriter, r *http.Request, app App) {
	bans, err := app.DB().ListBans()
	if err != nil {
		respondError(w, err, app)
		return
	}
	if bans == nil {
		bans = []models.Ban{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"bans": bans}, app)
}

// HandleLookupIP lists every post made from an address, for moderation
// research before issuing a ban.
func HandleLookupIP(w http.ResponseWriter, r *http.Request, app App) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing ip query parameter."}, app)
		return
	}

	posts, err := app.DB().LookupPostsByIP(ip)
	if err != nil {
		respondError(w, err, app)
		return
	}

	// The IP field is stripped from public serialization; the admin view
	// re-attaches it explicitly.
	type adminPost struct {
		models.Post
		IP string `json:"ip"`
	}
	view := make([]adminPost, 0, len(posts))
	for _, p := range posts {
		view = append(view, adminPost{Post: p, IP: p.IP})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ip": ip, "posts": view}, app)
}

// cleanupBlobs best-effort deletes stored files after a tombstone. Blob
// removal failures are logged, never surfaced to the caller.
func cleanupBlobs(app App, paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := app.Storage().DeleteFile(p); err != nil {
			app.Logger().Error("Failed to delete stored file", "path", p, "error", err)
		}
	}
}
