// mopchan/handlers/handlers.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mopchan/auth"
	"mopchan/chat"
	"mopchan/database"
	"mopchan/models"
)

// App is an interface that defines the dependencies our handlers need.
type App interface {
	DB() *database.DatabaseService
	Auth() *auth.Service
	Chat() *chat.Room
	RateLimiter() *models.RateLimiter
	Logger() *slog.Logger
	Storage() models.StorageService
	UploadDir() string
}

// respondJSON sends a JSON response with a given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}, app App) {
	response, err := json.Marshal(payload)
	if err != nil {
		app.Logger().Error("Failed to marshal JSON payload", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		if _, werr := w.Write([]byte(`{"error":"Failed to marshal JSON response"}`)); werr != nil {
			app.Logger().Error("Failed to write internal server error response", "error", werr)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		app.Logger().Error("Failed to write JSON response", "error", err)
	}
}

// respondError maps the typed error taxonomy onto HTTP statuses. Every
// user-visible failure carries a renderable reason; only unrecognized errors
// are treated as server faults.
func respondError(w http.ResponseWriter, err error, app App) {
	var (
		vErr   models.ValidationError
		nfErr  models.NotFoundError
		banErr models.BanError
		pinErr models.AlreadyPinnedError
	)
	switch {
	case errors.As(err, &vErr):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Reason}, app)
	case errors.As(err, &nfErr):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": nfErr.Error()}, app)
	case errors.As(err, &banErr):
		msg := fmt.Sprintf("You are banned. Reason: %s. %s", banErr.Ban.Reason, banExpiryText(banErr.Ban))
		respondJSON(w, http.StatusForbidden, map[string]string{"error": msg, "banned": "true"}, app)
	case errors.As(err, &pinErr):
		respondJSON(w, http.StatusConflict, map[string]string{"error": pinErr.Error()}, app)
	case errors.Is(err, models.ErrUnauthenticated):
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Authentication required."}, app)
	case errors.Is(err, models.ErrForbidden):
		respondJSON(w, http.StatusForbidden, map[string]string{"error": "Insufficient privileges."}, app)
	default:
		app.Logger().Error("Unhandled error in request", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error."}, app)
	}
}

func banExpiryText(ban models.Ban) string {
	if !ban.ExpiresAt.Valid {
		return "This ban is permanent."
	}
	return "This ban expires " + ban.ExpiresAt.Time.Format(time.RFC3339) + "."
}

// MakeHandler adapts a handler taking the App interface to http.HandlerFunc.
func MakeHandler(app App, fn func(http.ResponseWriter, *http.Request, App)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, app)
	}
}
