// mopchan/handlers/middleware.go
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mopchan/auth"
	"mopchan/models"
	"mopchan/utils"

	"github.com/go-chi/chi/v5/middleware"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const IdentityKey ContextKey = "adminIdentity"

// identityFrom returns the verified admin identity placed in the context by
// RequireRole, if any.
func identityFrom(r *http.Request) *auth.Identity {
	ident, _ := r.Context().Value(IdentityKey).(*auth.Identity)
	return ident
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// RequireRole guards moderation routes behind the moderation gate. A failed
// check short-circuits before any state is touched: 401 for a missing or
// invalid credential, 403 for a valid credential with an insufficient role.
func RequireRole(app App, min models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, err := app.Auth().Authorize(bearerToken(r), min)
			if err != nil {
				respondError(w, err, app)
				return
			}
			ctx := context.WithValue(r.Context(), IdentityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit throttles anonymous write endpoints per originating IP.
func RateLimit(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.GetIPAddress(r)
			if !app.RateLimiter().GetLimiter(ip).Allow() {
				app.Logger().Warn("Rate limit exceeded", "ip", ip)
				respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limit exceeded. Please wait a moment."}, app)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewStructuredLogger logs each request through slog in the chi middleware
// chain.
func NewStructuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start).String(),
					"ip", utils.GetIPAddress(r),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
