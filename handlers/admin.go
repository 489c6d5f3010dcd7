// mopchan/handlers/admin.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"mopchan/models"

	"github.com/go-chi/chi/v5"
)

// adminAccount is the admin-surface view of an account. Password hashes
// never leave the auth service.
type adminAccount struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// HandleListAdmins returns every admin account.
func HandleListAdmins(w http.ResponseWriter, r *http.Request, app App) {
	admins, err := app.Auth().ListAdmins()
	if err != nil {
		respondError(w, err, app)
		return
	}

	view := make([]adminAccount, 0, len(admins))
	for _, a := range admins {
		view = append(view, adminAccount{ID: a.ID, Username: a.Username, Role: a.Role.String()})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"admins": view}, app)
}

// HandleUpdateAdminRole changes an account's privilege level. The new role
// takes effect on the target's next request.
func HandleUpdateAdminRole(w http.ResponseWriter, r *http.Request, app App) {
	adminID, err := strconv.ParseInt(chi.URLParam(r, "adminID"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid admin ID."}, app)
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body."}, app)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid role: must be user, moderator or admin."}, app)
		return
	}

	ident := identityFrom(r)
	updated, err := app.Auth().UpdateAdminRole(adminID, role, ident.Username)
	if err != nil {
		respondError(w, err, app)
		return
	}

	app.Logger().Info("Admin role changed", "admin_id", adminID, "role", role.String(), "moderator", ident.Username)
	respondJSON(w, http.StatusOK, adminAccount{ID: updated.ID, Username: updated.Username, Role: updated.Role.String()}, app)
}

// HandleStats returns the board activity summary for the admin dashboard.
func HandleStats(w http.ResponseWriter, r *http.Request, app App) {
	stats, err := app.DB().GetStats()
	if err != nil {
		respondError(w, err, app)
		return
	}
	respondJSON(w, http.StatusOK, stats, app)
}
