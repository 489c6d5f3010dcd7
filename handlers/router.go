// mopchan/handlers/router.go
package handlers

import (
	"net/http"

	"mopchan/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func SetupRouter(app App) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(NewStructuredLogger(app.Logger()))
	mux.Use(middleware.Recoverer)

	// Static file server for locally stored uploads
	mux.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(app.UploadDir()))))

	// Public board API
	mux.Get("/api/catalog", MakeHandler(app, HandleCatalog))
	mux.Get("/api/threads/{threadID}", MakeHandler(app, HandleGetThread))
	mux.Group(func(r chi.Router) {
		r.Use(RateLimit(app))
		r.Post("/api/threads", MakeHandler(app, HandleCreateThread))
		r.Post("/api/threads/{threadID}/replies", MakeHandler(app, HandleCreateReply))
	})

	// Chat websocket
	mux.Get("/ws", MakeHandler(app, HandleChat))

	// Admin API
	mux.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", MakeHandler(app, HandleLogin))
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(app, models.RoleModerator))
			r.Post("/threads/{threadID}/pin", MakeHandler(app, HandlePinThread))
			r.Delete("/threads/{threadID}/pin", MakeHandler(app, HandleUnpinThread))
			r.Delete("/threads/{threadID}", MakeHandler(app, HandleDeleteThread))
			r.Delete("/posts/{postID}", MakeHandler(app, HandleDeletePost))
			r.Post("/bans", MakeHandler(app, HandleBanIP))
			r.Delete("/bans", MakeHandler(app, HandleUnbanIP))
			r.Get("/bans", MakeHandler(app, HandleListBans))
			r.Get("/ip-lookup", MakeHandler(app, HandleLookupIP))
			r.Get("/stats", MakeHandler(app, HandleStats))
		})
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(app, models.RoleAdmin))
			r.Get("/admins", MakeHandler(app, HandleListAdmins))
			r.Post("/admins/{adminID}/role", MakeHandler(app, HandleUpdateAdminRole))
		})
	})

	return mux
}
