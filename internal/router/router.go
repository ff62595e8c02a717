package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"hanmadi-backend/internal/handlers"
	"hanmadi-backend/internal/middleware"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	studyHandler *handlers.StudyHandler,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/guest", authHandler.Guest)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.RequireUser)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Catalog Routes (public, static content) ────
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/units", studyHandler.ListUnits)
			r.Get("/units/{unit}/cards", studyHandler.GetCards)
		})

		// ──── Study Routes (user or guest identity) ────
		r.Route("/study", func(r chi.Router) {
			r.Use(jwtAuth.RequireIdentity)
			r.Get("/overview", studyHandler.Overview)
			r.Post("/units/{unit}/open", studyHandler.Open)
			r.Get("/units/{unit}", studyHandler.State)
			r.Post("/units/{unit}/actions", studyHandler.Act)
		})
	})

	return r
}
