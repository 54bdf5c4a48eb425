package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes builds the read-only arena API.
func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/readyz", h.ReadyCheck)

	r.Route("/api/v1/arena", func(r chi.Router) {
		r.Get("/", h.GetStatus)
		r.Get("/teams", h.GetTeams)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/participants/{participantID}", h.GetParticipant)
	})
	return r
}
