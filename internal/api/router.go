package api

import (
	"net/http"

	"github.com/crowdbracket/crowdbracket/internal/api/handlers"
	"github.com/crowdbracket/crowdbracket/internal/api/middleware"
	"github.com/crowdbracket/crowdbracket/internal/broadcast"
	"github.com/crowdbracket/crowdbracket/internal/live"
	"github.com/crowdbracket/crowdbracket/internal/repository"
	"github.com/crowdbracket/crowdbracket/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(services *service.Services, broadcaster *broadcast.Service, manager *live.Manager, repos *repository.Repositories) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.CORS)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(services.Auth)
	voteHandler := handlers.NewVoteHandler(broadcaster)
	runHandler := handlers.NewRunHandler(manager)
	tournamentHandler := handlers.NewTournamentHandler(repos.Tournament, repos.Participant)

	// Public vote ingress and push stream
	r.Route("/votes/{tournamentId}", func(r chi.Router) {
		r.Post("/", voteHandler.Submit)
		r.Get("/subscribe", voteHandler.Subscribe)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)

		// Host control plane
		r.Group(func(r chi.Router) {
			r.Use(middleware.HostAuth(services.Auth))

			r.Route("/tournaments", func(r chi.Router) {
				r.Post("/", tournamentHandler.Create)
				r.Get("/{tournamentId}", tournamentHandler.Get)
			})

			r.Route("/runs/{tournamentId}", func(r chi.Router) {
				r.Post("/", runHandler.Start)
				r.Get("/", runHandler.Get)
				r.Post("/declare-winner", runHandler.DeclareWinner)
				r.Post("/resume", runHandler.Resume)
				r.Delete("/", runHandler.Stop)
			})
		})
	})

	return r
}
