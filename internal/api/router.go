package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/docassist/internal/api/handlers"
	"github.com/nikhilbhutani/docassist/internal/api/middleware"
)

type Deps struct {
	Documents      handlers.DocumentService
	Chat           handlers.ChatService
	Authenticate   func(http.Handler) http.Handler
	ReadyChecks    map[string]handlers.Check
	MaxUploadBytes int64
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.AllowedOrigins))

	health := handlers.NewHealthHandler(d.ReadyChecks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Limit)
		}
		r.Use(d.Authenticate)

		docH := handlers.NewDocumentHandler(d.Documents, d.MaxUploadBytes)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Upload)
			r.Get("/", docH.List)
			r.Get("/{id}", docH.Get)
			r.Get("/{id}/status", docH.Status)
			r.Delete("/{id}", docH.Delete)
		})

		chatH := handlers.NewChatHandler(d.Chat)
		r.Route("/chat", func(r chi.Router) {
			r.Post("/", chatH.Ask)
			r.Get("/sessions", chatH.ListSessions)
			r.Get("/sessions/{id}/messages", chatH.ListMessages)
			r.Delete("/sessions/{id}", chatH.DeleteSession)
		})
	})

	return r
}
