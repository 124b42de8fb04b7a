// Package http assembles the API router.
package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"studypal-ai/internal/conversation"
	"studypal-ai/internal/handlers"
	"studypal-ai/internal/queue"
	"studypal-ai/internal/storage"
	"studypal-ai/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	DB          *sql.DB
	Contents    storage.ContentStore
	Sessions    storage.SessionStore
	Messages    storage.MessageStore
	Jobs        storage.JobStore
	Queue       *queue.Queue
	Engine      *conversation.Engine
	VectorStore *vectorstore.QdrantStore
	Collection  string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	r.Use(LoggerMiddleware)
	r.Use(UserIDMiddleware)

	contentHandler := handlers.NewContentHandler(deps.Contents, deps.Jobs, deps.Queue)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions)
	messageHandler := handlers.NewMessageHandler(deps.Engine, deps.Sessions, deps.Messages)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.VectorStore, deps.Collection)
	statsHandler := handlers.NewQueueStatsHandler(deps.Queue)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Method(http.MethodGet, "/queue/stats", statsHandler)

		r.Route("/content", func(r chi.Router) {
			r.Post("/", contentHandler.Create)
			r.Get("/", contentHandler.List)
			r.Get("/{contentID}", contentHandler.Get)
			r.Delete("/{contentID}", contentHandler.Delete)
			r.Get("/{contentID}/status", contentHandler.Status)
			r.Post("/{contentID}/reanalyze", contentHandler.Reanalyze)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)
			r.Delete("/{sessionID}", sessionHandler.Delete)
			r.Post("/{sessionID}/messages", messageHandler.Post)
			r.Get("/{sessionID}/messages", messageHandler.List)
		})
	})

	return r
}
