package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ctxvault/internal/vault"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *vault.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Knowledge items.
	r.Get("/knowledge", h.ListKnowledge)
	r.Post("/knowledge", h.CreateKnowledge)
	r.Get("/knowledge/{id}", h.GetKnowledge)

	// Sessions.
	r.Get("/sessions", h.ListSessions)
	r.Post("/sessions", h.SaveSession)
	r.Post("/sessions/import", h.ImportSession)
	r.Get("/sessions/{id}", h.GetSession)
	r.Post("/sessions/{id}/promote", h.PromoteCandidate)

	// Search and index maintenance.
	r.Get("/search", h.Search)
	r.Get("/search/fts", h.FullTextSearch)
	r.Post("/search/fts", h.FullTextSearch)
	r.Get("/stats", h.Stats)
	r.Post("/reindex", h.Reindex)

	// Skills.
	r.Get("/skills", h.ListSkills)
	r.Get("/skills/{id}", h.GetSkill)
	r.Post("/skills/{id}/validate", h.ValidateSkill)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
