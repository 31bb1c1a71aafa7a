package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ctxvault/internal/index"
	"github.com/starford/ctxvault/internal/knowledge"
	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/vault"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *vault.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *vault.Service) *Handler {
	return &Handler{svc: svc}
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// ListKnowledge handles GET /api/knowledge.
//
//	@Summary		List knowledge items, newest first
//	@Tags			knowledge
//	@Produce		json
//	@Param			category	query		string	false	"Category filter"
//	@Param			limit		query		int		false	"Max items"
//	@Success		200			{object}	KnowledgeListResponse
//	@Security		BearerAuth
//	@Router			/knowledge [get]
func (h *Handler) ListKnowledge(w http.ResponseWriter, r *http.Request) {
	var cat *models.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c := models.Category(raw)
		if !c.Valid() {
			writeJSON(w, http.StatusBadRequest, errorBody("unknown category"))
			return
		}
		cat = &c
	}
	items, err := h.svc.ListKnowledge(r.Context(), cat, queryInt(r, "limit"))
	if err != nil {
		writeError(w, "list knowledge", err)
		return
	}
	writeJSON(w, http.StatusOK, KnowledgeListResponse{Items: items, Total: len(items)})
}

// GetKnowledge handles GET /api/knowledge/{id}.
//
//	@Summary		Read a knowledge item from its file
//	@Tags			knowledge
//	@Produce		json
//	@Param			id	path		string	true	"Knowledge item ID"
//	@Success		200	{object}	KnowledgeDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/knowledge/{id} [get]
func (h *Handler) GetKnowledge(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.GetKnowledge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get knowledge", err)
		return
	}
	writeJSON(w, http.StatusOK, newKnowledgeDetail(doc))
}

// CreateKnowledge handles POST /api/knowledge.
//
//	@Summary		Create a knowledge item
//	@Tags			knowledge
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateKnowledgeRequest	true	"Item to create"
//	@Success		201		{object}	KnowledgeDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/knowledge [post]
func (h *Handler) CreateKnowledge(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	doc, err := h.svc.CreateKnowledge(r.Context(), knowledge.CreateParams{
		Title:            req.Title,
		Content:          req.Content,
		Category:         models.Category(req.Category),
		SourceSessions:   req.SourceSessions,
		ModelSources:     req.ModelSources,
		Tags:             req.Tags,
		Confidence:       models.Confidence(req.Confidence),
		GeneratedBySkill: req.GeneratedBySkill,
	})
	if err != nil && !vault.IsIndexError(err) {
		writeError(w, "create knowledge", err)
		return
	}
	resp := newKnowledgeDetail(doc)
	if err != nil {
		resp.IndexError = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListSessions handles GET /api/sessions.
//
//	@Summary		List sessions, newest first
//	@Tags			sessions
//	@Produce		json
//	@Param			model	query		string	false	"Model source filter"
//	@Param			limit	query		int		false	"Max sessions"
//	@Param			source	query		string	false	"index lists from the index instead of the files"
//	@Success		200		{object}	SessionListResponse
//	@Security		BearerAuth
//	@Router			/sessions [get]
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list := h.svc.ListSessions
	if q.Get("source") == "index" {
		list = h.svc.ListIndexedSessions
	}
	sessions, err := list(r.Context(), queryInt(r, "limit"), q.Get("model"))
	if err != nil {
		writeError(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: sessions, Total: len(sessions)})
}

// GetSession handles GET /api/sessions/{id}.
//
//	@Summary		Read a session record
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	models.Session
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SaveSession handles POST /api/sessions.
//
//	@Summary		Save a session record and its transcript
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.Session	true	"Session record"
//	@Success		201		{object}	SessionSaveResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var sess models.Session
	if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	h.saveSession(w, r, &sess)
}

func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	path, err := h.svc.SaveSession(r.Context(), sess)
	if err != nil && !vault.IsIndexError(err) {
		writeError(w, "save session", err)
		return
	}
	resp := SessionSaveResponse{SessionID: sess.SessionID, Path: path}
	if err != nil {
		resp.IndexError = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// PromoteCandidate handles POST /api/sessions/{id}/promote.
//
//	@Summary		Promote a session's knowledge candidate to a knowledge item
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session ID"
//	@Param			body	body		PromoteRequest	true	"Candidate selection"
//	@Success		201		{object}	KnowledgeDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/promote [post]
func (h *Handler) PromoteCandidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req PromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	var cat *models.Category
	if req.Category != "" {
		c := models.Category(req.Category)
		cat = &c
	}

	doc, err := h.svc.PromoteCandidate(r.Context(), chi.URLParam(r, "id"), req.Index, cat)
	if err != nil && !vault.IsIndexError(err) {
		writeError(w, "promote candidate", err)
		return
	}
	resp := newKnowledgeDetail(doc)
	if err != nil {
		resp.IndexError = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Search handles GET /api/search.
//
//	@Summary		Substring search over titles and summaries
//	@Tags			search
//	@Produce		json
//	@Param			q			query		string	false	"Substring"
//	@Param			category	query		string	false	"Category filter"
//	@Param			limit		query		int		false	"Max results"
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hits, err := h.svc.Search(r.Context(), index.FilterQuery{
		Query:    q.Get("q"),
		Category: models.Category(q.Get("category")),
		Limit:    queryInt(r, "limit"),
	})
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}

// FullTextSearch handles GET and POST /api/search/fts.
//
//	@Summary		Ranked full-text search over knowledge items
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			q		query		string			false	"Full-text query (GET)"
//	@Param			limit	query		int				false	"Max results (GET)"
//	@Param			body	body		FullTextRequest	false	"Query (POST)"
//	@Success		200		{object}	FullTextResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search/fts [get]
func (h *Handler) FullTextSearch(w http.ResponseWriter, r *http.Request) {
	req := FullTextRequest{Query: r.URL.Query().Get("q"), Limit: queryInt(r, "limit")}
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query is required"))
		return
	}
	hits, err := h.svc.SearchFullText(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(w, "full-text search", err)
		return
	}
	writeJSON(w, http.StatusOK, FullTextResponse{Query: req.Query, Results: hits})
}

// Stats handles GET /api/stats.
//
//	@Summary		Index counts
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	models.Stats
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Reindex handles POST /api/reindex.
//
//	@Summary		Rebuild the index from the file stores
//	@Tags			index
//	@Produce		json
//	@Param			full	query		bool	false	"Drop the index before rebuilding"
//	@Success		200		{object}	vault.ReindexReport
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))
	report, err := h.svc.Reindex(r.Context(), vault.ReindexOptions{Full: full})
	if err != nil {
		writeError(w, "reindex", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListSkills handles GET /api/skills.
//
//	@Summary		List registered skills
//	@Tags			skills
//	@Produce		json
//	@Success		200	{object}	SkillListResponse
//	@Security		BearerAuth
//	@Router			/skills [get]
func (h *Handler) ListSkills(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListSkills(r.Context())
	if err != nil {
		writeError(w, "list skills", err)
		return
	}
	writeJSON(w, http.StatusOK, SkillListResponse{Skills: list})
}

// GetSkill handles GET /api/skills/{id}.
func (h *Handler) GetSkill(w http.ResponseWriter, r *http.Request) {
	sk, err := h.svc.GetSkill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get skill", err)
		return
	}
	writeJSON(w, http.StatusOK, sk)
}

// ValidateSkill handles POST /api/skills/{id}/validate.
func (h *Handler) ValidateSkill(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ValidateSkill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "validate skill", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
