package api

import (
	"github.com/starford/ctxvault/internal/index"
	"github.com/starford/ctxvault/internal/models"
)

// CreateKnowledgeRequest is the request body for creating a knowledge item.
type CreateKnowledgeRequest struct {
	Title            string   `json:"title" example:"Retry Backoff" validate:"required"`
	Content          string   `json:"content" example:"Use exponential backoff."`
	Category         string   `json:"category" example:"tech_notes" validate:"required"`
	SourceSessions   []string `json:"source_sessions"`
	ModelSources     []string `json:"model_sources"`
	Tags             []string `json:"tags"`
	Confidence       string   `json:"confidence" example:"medium"`
	GeneratedBySkill string   `json:"generated_by_skill,omitempty"`
}

// PromoteRequest selects a knowledge candidate of a session.
type PromoteRequest struct {
	Index    int    `json:"index" example:"0"`
	Category string `json:"category,omitempty" example:"thinking"`
}

// KnowledgeDetail is a knowledge item with its body. IndexError is set when
// the file was written but the index could not be updated.
type KnowledgeDetail struct {
	models.KnowledgeItem
	Content    string `json:"content"`
	Path       string `json:"path"`
	Checksum   string `json:"checksum"`
	IndexError string `json:"index_error,omitempty"`
}

func newKnowledgeDetail(doc *models.KnowledgeDocument) KnowledgeDetail {
	return KnowledgeDetail{
		KnowledgeItem: doc.Item,
		Content:       doc.Body,
		Path:          doc.Path,
		Checksum:      doc.Checksum,
	}
}

// KnowledgeListResponse wraps knowledge listings.
type KnowledgeListResponse struct {
	Items []models.KnowledgeSummary `json:"items" validate:"required"`
	Total int                       `json:"total" example:"42" validate:"required"`
}

// SessionSaveResponse is returned after a session is written.
type SessionSaveResponse struct {
	SessionID  string `json:"session_id" validate:"required"`
	Path       string `json:"path" validate:"required"`
	IndexError string `json:"index_error,omitempty"`
}

// SessionListResponse wraps session listings.
type SessionListResponse struct {
	Sessions []models.SessionSummary `json:"sessions" validate:"required"`
	Total    int                     `json:"total" validate:"required"`
}

// SearchResponse wraps filter search results.
type SearchResponse struct {
	Results []index.KnowledgeHit `json:"results" validate:"required"`
}

// FullTextResponse wraps full-text search results.
type FullTextResponse struct {
	Query   string         `json:"query"`
	Results []index.FTSHit `json:"results" validate:"required"`
}

// FullTextRequest is the POST body for /search/fts.
type FullTextRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit"`
}

// SkillListResponse wraps skill listings.
type SkillListResponse struct {
	Skills []models.Skill `json:"skills" validate:"required"`
}
