// Package models defines the domain types for ctxvault.
package models

import "time"

// Category is the fixed set of knowledge item categories.
type Category string

const (
	CategoryTrustedSources Category = "trusted_sources"
	CategoryThinking       Category = "thinking"
	CategoryTechNotes      Category = "tech_notes"
	CategorySkillsDerived  Category = "skills_derived"
)

// Categories lists every category in directory-scan order.
var Categories = []Category{
	CategoryTrustedSources,
	CategoryThinking,
	CategoryTechNotes,
	CategorySkillsDerived,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// Confidence rates how much a knowledge item can be trusted.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Valid reports whether c is low, medium or high.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// OrDefault returns c, or medium when c is not a known value.
func (c Confidence) OrDefault() Confidence {
	if c.Valid() {
		return c
	}
	return ConfidenceMedium
}

// KnowledgeItem is the metadata of a durable, categorized note.
type KnowledgeItem struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Date             time.Time  `json:"date"`
	Category         Category   `json:"category"`
	Tags             []string   `json:"tags"`
	SourceSessions   []string   `json:"source_sessions"`
	ModelSources     []string   `json:"model_sources"`
	Confidence       Confidence `json:"confidence"`
	GeneratedBySkill string     `json:"generated_by_skill,omitempty"`
	Summary          string     `json:"summary,omitempty"`
}

// KnowledgeDocument is a knowledge item together with its file body and
// location. It is the plain record handed from the store to the index.
type KnowledgeDocument struct {
	Item     KnowledgeItem `json:"item"`
	Body     string        `json:"content"`
	Path     string        `json:"path"`
	Checksum string        `json:"checksum"`
}

// KnowledgeSummary is the lightweight record returned by store listings.
type KnowledgeSummary struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Date       time.Time  `json:"date"`
	Category   Category   `json:"category"`
	Tags       []string   `json:"tags"`
	Summary    string     `json:"summary"`
	Confidence Confidence `json:"confidence"`
}

// Summarize reduces an item to its listing form.
func (k KnowledgeItem) Summarize() KnowledgeSummary {
	return KnowledgeSummary{
		ID:         k.ID,
		Title:      k.Title,
		Date:       k.Date,
		Category:   k.Category,
		Tags:       k.Tags,
		Summary:    k.Summary,
		Confidence: k.Confidence,
	}
}

// KnowledgeCandidate is a proposed knowledge item extracted from a session
// by the summarizer. It becomes a KnowledgeItem when promoted.
type KnowledgeCandidate struct {
	Type       Category   `json:"type"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Tags       []string   `json:"tags"`
	Confidence Confidence `json:"confidence"`
}

// Stats holds aggregate counts from the index.
type Stats struct {
	KnowledgeItems int            `json:"knowledge_items"`
	Sessions       int            `json:"sessions"`
	ByCategory     map[string]int `json:"by_category"`
}
