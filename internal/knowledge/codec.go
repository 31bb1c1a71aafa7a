package knowledge

import (
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/starford/ctxvault/internal/frontmatter"
	"github.com/starford/ctxvault/internal/models"
)

const (
	summaryMaxRunes = 200
	summaryEllipsis = "..."
	fileExt         = ".md"
)

// Header field names, in the order they are written.
const (
	fieldID               = "id"
	fieldTitle            = "title"
	fieldDate             = "date"
	fieldSourceSessions   = "source_sessions"
	fieldModelSources     = "model_sources"
	fieldTags             = "tags"
	fieldCategory         = "category"
	fieldConfidence       = "confidence"
	fieldGeneratedBySkill = "generated_by_skill"
	fieldSummary          = "summary"
)

// Marshal renders an item and its body as a frontmatter document.
func Marshal(item models.KnowledgeItem, body string) []byte {
	md := frontmatter.New()
	md.Set(fieldID, frontmatter.String(item.ID))
	md.Set(fieldTitle, frontmatter.String(item.Title))
	md.Set(fieldDate, frontmatter.String(item.Date.Format(time.RFC3339Nano)))
	md.Set(fieldSourceSessions, frontmatter.List(item.SourceSessions...))
	md.Set(fieldModelSources, frontmatter.List(item.ModelSources...))
	md.Set(fieldTags, frontmatter.List(item.Tags...))
	md.Set(fieldCategory, frontmatter.String(string(item.Category)))
	md.Set(fieldConfidence, frontmatter.String(string(item.Confidence.OrDefault())))
	if item.GeneratedBySkill != "" {
		md.Set(fieldGeneratedBySkill, frontmatter.String(item.GeneratedBySkill))
	}
	return []byte(frontmatter.Encode(md, body))
}

// Unmarshal decodes a knowledge file. rel is the slash-separated path below
// the knowledge root; it supplies fallbacks for a missing id or category.
//
// Unknown confidence values decode as medium rather than failing, so a
// hand-edited file is never lost from listings.
func Unmarshal(rel string, data []byte) (models.KnowledgeItem, string, error) {
	md, body, err := frontmatter.Decode(string(data))
	if err != nil {
		return models.KnowledgeItem{}, "", err
	}

	stem := strings.TrimSuffix(path.Base(rel), fileExt)
	item := models.KnowledgeItem{
		ID:               orDefault(md.String(fieldID), stem),
		Tags:             md.List(fieldTags),
		SourceSessions:   md.List(fieldSourceSessions),
		ModelSources:     md.List(fieldModelSources),
		Confidence:       models.Confidence(md.String(fieldConfidence)).OrDefault(),
		GeneratedBySkill: md.String(fieldGeneratedBySkill),
	}
	item.Title = orDefault(md.String(fieldTitle), item.ID)
	item.Category = decodeCategory(md.String(fieldCategory), rel)
	item.Date = decodeDate(md.String(fieldDate), item.ID, item.Category)

	if s, ok := md.Get(fieldSummary); ok && !s.IsList() {
		item.Summary = s.Scalar()
	} else {
		item.Summary = extractSummary(body)
	}
	return item, body, nil
}

func decodeCategory(raw, rel string) models.Category {
	if c := models.Category(raw); c.Valid() {
		return c
	}
	if dir, _, ok := strings.Cut(rel, "/"); ok {
		if c := models.Category(dir); c.Valid() {
			return c
		}
	}
	return models.CategoryTechNotes
}

// decodeDate parses the date field, falling back to the day encoded in the
// ID and finally to the zero time.
func decodeDate(raw, id string, cat models.Category) time.Time {
	if t, err := models.ParseTime(raw); err == nil && !t.IsZero() {
		return t
	}
	if day, ok := idDate(id, cat); ok {
		return day
	}
	return time.Time{}
}

// extractSummary strips inline markup characters and truncates.
func extractSummary(content string) string {
	text := strings.Map(func(r rune) rune {
		switch r {
		case '#', '*', '`', '[', ']':
			return -1
		}
		return r
	}, content)
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= summaryMaxRunes {
		return text
	}
	return strings.TrimRightFunc(string(runes[:summaryMaxRunes]), unicode.IsSpace) + summaryEllipsis
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
