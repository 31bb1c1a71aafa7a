package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/ctxvault/internal/models"
)

// timeLayout is fixed-width so that text ordering equals chronological
// ordering. Times are stored in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// KnowledgeHit is one filter-search result.
type KnowledgeHit struct {
	ID               string            `json:"id"`
	Path             string            `json:"path"`
	Title            string            `json:"title"`
	Date             time.Time         `json:"date"`
	Category         models.Category   `json:"category"`
	Tags             []string          `json:"tags"`
	Summary          string            `json:"summary"`
	Confidence       models.Confidence `json:"confidence"`
	GeneratedBySkill string            `json:"generated_by_skill,omitempty"`
}

// FTSHit is one full-text search result.
type FTSHit struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// FilterQuery selects knowledge items by substring and category.
type FilterQuery struct {
	// Query matches anywhere in the title or summary, ASCII case-insensitive.
	// Empty matches everything.
	Query    string
	Category models.Category
	Limit    int
}

// UpsertKnowledgeItem inserts or replaces an item row and its FTS entry
// within a transaction. A second upsert of the same ID overwrites the first.
func (db *DB) UpsertKnowledgeItem(ctx context.Context, doc models.KnowledgeDocument) error {
	it := doc.Item
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO knowledge_items (id, path, title, date, category, tags, summary, confidence,
			generated_by_skill, model_sources, source_sessions, checksum, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path               = excluded.path,
			title              = excluded.title,
			date               = excluded.date,
			category           = excluded.category,
			tags               = excluded.tags,
			summary            = excluded.summary,
			confidence         = excluded.confidence,
			generated_by_skill = excluded.generated_by_skill,
			model_sources      = excluded.model_sources,
			source_sessions    = excluded.source_sessions,
			checksum           = excluded.checksum,
			body               = excluded.body
	`, it.ID, doc.Path, it.Title, formatTime(it.Date), string(it.Category), jsonList(it.Tags),
		it.Summary, string(it.Confidence.OrDefault()), it.GeneratedBySkill,
		jsonList(it.ModelSources), jsonList(it.SourceSessions), doc.Checksum, doc.Body)
	if err != nil {
		return fmt.Errorf("index: upsert knowledge item: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(ctx, tx, it.ID, it.Title, it.Summary, doc.Body); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteKnowledgeItem removes an item row and its FTS entry.
func (db *DB) DeleteKnowledgeItem(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete knowledge item: %w", err)
	}
	return tx.Commit()
}

// UpsertSession inserts or replaces a session row.
func (db *DB) UpsertSession(ctx context.Context, s *models.Session) error {
	summaries, err := json.Marshal(s.Summaries)
	if err != nil {
		return fmt.Errorf("index: encode summaries: %w", err)
	}
	entry := s.EntryPoint
	if entry == "" {
		entry = models.EntryPointCLI
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO sessions (session_id, created_at, model_source, model_variant, entry_point,
			project, tags, summaries, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			created_at    = excluded.created_at,
			model_source  = excluded.model_source,
			model_variant = excluded.model_variant,
			entry_point   = excluded.entry_point,
			project       = excluded.project,
			tags          = excluded.tags,
			summaries     = excluded.summaries,
			message_count = excluded.message_count
	`, s.SessionID, formatTime(s.CreatedAt), s.ModelSource, s.ModelVariant, entry,
		s.Project, jsonList(s.Tags), string(summaries), len(s.Messages))
	if err != nil {
		return fmt.Errorf("index: upsert session: %w", err)
	}
	return nil
}

// DeleteSession removes a session row.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("index: delete session: %w", err)
	}
	return nil
}

// FilterSearch returns items whose title or summary contains q.Query,
// optionally restricted to one category, newest first.
func (db *DB) FilterSearch(ctx context.Context, q FilterQuery) ([]KnowledgeHit, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	var (
		where []string
		args  []any
	)
	if q.Query != "" {
		like := "%" + escapeLike(q.Query) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR summary LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	if q.Category != "" {
		where = append(where, `category = ?`)
		args = append(args, string(q.Category))
	}

	query := `SELECT id, path, title, date, category, tags, summary, confidence, generated_by_skill
		FROM knowledge_items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: filter search: %w", err)
	}
	defer rows.Close()

	out := []KnowledgeHit{}
	for rows.Next() {
		var (
			h              KnowledgeHit
			date, tags     string
			category, conf string
		)
		if err := rows.Scan(&h.ID, &h.Path, &h.Title, &date, &category, &tags, &h.Summary, &conf, &h.GeneratedBySkill); err != nil {
			return nil, err
		}
		h.Date = parseTime(date)
		h.Category = models.Category(category)
		h.Confidence = models.Confidence(conf)
		h.Tags = parseList(tags)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListSessions returns indexed sessions newest first, optionally restricted
// to one model source.
func (db *DB) ListSessions(ctx context.Context, limit int, modelSource string) ([]models.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := `SELECT session_id, created_at, model_source, project, tags FROM sessions`
	var args []any
	if modelSource != "" {
		query += ` WHERE model_source = ?`
		args = append(args, modelSource)
	}
	query += ` ORDER BY created_at DESC, session_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list sessions: %w", err)
	}
	defer rows.Close()

	out := []models.SessionSummary{}
	for rows.Next() {
		var (
			s               models.SessionSummary
			createdAt, tags string
		)
		if err := rows.Scan(&s.SessionID, &createdAt, &s.ModelSource, &s.Project, &tags); err != nil {
			return nil, err
		}
		s.CreatedAt = parseTime(createdAt)
		s.Tags = parseList(tags)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Stats returns item and session counts plus per-category item counts.
func (db *DB) Stats(ctx context.Context) (models.Stats, error) {
	st := models.Stats{ByCategory: map[string]int{}}
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM knowledge_items`).Scan(&st.KnowledgeItems); err != nil {
		return st, fmt.Errorf("index: stats: %w", err)
	}
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM sessions`).Scan(&st.Sessions); err != nil {
		return st, fmt.Errorf("index: stats: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT category, count(*) FROM knowledge_items GROUP BY category`)
	if err != nil {
		return st, fmt.Errorf("index: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cat string
			n   int
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return st, err
		}
		st.ByCategory[cat] = n
	}
	return st, rows.Err()
}

// KnowledgeChecksum returns the stored checksum for one item, or "" if the
// item is not indexed.
func (db *DB) KnowledgeChecksum(ctx context.Context, id string) (string, error) {
	var cs string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM knowledge_items WHERE id = ?`, id).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// KnowledgeChecksums returns id -> file checksum for every indexed item.
func (db *DB) KnowledgeChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, checksum FROM knowledge_items`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// SessionIDs returns every indexed session ID.
func (db *DB) SessionIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT session_id FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("index: session ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.Local()
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func parseList(s string) []string {
	out := []string{}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// escapeLike makes % and _ in user input match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

