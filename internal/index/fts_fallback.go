//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE over knowledge_items.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _, _, _, _ string) error {
	// Body is already stored in the knowledge_items table; nothing extra to do.
	return nil
}

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) error { return nil }

func ftsReset(_ context.Context, _ *sql.Tx) error { return nil }

// FullTextSearch performs a LIKE-based search (fallback when FTS5 is not
// compiled in). The whole query is matched as one substring of the id,
// title, summary or body; results are newest first.
func (db *DB) FullTextSearch(ctx context.Context, query string, limit int) ([]FTSHit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, summary, substr(body, 1, 200)
		FROM knowledge_items
		WHERE id LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\'
		   OR summary LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\'
		ORDER BY date DESC
		LIMIT ?
	`, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: full-text search: %w", err)
	}
	defer rows.Close()

	out := []FTSHit{}
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.ID, &h.Title, &h.Summary, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
