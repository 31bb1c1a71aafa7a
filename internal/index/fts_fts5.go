//go:build sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/starford/ctxvault/internal/apperr"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
			id,
			title,
			summary,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, id, title, summary, body string) error {
	if err := ftsDelete(ctx, tx, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO knowledge_fts (id, title, summary, content) VALUES (?, ?, ?, ?)`,
		id, title, summary, body)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

func ftsReset(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_fts`); err != nil {
		return fmt.Errorf("index: reset fts: %w", err)
	}
	return nil
}

// FullTextSearch runs query through FTS5 MATCH unchanged and returns hits in
// rank order with a highlighted snippet. The query uses the FTS5 grammar:
// bare terms are AND-ed, "quoted phrases", OR, NOT, prefix* and column:term.
func (db *DB) FullTextSearch(ctx context.Context, query string, limit int) ([]FTSHit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id,
		       title,
		       summary,
		       snippet(knowledge_fts, -1, '<b>', '</b>', '...', 32),
		       rank
		FROM knowledge_fts
		WHERE knowledge_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		if isQuerySyntaxError(err) {
			return nil, goerr.Wrap(apperr.ErrValidation, "invalid full-text query",
				goerr.V("query", query), goerr.V("cause", err.Error()))
		}
		return nil, fmt.Errorf("index: full-text search: %w", err)
	}
	defer rows.Close()

	out := []FTSHit{}
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.ID, &h.Title, &h.Summary, &h.Snippet, &h.Rank); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// isQuerySyntaxError reports whether SQLite rejected the MATCH expression
// itself rather than failing to run it.
func isQuerySyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "unterminated string")
}
