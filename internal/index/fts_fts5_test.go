//go:build sqlite_fts5

package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/ctxvault/internal/apperr"
	"github.com/starford/ctxvault/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM knowledge_fts`).Scan(&count); err != nil {
		t.Fatalf("knowledge_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	d := doc("fts", models.CategoryTechNotes, "FTS Note", "", "The vault provides powerful full-text search capabilities.", time.Now())
	if err := db.UpsertKnowledgeItem(ctx, d); err != nil {
		t.Fatalf("UpsertKnowledgeItem: %v", err)
	}

	results, err := db.FullTextSearch(ctx, "powerful", 10)
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "fts" {
		t.Errorf("id = %q", results[0].ID)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_QueryGrammar(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.UpsertKnowledgeItem(ctx, doc("a", models.CategoryTechNotes, "Retry Backoff", "", "exponential retry with jitter", time.Now()))
	_ = db.UpsertKnowledgeItem(ctx, doc("b", models.CategoryTechNotes, "Caching", "", "exponential decay of entries", time.Now()))

	cases := map[string]int{
		"exponential":            2,
		"exponential retry":      1,
		`"retry with"`:           1,
		"exponential NOT jitter": 1,
		"jit*":                   1,
		"title:caching":          1,
		"retry OR decay":         2,
	}
	for q, want := range cases {
		hits, err := db.FullTextSearch(ctx, q, 10)
		if err != nil {
			t.Fatalf("FullTextSearch(%q): %v", q, err)
		}
		if len(hits) != want {
			t.Errorf("FullTextSearch(%q) = %d hits, want %d", q, len(hits), want)
		}
	}
}

func TestFTS5_ResetClearsIndex(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.UpsertKnowledgeItem(ctx, doc("r", models.CategoryThinking, "reset me", "", "ephemeral", time.Now()))
	if err := db.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	results, _ := db.FullTextSearch(ctx, "ephemeral", 10)
	if len(results) != 0 {
		t.Errorf("reset left FTS rows: %+v", results)
	}
}

func TestFTS5_MalformedQueryIsValidationError(t *testing.T) {
	db := testDB(t)
	for _, q := range []string{`"unterminated`, "AND", "nosuchcol:term"} {
		_, err := db.FullTextSearch(context.Background(), q, 10)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("FullTextSearch(%q) err = %v, want ErrValidation", q, err)
		}
	}
}
