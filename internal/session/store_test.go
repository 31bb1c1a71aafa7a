package session_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/starford/ctxvault/internal/apperr"
	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/session"
)

func newStore(t *testing.T) (*session.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := session.NewStore(dir)
	gt.NoError(t, err).Required()
	return s, dir
}

func sample(at time.Time, model string, n int) *models.Session {
	msgs := make([]models.Message, n)
	for i := range msgs {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs[i] = models.Message{
			Role:      role,
			Content:   fmt.Sprintf("message %d: \"quoted\" & <tagged>", i),
			Timestamp: at.Add(time.Duration(i) * time.Second),
		}
	}
	return &models.Session{
		SessionID:   session.NewID(at, model),
		CreatedAt:   at,
		ModelSource: model,
		Tags:        []string{"go"},
		Messages:    msgs,
	}
}

func TestSaveLoad_PreservesMessageOrder(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)
	in := sample(at, "claude", 7)
	in.Messages[3].Role = models.RoleSystem
	in.Summaries.KnowledgeCandidates = []models.KnowledgeCandidate{
		{Type: models.CategoryTechNotes, Title: "Retry", Content: "backoff", Confidence: models.ConfidenceHigh},
	}

	path, err := s.Save(ctx, in)
	gt.NoError(t, err).Required()
	gt.Value(t, path).Equal(filepath.Join(dir, "2025-01-15", "2025-01-15T10-00-00-claude.json"))

	got, err := s.Load(ctx, in.SessionID)
	gt.NoError(t, err).Required()
	gt.Value(t, got).NotNil()
	gt.Array(t, got.Messages).Length(7)
	for i, m := range got.Messages {
		gt.Value(t, m.Role).Equal(in.Messages[i].Role)
		gt.Value(t, m.Content).Equal(in.Messages[i].Content)
		gt.Bool(t, m.Timestamp.Equal(in.Messages[i].Timestamp)).True()
	}
	gt.Value(t, got.EntryPoint).Equal(models.EntryPointCLI)
	gt.Array(t, got.Summaries.KnowledgeCandidates).Length(1)
	gt.Value(t, got.Summaries.KnowledgeCandidates[0].Title).Equal("Retry")
}

func TestSave_WritesTranscript(t *testing.T) {
	s, dir := newStore(t)
	at := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)
	in := sample(at, "gemini", 2)
	in.Project = "vault"
	in.Tags = []string{"a", "b"}
	in.Messages = append([]models.Message{{Role: models.RoleSystem, Content: "recording started", Timestamp: at}}, in.Messages...)

	_, err := s.Save(context.Background(), in)
	gt.NoError(t, err).Required()

	raw, err := os.ReadFile(filepath.Join(dir, "2025-02-01", in.SessionID+".md"))
	gt.NoError(t, err).Required()
	text := string(raw)

	gt.Bool(t, strings.HasPrefix(text, "# Session: 2025-02-01T09-30-00-gemini\n\n**Model:** gemini\n**Date:** 2025-02-01T09:30:00Z\n**Project:** vault\n**Tags:** a, b\n\n---\n\n## Conversation\n\n")).True()
	gt.String(t, text).Contains("### 👤 USER\n_2025-02-01T09:30:00Z_\n\nmessage 0")
	gt.String(t, text).Contains("### 🤖 ASSISTANT\n_2025-02-01T09:30:01Z_\n\nmessage 1")
	gt.Bool(t, strings.Contains(text, "recording started")).False()
}

func TestSave_RejectsBadID(t *testing.T) {
	s, _ := newStore(t)
	cases := []string{"", "short", "not-a-date-claude", "2025-01-15/../../x"}
	for _, id := range cases {
		_, err := s.Save(context.Background(), &models.Session{SessionID: id, ModelSource: "claude"})
		gt.Error(t, err).Is(apperr.ErrValidation)
	}
}

func TestSave_ValidationErrorCarriesReason(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Save(context.Background(), &models.Session{SessionID: "2025-01-15T10-00-00-claude"})
	gt.Error(t, err).Is(apperr.ErrValidation)
	gt.String(t, err.Error()).Contains("model_source: cannot be blank")
	gt.Value(t, goerr.Values(err)["session_id"]).Equal(any("2025-01-15T10-00-00-claude"))
}

func TestSave_SameIDFromTwoStoresLastWins(t *testing.T) {
	first, dir := newStore(t)
	second, err := session.NewStore(dir)
	gt.NoError(t, err).Required()

	at := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)
	a := sample(at, "claude", 2)
	b := sample(at, "claude", 4)
	b.Project = "other"

	_, err = first.Save(context.Background(), a)
	gt.NoError(t, err).Required()
	_, err = second.Save(context.Background(), b)
	gt.NoError(t, err).Required()

	got, err := first.Load(context.Background(), a.SessionID)
	gt.NoError(t, err).Required()
	gt.Value(t, got.Project).Equal("other")
	gt.Array(t, got.Messages).Length(4)
}

func TestLoad_Missing(t *testing.T) {
	s, _ := newStore(t)
	got, err := s.Load(context.Background(), "2025-01-01T00-00-00-claude")
	gt.NoError(t, err).Required()
	gt.Value(t, got).Nil()

	got, err = s.Load(context.Background(), "bad")
	gt.NoError(t, err).Required()
	gt.Value(t, got).Nil()
}

func TestLoad_ZonelessTimestamps(t *testing.T) {
	s, dir := newStore(t)
	id := "2024-11-03T08-15-00-codex"
	record := `{
  "session_id": "` + id + `",
  "created_at": "2024-11-03T08:15:00.123456",
  "model_source": "codex",
  "model_variant": null,
  "entry_point": "import",
  "project": null,
  "tags": [],
  "messages": [{"role": "user", "content": "hi", "timestamp": "2024-11-03T08:15:01"}],
  "summaries": {"short": null, "detailed": null, "action_items": [], "knowledge_candidates": []}
}`
	gt.NoError(t, os.MkdirAll(filepath.Join(dir, "2024-11-03"), 0o755)).Required()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "2024-11-03", id+".json"), []byte(record), 0o644)).Required()

	got, err := s.Load(context.Background(), id)
	gt.NoError(t, err).Required()
	gt.Value(t, got).NotNil()
	gt.Value(t, got.CreatedAt.Hour()).Equal(8)
	gt.Value(t, got.Messages[0].Timestamp.Second()).Equal(1)
	gt.Value(t, got.EntryPoint).Equal(models.EntryPointImport)
}

func TestList_LimitFilterOrder(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 30, 23, 0, 0, 0, time.Local)

	sources := []string{"claude", "gemini"}
	for i := 0; i < 6; i++ {
		in := sample(base.Add(time.Duration(i)*90*time.Minute), sources[i%2], 1)
		_, err := s.Save(ctx, in)
		gt.NoError(t, err).Required()
	}
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "2025-01-31", "2025-01-31T23-59-59-broken.json"), []byte("{not json"), 0o644)).Required()

	all, err := s.List(ctx, 10, "")
	gt.NoError(t, err).Required()
	gt.Array(t, all).Length(6)
	for i := 1; i < len(all); i++ {
		gt.Bool(t, all[i-1].CreatedAt.After(all[i].CreatedAt)).True()
	}

	limited, err := s.List(ctx, 2, "")
	gt.NoError(t, err).Required()
	gt.Array(t, limited).Length(2)

	claude, err := s.List(ctx, 10, "claude")
	gt.NoError(t, err).Required()
	gt.Array(t, claude).Length(3)
	for _, sum := range claude {
		gt.Value(t, sum.ModelSource).Equal("claude")
	}
}

func TestWalk_StopsOnError(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Save(ctx, sample(time.Date(2025, 5, i+1, 0, 0, 0, 0, time.Local), "claude", 1))
		gt.NoError(t, err).Required()
	}

	stop := fmt.Errorf("stop")
	visited := 0
	err := s.Walk(ctx, func(*models.Session) error {
		visited++
		return stop
	})
	gt.Error(t, err).Is(stop)
	gt.Value(t, visited).Equal(1)
}

func TestParseID(t *testing.T) {
	at, model, err := session.ParseID("2025-01-15T10-00-00-claude-code")
	gt.NoError(t, err).Required()
	gt.Value(t, model).Equal("claude-code")
	gt.Value(t, at.Format("2006-01-02 15:04:05")).Equal("2025-01-15 10:00:00")

	_, _, err = session.ParseID("2025-01-15-claude")
	gt.Error(t, err).Is(apperr.ErrValidation)
}
