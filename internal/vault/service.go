// Package vault is the single entry point for reading and mutating the
// knowledge and session stores. Every mutation writes the authoritative file
// first and then updates the derived index; an index failure is reported
// but never rolls the file back.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"

	"github.com/starford/ctxvault/internal/apperr"
	"github.com/starford/ctxvault/internal/index"
	"github.com/starford/ctxvault/internal/knowledge"
	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/session"
	"github.com/starford/ctxvault/internal/skills"
	"github.com/starford/ctxvault/internal/sse"
)

// Notifier receives record change notifications. *sse.Broker satisfies it.
type Notifier interface {
	PublishRecordEvent(record, kind, id string)
}

// Service coordinates the file stores and the index.
type Service struct {
	knowledge *knowledge.Store
	sessions  *session.Store
	index     index.Index
	skills    *skills.Registry
	notifier  Notifier
	limit     int
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNotifier registers a receiver for record change events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithSkills attaches the skill registry used for skill lookups and for
// checking generated_by_skill attributions.
func WithSkills(r *skills.Registry) Option {
	return func(s *Service) { s.skills = r }
}

// WithSearchLimit sets the result cap applied when a search request does
// not carry its own limit.
func WithSearchLimit(n int) Option {
	return func(s *Service) { s.limit = n }
}

// New creates a Service over the given stores and index.
func New(ks *knowledge.Store, ss *session.Store, idx index.Index, opts ...Option) *Service {
	s := &Service{
		knowledge: ks,
		sessions:  ss,
		index:     idx,
		limit:     index.DefaultLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateKnowledge writes a new knowledge item and indexes it. When only the
// index step fails, the created document is returned together with an error
// wrapping apperr.ErrIndex.
func (s *Service) CreateKnowledge(ctx context.Context, p knowledge.CreateParams) (*models.KnowledgeDocument, error) {
	if p.GeneratedBySkill != "" && s.skills != nil && !s.skills.Exists(p.GeneratedBySkill) {
		s.logger.Warn("vault: unknown skill attribution",
			slog.String("skill", p.GeneratedBySkill), slog.String("title", p.Title))
	}

	doc, err := s.knowledge.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger.Info("vault: knowledge created",
		slog.String("id", doc.Item.ID), slog.String("path", doc.Path))
	s.notify(sse.RecordKnowledge, sse.KindCreated, doc.Item.ID)

	if err := s.index.UpsertKnowledgeItem(ctx, *doc); err != nil {
		return doc, s.indexFailed("knowledge", doc.Item.ID, err)
	}
	return doc, nil
}

// SaveSession writes a session record and transcript and indexes the
// session. It returns the path of the JSON record; index failures are
// reported as in CreateKnowledge.
func (s *Service) SaveSession(ctx context.Context, sess *models.Session) (string, error) {
	kind := sse.KindCreated
	if sess != nil {
		if prev, err := s.sessions.Load(ctx, sess.SessionID); err == nil && prev != nil {
			kind = sse.KindUpdated
		}
	}

	path, err := s.sessions.Save(ctx, sess)
	if err != nil {
		return "", err
	}
	s.logger.Info("vault: session saved",
		slog.String("id", sess.SessionID), slog.String("path", path))
	s.notify(sse.RecordSession, kind, sess.SessionID)

	if err := s.index.UpsertSession(ctx, sess); err != nil {
		return path, s.indexFailed("session", sess.SessionID, err)
	}
	return path, nil
}

// GetKnowledge reads one item from its file.
func (s *Service) GetKnowledge(ctx context.Context, id string) (*models.KnowledgeDocument, error) {
	doc, err := s.knowledge.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, goerr.Wrap(apperr.ErrNotFound, "knowledge item", goerr.V("id", id))
	}
	return doc, nil
}

// GetSession reads one session from its JSON record.
func (s *Service) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, goerr.Wrap(apperr.ErrNotFound, "session", goerr.V("id", id))
	}
	return sess, nil
}

// ListKnowledge lists items from the file store, newest first.
func (s *Service) ListKnowledge(ctx context.Context, category *models.Category, limit int) ([]models.KnowledgeSummary, error) {
	return s.knowledge.List(ctx, category, limit)
}

// ListSessions lists sessions from the file store, newest first.
func (s *Service) ListSessions(ctx context.Context, limit int, modelSource string) ([]models.SessionSummary, error) {
	return s.sessions.List(ctx, limit, modelSource)
}

// ListIndexedSessions lists sessions from the index, newest first.
func (s *Service) ListIndexedSessions(ctx context.Context, limit int, modelSource string) ([]models.SessionSummary, error) {
	return s.index.ListSessions(ctx, limit, modelSource)
}

// Search runs a substring filter search over titles and summaries.
func (s *Service) Search(ctx context.Context, q index.FilterQuery) ([]index.KnowledgeHit, error) {
	if q.Category != "" && !q.Category.Valid() {
		return nil, goerr.Wrap(apperr.ErrValidation, "unknown category", goerr.V("category", q.Category))
	}
	if q.Limit <= 0 {
		q.Limit = s.limit
	}
	return s.index.FilterSearch(ctx, q)
}

// SearchFullText runs a ranked full-text search.
func (s *Service) SearchFullText(ctx context.Context, query string, limit int) ([]index.FTSHit, error) {
	if query == "" {
		return []index.FTSHit{}, nil
	}
	if limit <= 0 {
		limit = s.limit
	}
	return s.index.FullTextSearch(ctx, query, limit)
}

// Stats returns index aggregate counts.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	return s.index.Stats(ctx)
}

// PromoteCandidate turns the idx-th knowledge candidate of a session into a
// knowledge item attributed to that session. category overrides the
// candidate's own type when non-nil.
func (s *Service) PromoteCandidate(ctx context.Context, sessionID string, idx int, category *models.Category) (*models.KnowledgeDocument, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cands := sess.Summaries.KnowledgeCandidates
	if idx < 0 || idx >= len(cands) {
		return nil, goerr.Wrap(apperr.ErrNotFound, "knowledge candidate",
			goerr.V("session_id", sessionID), goerr.V("index", idx))
	}
	c := cands[idx]

	cat := c.Type
	if category != nil {
		cat = *category
	}
	var sources []string
	if sess.ModelSource != "" {
		sources = []string{sess.ModelSource}
	}
	return s.CreateKnowledge(ctx, knowledge.CreateParams{
		Title:          c.Title,
		Content:        c.Content,
		Category:       cat,
		SourceSessions: []string{sess.SessionID},
		ModelSources:   sources,
		Tags:           c.Tags,
		Confidence:     c.Confidence,
	})
}

// ListSkills returns every skill in the registry.
func (s *Service) ListSkills(ctx context.Context) ([]models.Skill, error) {
	if s.skills == nil {
		return []models.Skill{}, nil
	}
	return s.skills.List(ctx)
}

// GetSkill loads one skill.
func (s *Service) GetSkill(ctx context.Context, id string) (*models.Skill, error) {
	if s.skills == nil {
		return nil, goerr.Wrap(apperr.ErrNotFound, "skill", goerr.V("id", id))
	}
	sk, err := s.skills.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sk == nil {
		return nil, goerr.Wrap(apperr.ErrNotFound, "skill", goerr.V("id", id))
	}
	return sk, nil
}

// ValidateSkill checks a skill directory's files.
func (s *Service) ValidateSkill(ctx context.Context, id string) (models.SkillValidation, error) {
	if s.skills == nil {
		return models.SkillValidation{}, goerr.Wrap(apperr.ErrNotFound, "skill", goerr.V("id", id))
	}
	return s.skills.Validate(ctx, id)
}

// CreateSkill scaffolds a new skill directory.
func (s *Service) CreateSkill(ctx context.Context, p skills.CreateParams) (*models.Skill, error) {
	if s.skills == nil {
		return nil, goerr.Wrap(apperr.ErrValidation, "no skills directory configured")
	}
	sk, err := s.skills.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger.Info("vault: skill created", slog.String("id", sk.SkillID))
	return sk, nil
}

// Ready reports whether the index is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.index.Ping(ctx)
}

// KnowledgeRoot returns the absolute knowledge directory.
func (s *Service) KnowledgeRoot() string { return s.knowledge.Root() }

// SessionsRoot returns the absolute sessions directory.
func (s *Service) SessionsRoot() string { return s.sessions.Root() }

func (s *Service) indexFailed(record, id string, err error) error {
	s.logger.Warn("vault: index update failed, run reindex to repair",
		slog.String("record", record), slog.String("id", id), slog.String("error", err.Error()))
	return fmt.Errorf("%w: %w", apperr.ErrIndex, err)
}

func (s *Service) notify(record, kind, id string) {
	if s.notifier != nil {
		s.notifier.PublishRecordEvent(record, kind, id)
	}
}

// IsIndexError reports whether err is an index-only failure, in which case
// the file write it accompanies succeeded.
func IsIndexError(err error) bool {
	return errors.Is(err, apperr.ErrIndex)
}
