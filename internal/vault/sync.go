package vault

import (
	"context"
	"log/slog"

	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/sse"
)

// ReindexOptions controls a rebuild of the index from the file stores.
type ReindexOptions struct {
	// Full empties the index first and re-indexes every record. Otherwise
	// knowledge items whose checksum is unchanged are skipped.
	Full bool
}

// ReindexReport summarises a reindex pass.
type ReindexReport struct {
	KnowledgeIndexed int `json:"knowledge_indexed"`
	KnowledgeSkipped int `json:"knowledge_skipped"`
	KnowledgeRemoved int `json:"knowledge_removed"`
	SessionsIndexed  int `json:"sessions_indexed"`
	SessionsRemoved  int `json:"sessions_removed"`
	Failures         int `json:"failures"`
}

// Reindex walks both file stores and brings the index up to date:
//   - new/changed records are upserted
//   - rows whose file is gone are deleted
//
// Per-record failures are logged and counted; only store walk errors and a
// failed reset abort the pass.
func (s *Service) Reindex(ctx context.Context, opts ReindexOptions) (ReindexReport, error) {
	var rep ReindexReport

	if opts.Full {
		if err := s.index.Reset(ctx); err != nil {
			return rep, err
		}
	}

	checksums, err := s.index.KnowledgeChecksums(ctx)
	if err != nil {
		return rep, err
	}
	sessionIDs, err := s.index.SessionIDs(ctx)
	if err != nil {
		return rep, err
	}

	seen := make(map[string]struct{}, len(checksums))
	err = s.knowledge.Walk(ctx, func(doc *models.KnowledgeDocument) error {
		id := doc.Item.ID
		seen[id] = struct{}{}
		if checksums[id] == doc.Checksum {
			rep.KnowledgeSkipped++
			return nil
		}
		if err := s.index.UpsertKnowledgeItem(ctx, *doc); err != nil {
			rep.Failures++
			s.logger.Warn("sync: index failed", slog.String("id", id), slog.String("error", err.Error()))
			return nil
		}
		rep.KnowledgeIndexed++
		s.logger.Debug("sync: indexed", slog.String("id", id))
		return nil
	})
	if err != nil {
		return rep, err
	}

	// Remove stale entries.
	for id := range checksums {
		if _, ok := seen[id]; ok {
			continue
		}
		if err := s.index.DeleteKnowledgeItem(ctx, id); err != nil {
			rep.Failures++
			s.logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		rep.KnowledgeRemoved++
		s.logger.Debug("sync: removed stale", slog.String("id", id))
		s.notify(sse.RecordKnowledge, sse.KindDeleted, id)
	}

	seenSessions := make(map[string]struct{}, len(sessionIDs))
	err = s.sessions.Walk(ctx, func(sess *models.Session) error {
		seenSessions[sess.SessionID] = struct{}{}
		if err := s.index.UpsertSession(ctx, sess); err != nil {
			rep.Failures++
			s.logger.Warn("sync: index session failed", slog.String("id", sess.SessionID), slog.String("error", err.Error()))
			return nil
		}
		rep.SessionsIndexed++
		return nil
	})
	if err != nil {
		return rep, err
	}

	for id := range sessionIDs {
		if _, ok := seenSessions[id]; ok {
			continue
		}
		if err := s.index.DeleteSession(ctx, id); err != nil {
			rep.Failures++
			s.logger.Warn("sync: delete session failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		rep.SessionsRemoved++
		s.notify(sse.RecordSession, sse.KindDeleted, id)
	}

	s.logger.Info("sync: reindex complete",
		slog.Bool("full", opts.Full),
		slog.Int("knowledge_indexed", rep.KnowledgeIndexed),
		slog.Int("knowledge_skipped", rep.KnowledgeSkipped),
		slog.Int("knowledge_removed", rep.KnowledgeRemoved),
		slog.Int("sessions_indexed", rep.SessionsIndexed),
		slog.Int("sessions_removed", rep.SessionsRemoved),
		slog.Int("failures", rep.Failures))
	return rep, nil
}
