package vault

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ctxvault/internal/sse"
)

const (
	knowledgeExt = ".md"
	sessionExt   = ".json"

	reconcileDelay = 200 * time.Millisecond
)

// Watch starts an fsnotify watcher on both data trees and re-indexes files
// changed by external editors until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger an incremental reindex that removes stale
// index entries whose files no longer exist on disk.
func (s *Service) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	roots := []string{s.knowledge.Root(), s.sessions.Root()}
	for _, root := range roots {
		if err := addDirsRecursive(w, root); err != nil {
			return err
		}
	}
	s.logger.Info("watcher: started",
		slog.String("knowledge", roots[0]), slog.String("sessions", roots[1]))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if _, err := s.Reindex(ctx, ReindexOptions{}); err != nil {
				s.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			// New directories (a new year or day) join the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						s.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						s.logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					s.indexNewDir(ctx, absPath)
					continue
				}
			}

			if strings.HasPrefix(filepath.Base(absPath), ".") {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				s.indexChanged(ctx, absPath)

			case ev.Op&fsnotify.Remove != 0:
				s.removeMissing(ctx, absPath)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new
				// path arrives as a separate Create event if it stays
				// inside a watched dir; the reconcile pass catches the rest.
				s.removeMissing(ctx, absPath)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// indexChanged re-reads one changed record file and upserts it.
func (s *Service) indexChanged(ctx context.Context, absPath string) {
	if rel, ok := relTo(s.knowledge.Root(), absPath, knowledgeExt); ok {
		doc, err := s.knowledge.LoadPath(rel)
		if err != nil {
			s.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		prev, err := s.index.KnowledgeChecksum(ctx, doc.Item.ID)
		if err == nil && prev == doc.Checksum {
			return
		}
		if err := s.index.UpsertKnowledgeItem(ctx, *doc); err != nil {
			s.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		kind := sse.KindUpdated
		if prev == "" {
			kind = sse.KindCreated
		}
		s.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
		s.notify(sse.RecordKnowledge, kind, doc.Item.ID)
		return
	}

	if rel, ok := relTo(s.sessions.Root(), absPath, sessionExt); ok {
		sess, err := s.sessions.LoadPath(rel)
		if err != nil {
			s.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		if err := s.index.UpsertSession(ctx, sess); err != nil {
			s.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("watcher: indexed", slog.String("path", rel))
		s.notify(sse.RecordSession, sse.KindUpdated, sess.SessionID)
	}
}

// removeMissing drops the index row for a record file that no longer exists.
func (s *Service) removeMissing(ctx context.Context, absPath string) {
	if _, err := os.Stat(absPath); err == nil {
		return
	}
	if rel, ok := relTo(s.knowledge.Root(), absPath, knowledgeExt); ok {
		id := strings.TrimSuffix(filepath.Base(rel), knowledgeExt)
		if err := s.index.DeleteKnowledgeItem(ctx, id); err != nil {
			s.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("watcher: deleted", slog.String("path", rel))
		s.notify(sse.RecordKnowledge, sse.KindDeleted, id)
		return
	}
	if rel, ok := relTo(s.sessions.Root(), absPath, sessionExt); ok {
		id := strings.TrimSuffix(filepath.Base(rel), sessionExt)
		if err := s.index.DeleteSession(ctx, id); err != nil {
			s.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("watcher: deleted", slog.String("path", rel))
		s.notify(sse.RecordSession, sse.KindDeleted, id)
	}
}

// indexNewDir indexes record files already present in a newly created
// directory. A walk error stops the walk; the remaining files are picked up
// by the next reindex.
func (s *Service) indexNewDir(ctx context.Context, dirPath string) {
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() {
			s.indexChanged(ctx, path)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("watcher: walk new dir failed", slog.String("path", dirPath), slog.String("error", err.Error()))
	}
}

// relTo returns absPath relative to root, slash separated, when absPath is
// inside root and has extension ext.
func relTo(root, absPath, ext string) (string, bool) {
	if !strings.HasSuffix(absPath, ext) {
		return "", false
	}
	rel, err := filepath.Rel(root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
