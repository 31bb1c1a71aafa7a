// Package session persists recorded conversations as
// {root}/{YYYY-MM-DD}/{session_id}.json plus a sibling Markdown transcript.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/storage"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

const (
	recordExt     = ".json"
	transcriptExt = ".md"
)

// Store reads and writes session records.
type Store struct {
	fs     storage.Provider
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report skipped files.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore opens the sessions tree rooted at dir.
func NewStore(dir string, opts ...Option) (*Store, error) {
	fs, err := storage.NewFS(dir)
	if err != nil {
		return nil, err
	}
	return New(fs, opts...), nil
}

// New builds a Store over an existing provider.
func New(fs storage.Provider, opts ...Option) *Store {
	s := &Store{fs: fs, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the absolute sessions directory.
func (s *Store) Root() string { return s.fs.Root() }

// Save writes the JSON record and the transcript, replacing any previous
// files for the same ID. It returns the absolute path of the JSON record.
// The session is normalised in place: an empty entry point becomes "cli" and
// nil lists become empty.
//
// Writes are atomic per file but not coordinated across processes. Two
// writers saving the same ID race and the last rename wins, silently
// replacing the other's record and transcript.
func (s *Store) Save(ctx context.Context, sess *models.Session) (string, error) {
	if sess != nil && sess.EntryPoint == "" {
		sess.EntryPoint = models.EntryPointCLI
	}
	if err := Validate(sess); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalise(sess)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sess); err != nil {
		return "", fmt.Errorf("session: encode %s: %w", sess.SessionID, err)
	}

	base := dayDir(sess.SessionID) + "/" + sess.SessionID
	if err := s.fs.Write(base+recordExt, buf.Bytes()); err != nil {
		return "", fmt.Errorf("session: save %s: %w", sess.SessionID, err)
	}
	if err := s.fs.Write(base+transcriptExt, []byte(Transcript(sess))); err != nil {
		return "", fmt.Errorf("session: save transcript %s: %w", sess.SessionID, err)
	}
	return s.fs.Abs(base + recordExt)
}

// Load reads a session by ID. It returns (nil, nil) when no record exists.
func (s *Store) Load(ctx context.Context, id string) (*models.Session, error) {
	if validateID(id) != nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := dayDir(id) + "/" + id + recordExt
	ok, err := s.fs.Exists(rel)
	if err != nil || !ok {
		return nil, err
	}
	return s.LoadPath(rel)
}

// LoadPath decodes the record at rel (relative to the sessions root).
func (s *Store) LoadPath(rel string) (*models.Session, error) {
	data, err := s.fs.Read(rel)
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, goerr.Wrap(err, "decode session record", goerr.V("path", rel))
	}
	normalise(&sess)
	return &sess, nil
}

// List returns up to limit sessions, newest first, optionally restricted to
// one model source. Records that fail to decode are skipped.
func (s *Store) List(ctx context.Context, limit int, modelSource string) ([]models.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	out := []models.SessionSummary{}
	err := s.scan(ctx, func(sess *models.Session) bool {
		if modelSource != "" && sess.ModelSource != modelSource {
			return true
		}
		out = append(out, sess.Summarize())
		return len(out) < limit
	})
	return out, err
}

// Walk calls fn for every decodable session, newest first. Returning an
// error from fn stops the walk.
func (s *Store) Walk(ctx context.Context, fn func(*models.Session) error) error {
	var fnErr error
	err := s.scan(ctx, func(sess *models.Session) bool {
		fnErr = fn(sess)
		return fnErr == nil
	})
	if err != nil {
		return err
	}
	return fnErr
}

func (s *Store) scan(ctx context.Context, visit func(*models.Session) bool) error {
	days, err := s.fs.ReadDir("")
	if err != nil {
		return err
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Name() > days[j].Name() })

	for _, day := range days {
		if !day.IsDir() || strings.HasPrefix(day.Name(), ".") {
			continue
		}
		entries, err := s.fs.ReadDir(day.Name())
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() > entries[j].Name() })

		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel := day.Name() + "/" + e.Name()
			sess, err := s.LoadPath(rel)
			if err != nil {
				s.logger.Debug("session: skip undecodable record",
					slog.String("path", rel), slog.String("error", err.Error()))
				continue
			}
			if !visit(sess) {
				return nil
			}
		}
	}
	return nil
}

func normalise(s *models.Session) {
	if s.Tags == nil {
		s.Tags = []string{}
	}
	if s.Messages == nil {
		s.Messages = []models.Message{}
	}
	if s.Summaries.ActionItems == nil {
		s.Summaries.ActionItems = []string{}
	}
	if s.Summaries.KnowledgeCandidates == nil {
		s.Summaries.KnowledgeCandidates = []models.KnowledgeCandidate{}
	}
	for i := range s.Summaries.KnowledgeCandidates {
		if s.Summaries.KnowledgeCandidates[i].Tags == nil {
			s.Summaries.KnowledgeCandidates[i].Tags = []string{}
		}
	}
}
