// Package knowledge persists knowledge items as frontmatter Markdown files
// laid out as {root}/{category}/{YYYY}/{id}.md.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/m-mizutani/goerr/v2"

	"github.com/starford/ctxvault/internal/apperr"
	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/storage"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// maxIDAttempts bounds suffix regeneration when a generated ID is taken.
const maxIDAttempts = 3

// Store reads and writes knowledge item files.
type Store struct {
	fs     storage.Provider
	now    func() time.Time
	suffix func() string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the creation clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDSuffix overrides the random ID suffix generator.
func WithIDSuffix(fn func() string) Option {
	return func(s *Store) { s.suffix = fn }
}

// WithLogger sets the logger used to report skipped files.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore opens the knowledge tree rooted at dir, creating every category
// directory.
func NewStore(dir string, opts ...Option) (*Store, error) {
	fs, err := storage.NewFS(dir)
	if err != nil {
		return nil, err
	}
	return New(fs, opts...)
}

// New builds a Store over an existing provider.
func New(fs storage.Provider, opts ...Option) (*Store, error) {
	s := &Store{
		fs:     fs,
		now:    time.Now,
		suffix: randomSuffix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, c := range models.Categories {
		if err := fs.MkdirAll(string(c)); err != nil {
			return nil, fmt.Errorf("knowledge: init: %w", err)
		}
	}
	return s, nil
}

// Root returns the absolute knowledge directory.
func (s *Store) Root() string { return s.fs.Root() }

// CreateParams is a request to create a knowledge item.
type CreateParams struct {
	Title            string            `json:"title"`
	Content          string            `json:"content"`
	Category         models.Category   `json:"category"`
	SourceSessions   []string          `json:"source_sessions"`
	ModelSources     []string          `json:"model_sources"`
	Tags             []string          `json:"tags"`
	Confidence       models.Confidence `json:"confidence"`
	GeneratedBySkill string            `json:"generated_by_skill"`
}

// Validate checks the category and confidence against their enumerations.
// An empty confidence is allowed and means medium.
func (p CreateParams) Validate() error {
	categories := make([]any, len(models.Categories))
	for i, c := range models.Categories {
		categories[i] = c
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.Required),
		validation.Field(&p.Category, validation.Required, validation.In(categories...)),
		validation.Field(&p.Confidence, validation.In(
			models.ConfidenceLow, models.ConfidenceMedium, models.ConfidenceHigh)),
	)
}

// Create writes a new knowledge item file. It does not index the item.
//
// The existence check and the write are not atomic across processes. If
// another process writes the same ID in between, the last rename wins and
// the earlier item is silently replaced.
func (s *Store) Create(ctx context.Context, p CreateParams) (*models.KnowledgeDocument, error) {
	if err := p.Validate(); err != nil {
		return nil, goerr.Wrap(apperr.ErrValidation, err.Error(), goerr.V("category", p.Category))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	var id, rel string
	for attempt := 1; ; attempt++ {
		id = NewID(p.Category, now, s.suffix())
		rel = itemPath(p.Category, now, id)
		exists, err := s.fs.Exists(rel)
		if err != nil {
			return nil, fmt.Errorf("knowledge: create: %w", err)
		}
		if !exists {
			break
		}
		if attempt == maxIDAttempts {
			return nil, goerr.Wrap(apperr.ErrAlreadyExists, "knowledge id collision", goerr.V("id", id))
		}
	}

	item := models.KnowledgeItem{
		ID:               id,
		Title:            p.Title,
		Date:             now,
		Category:         p.Category,
		Tags:             nonNil(p.Tags),
		SourceSessions:   nonNil(p.SourceSessions),
		ModelSources:     nonNil(p.ModelSources),
		Confidence:       p.Confidence.OrDefault(),
		GeneratedBySkill: p.GeneratedBySkill,
		Summary:          extractSummary(p.Content),
	}

	data := Marshal(item, p.Content)
	if err := s.fs.Write(rel, data); err != nil {
		return nil, fmt.Errorf("knowledge: create %s: %w", id, err)
	}
	abs, err := s.fs.Abs(rel)
	if err != nil {
		return nil, err
	}
	return &models.KnowledgeDocument{
		Item:     item,
		Body:     p.Content,
		Path:     abs,
		Checksum: storage.Checksum(data),
	}, nil
}

// Load finds an item by ID by scanning every category's year directories.
// It returns (nil, nil) when no file matches.
func (s *Store) Load(ctx context.Context, id string) (*models.KnowledgeDocument, error) {
	if !validID(id) {
		return nil, nil
	}
	for _, c := range models.Categories {
		years, err := s.yearDirs(string(c))
		if err != nil {
			return nil, err
		}
		for _, year := range years {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rel := fmt.Sprintf("%s/%s/%s%s", c, year, id, fileExt)
			ok, err := s.fs.Exists(rel)
			if err != nil {
				return nil, err
			}
			if ok {
				return s.LoadPath(rel)
			}
		}
	}
	return nil, nil
}

// LoadPath decodes the file at rel (relative to the knowledge root).
func (s *Store) LoadPath(rel string) (*models.KnowledgeDocument, error) {
	data, err := s.fs.Read(rel)
	if err != nil {
		return nil, err
	}
	item, body, err := Unmarshal(rel, data)
	if err != nil {
		return nil, goerr.Wrap(err, "decode knowledge item", goerr.V("path", rel))
	}
	abs, err := s.fs.Abs(rel)
	if err != nil {
		return nil, err
	}
	return &models.KnowledgeDocument{
		Item:     item,
		Body:     body,
		Path:     abs,
		Checksum: storage.Checksum(data),
	}, nil
}

// List returns up to limit items, newest year first and, within a year,
// in descending ID order. A nil category lists every category. Files that
// fail to decode are skipped.
func (s *Store) List(ctx context.Context, category *models.Category, limit int) ([]models.KnowledgeSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	out := []models.KnowledgeSummary{}
	err := s.scan(ctx, category, func(doc *models.KnowledgeDocument) bool {
		out = append(out, doc.Item.Summarize())
		return len(out) < limit
	})
	return out, err
}

// Walk calls fn for every decodable item in listing order. Returning an
// error from fn stops the walk.
func (s *Store) Walk(ctx context.Context, fn func(*models.KnowledgeDocument) error) error {
	var fnErr error
	err := s.scan(ctx, nil, func(doc *models.KnowledgeDocument) bool {
		fnErr = fn(doc)
		return fnErr == nil
	})
	if err != nil {
		return err
	}
	return fnErr
}

// scan visits items in listing order until visit returns false.
func (s *Store) scan(ctx context.Context, category *models.Category, visit func(*models.KnowledgeDocument) bool) error {
	cats := models.Categories
	if category != nil {
		if !category.Valid() {
			return nil
		}
		cats = []models.Category{*category}
	}

	// year -> relative file paths across the selected categories
	byYear := map[string][]string{}
	for _, c := range cats {
		years, err := s.yearDirs(string(c))
		if err != nil {
			return err
		}
		for _, year := range years {
			entries, err := s.fs.ReadDir(string(c) + "/" + year)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) || strings.HasPrefix(e.Name(), ".") {
					continue
				}
				byYear[year] = append(byYear[year], string(c)+"/"+year+"/"+e.Name())
			}
		}
	}

	years := make([]string, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(years)))

	for _, year := range years {
		files := byYear[year]
		sort.Slice(files, func(i, j int) bool {
			di, dj := dayKey(baseName(files[i])), dayKey(baseName(files[j]))
			if di != dj {
				return di > dj
			}
			return files[i] > files[j]
		})
		// The ID only carries the day, so each day is decoded as a group
		// and ordered by its full timestamp.
		for start := 0; start < len(files); {
			end := start + 1
			for end < len(files) && dayKey(baseName(files[end])) == dayKey(baseName(files[start])) {
				end++
			}
			docs, err := s.loadDay(ctx, files[start:end])
			if err != nil {
				return err
			}
			for _, doc := range docs {
				if !visit(doc) {
					return nil
				}
			}
			start = end
		}
	}
	return nil
}

// loadDay decodes the files of one day, newest first. Ties on the
// timestamp fall back to the ID, descending.
func (s *Store) loadDay(ctx context.Context, files []string) ([]*models.KnowledgeDocument, error) {
	docs := make([]*models.KnowledgeDocument, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.LoadPath(rel)
		if err != nil {
			s.logger.Debug("knowledge: skip undecodable file",
				slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		docs = append(docs, doc)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		ti, tj := docs[i].Item.Date, docs[j].Item.Date
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return docs[i].Item.ID > docs[j].Item.ID
	})
	return docs, nil
}

// yearDirs returns the year directory names under a category.
func (s *Store) yearDirs(category string) ([]string, error) {
	entries, err := s.fs.ReadDir(category)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func baseName(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[i+1:]
	}
	return rel
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
