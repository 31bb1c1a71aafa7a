package index

import (
	"context"

	"github.com/starford/ctxvault/internal/models"
)

// Index defines the operations the vault service performs on the derived
// index. Consumers should depend on this interface rather than the concrete
// *DB type to facilitate testing with mocks.
type Index interface {
	UpsertKnowledgeItem(ctx context.Context, doc models.KnowledgeDocument) error
	UpsertSession(ctx context.Context, s *models.Session) error
	DeleteKnowledgeItem(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
	FilterSearch(ctx context.Context, q FilterQuery) ([]KnowledgeHit, error)
	FullTextSearch(ctx context.Context, query string, limit int) ([]FTSHit, error)
	ListSessions(ctx context.Context, limit int, modelSource string) ([]models.SessionSummary, error)
	Stats(ctx context.Context) (models.Stats, error)
	KnowledgeChecksum(ctx context.Context, id string) (string, error)
	KnowledgeChecksums(ctx context.Context) (map[string]string, error)
	SessionIDs(ctx context.Context) (map[string]struct{}, error)
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Verify *DB satisfies Index at compile time.
var _ Index = (*DB)(nil)
