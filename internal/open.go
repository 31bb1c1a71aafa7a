package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/m-mizutani/masq"

	"github.com/starford/ctxvault/internal/index"
	"github.com/starford/ctxvault/internal/knowledge"
	"github.com/starford/ctxvault/internal/session"
	"github.com/starford/ctxvault/internal/skills"
	"github.com/starford/ctxvault/internal/vault"
)

// NewLogger builds the structured JSON logger. Fields named Token are
// redacted wherever they appear in logged values.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: masq.New(masq.WithFieldName("Token")),
	}))
}

// Vault is an opened data directory: the service plus the index handle it
// owns.
type Vault struct {
	Service *vault.Service
	db      *index.DB
}

// Close releases the index.
func (v *Vault) Close() error {
	return v.db.Close()
}

// OpenVault creates the configured directories if needed, opens the index
// and builds the service over them.
func OpenVault(cfg *Config, logger *slog.Logger, opts ...vault.Option) (*Vault, error) {
	ks, err := knowledge.NewStore(cfg.Data.KnowledgeDir, knowledge.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init knowledge store: %w", err)
	}
	ss, err := session.NewStore(cfg.Data.SessionsDir, session.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init session store: %w", err)
	}
	reg, err := skills.NewRegistry(cfg.Data.SkillsDir)
	if err != nil {
		return nil, fmt.Errorf("init skills registry: %w", err)
	}
	db, err := index.Open(cfg.Data.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	all := append([]vault.Option{
		vault.WithLogger(logger),
		vault.WithSkills(reg),
		vault.WithSearchLimit(cfg.Search.Limit(index.DefaultLimit)),
	}, opts...)
	return &Vault{
		Service: vault.New(ks, ss, db, all...),
		db:      db,
	}, nil
}

// StartupSync brings the index in line with files edited while nothing was
// running. It does nothing unless enabled; external edits otherwise reach
// the index only through an explicit reindex or the watcher.
func (v *Vault) StartupSync(ctx context.Context, enabled bool, logger *slog.Logger) {
	if !enabled {
		logger.Debug("startup sync skipped")
		return
	}
	report, err := v.Service.Reindex(ctx, vault.ReindexOptions{})
	if err != nil {
		logger.Warn("startup sync failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("startup sync done",
		slog.Int("knowledge_indexed", report.KnowledgeIndexed),
		slog.Int("sessions_indexed", report.SessionsIndexed))
}
