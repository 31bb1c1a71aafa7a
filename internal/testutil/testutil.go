// Package testutil provides shared test helpers for setting up vaults and databases.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/ctxvault/internal/index"
	"github.com/starford/ctxvault/internal/knowledge"
	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/session"
	"github.com/starford/ctxvault/internal/skills"
	"github.com/starford/ctxvault/internal/vault"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ctxvault-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Vault bundles a service with the stores and index behind it.
type Vault struct {
	Dir       string
	Knowledge *knowledge.Store
	Sessions  *session.Store
	Skills    *skills.Registry
	DB        *index.DB
	Service   *vault.Service
}

// TestVault creates knowledge, session and skill directories under a temp
// dir, a fresh index, and a quiet service over them.
func TestVault(t *testing.T, opts ...vault.Option) *Vault {
	t.Helper()
	dir := t.TempDir()

	ks, err := knowledge.NewStore(filepath.Join(dir, "knowledge"))
	if err != nil {
		t.Fatal(err)
	}
	ss, err := session.NewStore(filepath.Join(dir, "sessions"))
	if err != nil {
		t.Fatal(err)
	}
	reg, err := skills.NewRegistry(filepath.Join(dir, "skills"))
	if err != nil {
		t.Fatal(err)
	}
	db := TestDB(t)

	all := append([]vault.Option{
		vault.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
		vault.WithSkills(reg),
	}, opts...)

	return &Vault{
		Dir:       dir,
		Knowledge: ks,
		Sessions:  ss,
		Skills:    reg,
		DB:        db,
		Service:   vault.New(ks, ss, db, all...),
	}
}

// Session builds a session with n alternating user/assistant messages.
func Session(at time.Time, model string, n int) *models.Session {
	msgs := make([]models.Message, n)
	for i := range msgs {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs[i] = models.Message{
			Role:      role,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: at.Add(time.Duration(i) * time.Second),
		}
	}
	return &models.Session{
		SessionID:   session.NewID(at, model),
		CreatedAt:   at,
		ModelSource: model,
		Tags:        []string{},
		Messages:    msgs,
	}
}
