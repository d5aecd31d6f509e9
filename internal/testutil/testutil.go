// Package testutil provides shared test helpers for setting up vaults, settings
// databases, and in-memory collaborators.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/glyphnote/internal/models"
	"github.com/starford/glyphnote/internal/settings"
	"github.com/starford/glyphnote/internal/storage"
)

// TestSettings creates a temporary SQLite settings database that is
// automatically cleaned up.
func TestSettings(t *testing.T) *settings.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "glyphnote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := settings.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary on-disk vault backed by storage.FS.
func TestVault(t *testing.T) (models.Vault, *storage.FS) {
	t.Helper()
	fs := storage.NewFS()
	v, err := fs.OpenOrCreateVault(context.Background(), filepath.Join(t.TempDir(), "vault"))
	if err != nil {
		t.Fatal(err)
	}
	return v, fs
}

// WriteNote writes content at rel below the vault's notes directory and
// returns the absolute path.
func WriteNote(t *testing.T, v models.Vault, rel, content string) string {
	t.Helper()
	p := filepath.Join(v.RootPath, models.NotesDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
