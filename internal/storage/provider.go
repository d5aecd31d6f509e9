// Package storage implements the vault document store on the local file system.
package storage

import (
	"context"

	"github.com/starford/glyphnote/internal/models"
)

// Provider is the document store consumed by the workspace.
// Document paths are absolute file-system paths.
type Provider interface {
	// OpenOrCreateVault ensures path and its notes directory exist.
	OpenOrCreateVault(ctx context.Context, path string) (models.Vault, error)
	// ListDocuments returns every typeset document under the vault, newest first.
	ListDocuments(ctx context.Context, vaultRoot string) ([]models.DocumentSummary, error)
	// CreateDocument writes a templated document named after title.
	CreateDocument(ctx context.Context, vaultRoot, title string, engine models.Engine) (models.DocumentSummary, error)
	// ReadDocument returns the full document at path.
	ReadDocument(ctx context.Context, path string) (models.Document, error)
	// SaveDocument atomically replaces the content of an existing document.
	SaveDocument(ctx context.Context, path, content string) error
}
