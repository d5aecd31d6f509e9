package workspace

import (
	"github.com/starford/glyphnote/internal/models"
	"github.com/starford/glyphnote/internal/preview"
	"github.com/starford/glyphnote/internal/vault"
)

// Snapshot is a read-only view of the whole workspace.
type Snapshot struct {
	Bootstrap     vault.State              `json:"bootstrap"`
	Vault         *models.Vault            `json:"vault"`
	Dialog        vault.Dialog             `json:"dialog"`
	SuggestedPath string                   `json:"suggested_path"`
	WorkspaceName string                   `json:"workspace_name"`
	Status        string                   `json:"status"`
	Busy          bool                     `json:"busy"`
	Tabs          []TabSummary             `json:"tabs"`
	ActivePath    string                   `json:"active_path"`
	Preview       preview.State            `json:"preview"`
	Documents     []models.DocumentSummary `json:"documents"`
}

// Snapshot captures the current state.
func (w *Workspace) Snapshot() Snapshot {
	boot := w.boot.Snapshot()
	tabs, active := w.tabSummaries()
	docs := w.Documents()

	w.mu.Lock()
	status, busy := w.status, w.busy > 0
	w.mu.Unlock()

	if boot.Vault != nil {
		boot.Vault.NoteCount = len(docs)
	}
	return Snapshot{
		Bootstrap:     boot.State,
		Vault:         boot.Vault,
		Dialog:        boot.Dialog,
		SuggestedPath: boot.Suggested,
		WorkspaceName: w.WorkspaceName(),
		Status:        status,
		Busy:          busy,
		Tabs:          tabs,
		ActivePath:    active,
		Preview:       w.pv.State(),
		Documents:     docs,
	}
}
