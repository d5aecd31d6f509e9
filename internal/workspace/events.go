package workspace

// Event kinds published to the EventSink.
const (
	EventStatus           = "status"
	EventVaultOpened      = "vault.opened"
	EventDialogChanged    = "dialog.changed"
	EventNotesRefreshed   = "notes.refreshed"
	EventTabsChanged      = "tabs.changed"
	EventPreviewChanged   = "preview.changed"
	EventWorkspaceRenamed = "workspace.renamed"
)

// EventSink receives workspace events. Emit must not block for long; it is
// called outside the workspace lock.
type EventSink interface {
	Emit(kind string, data any)
}

type nopSink struct{}

func (nopSink) Emit(string, any) {}

func (w *Workspace) emit(kind string, data any) {
	w.sink.Emit(kind, data)
}

func (w *Workspace) emitStatus() {
	w.mu.Lock()
	data := map[string]any{"status": w.status, "busy": w.busy > 0}
	w.mu.Unlock()
	w.emit(EventStatus, data)
}

func (w *Workspace) emitTabs() {
	tabs, active := w.tabSummaries()
	w.emit(EventTabsChanged, map[string]any{"tabs": tabs, "active_path": active})
}

func (w *Workspace) emitDialog() {
	s := w.boot.Snapshot()
	w.emit(EventDialogChanged, s.Dialog)
}
