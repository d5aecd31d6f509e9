package workspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/glyphnote/internal/apperr"
	"github.com/starford/glyphnote/internal/models"
	"github.com/starford/glyphnote/internal/tabs"
)

// TabSummary describes an open tab without its content.
type TabSummary struct {
	Path    string        `json:"path"`
	Title   string        `json:"title"`
	Engine  models.Engine `json:"engine"`
	IsDirty bool          `json:"is_dirty"`
}

// OpenNote activates the tab for path, reading the document first when it is
// not open yet. An already open tab keeps its unsaved edits.
func (w *Workspace) OpenNote(ctx context.Context, path string) (tabs.Tab, error) {
	ctx, cancel := w.bind(ctx)
	defer cancel()

	if strings.TrimSpace(path) == "" {
		return tabs.Tab{}, fmt.Errorf("workspace: open note: path is required: %w", apperr.ErrInvalidInput)
	}
	if _, err := w.requireVault(); err != nil {
		return tabs.Tab{}, err
	}

	w.mu.Lock()
	prev := w.tabs.ActivePath()
	if w.tabs.Activate(path) {
		t, _ := w.tabs.Get(path)
		w.mu.Unlock()
		w.afterTabChange(prev)
		return t, nil
	}
	epoch := w.epoch
	w.mu.Unlock()

	done := w.begin(StatusLoading)
	defer done()

	doc, err := w.store.ReadDocument(ctx, path)
	if err != nil {
		err = apperr.Wrap(apperr.ErrDocumentIO, err)
		w.fail(err)
		return tabs.Tab{}, err
	}

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		return tabs.Tab{}, fmt.Errorf("workspace: open note %s: vault changed: %w", path, context.Canceled)
	}
	prev = w.tabs.ActivePath()
	w.tabs.Open(doc)
	t, _ := w.tabs.Get(doc.Path)
	w.mu.Unlock()

	w.setStatus(StatusLoaded)
	w.afterTabChange(prev)
	return t, nil
}

// ActivateTab selects an open tab. Paths without a tab are ignored.
func (w *Workspace) ActivateTab(path string) bool {
	w.mu.Lock()
	prev := w.tabs.ActivePath()
	ok := w.tabs.Activate(path)
	w.mu.Unlock()
	if ok {
		w.afterTabChange(prev)
	}
	return ok
}

// Edit replaces the content of the active tab. Edits to any other path are
// ignored.
func (w *Workspace) Edit(path, content string) bool {
	w.mu.Lock()
	t, _ := w.tabs.Get(path)
	wasDirty := t.IsDirty
	ok := w.tabs.Edit(path, content)
	w.mu.Unlock()
	if ok && !wasDirty {
		w.emitTabs()
	}
	return ok
}

// Save writes the tab for path, or the active tab when path is empty. On
// success the tab is marked clean unless it was edited meanwhile, the
// document list is refreshed, and the preview of a still active tab is
// resolved again. On failure the tab stays dirty.
func (w *Workspace) Save(ctx context.Context, path string) error {
	ctx, cancel := w.bind(ctx)
	defer cancel()

	w.mu.Lock()
	if path == "" {
		path = w.tabs.ActivePath()
	}
	t, ok := w.tabs.Get(path)
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("workspace: save: no open tab %q: %w", path, apperr.ErrNotFound)
	}

	done := w.begin(StatusSaving)
	defer done()

	if err := w.store.SaveDocument(ctx, t.Path, t.Content); err != nil {
		err = apperr.Wrap(apperr.ErrDocumentIO, err)
		w.fail(err)
		return err
	}

	w.mu.Lock()
	w.tabs.MarkSaved(t.Path, t.Revision)
	stillActive := w.tabs.ActivePath() == t.Path
	w.mu.Unlock()
	w.emitTabs()

	if err := w.refresh(ctx); err != nil {
		w.fail(err)
		return err
	}
	w.setStatus(StatusSaved)
	if stillActive {
		w.resolvePreview(t.Path)
	}
	return nil
}

// CloseTab closes the tab for path without saving.
func (w *Workspace) CloseTab(path string) bool {
	w.mu.Lock()
	prev := w.tabs.ActivePath()
	ok := w.tabs.Close(path)
	w.mu.Unlock()
	if ok {
		w.afterTabChange(prev)
	}
	return ok
}

// Tab returns the open tab for path including its content.
func (w *Workspace) Tab(path string) (tabs.Tab, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tabs.Get(path)
}

// ActiveTab returns the active tab including its content.
func (w *Workspace) ActiveTab() (tabs.Tab, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tabs.Active()
}

// afterTabChange publishes the tab strip and, when the active path moved
// away from prev, re-targets the preview.
func (w *Workspace) afterTabChange(prev string) {
	w.emitTabs()

	w.mu.Lock()
	active := w.tabs.ActivePath()
	w.mu.Unlock()
	if active != prev {
		w.retargetPreview(active)
	}
}

func (w *Workspace) tabSummaries() ([]TabSummary, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	all := w.tabs.Tabs()
	out := make([]TabSummary, 0, len(all))
	for _, t := range all {
		out = append(out, TabSummary{Path: t.Path, Title: t.Title, Engine: t.Engine, IsDirty: t.IsDirty})
	}
	return out, w.tabs.ActivePath()
}
