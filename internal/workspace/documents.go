package workspace

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/glyphnote/internal/apperr"
	"github.com/starford/glyphnote/internal/doctree"
	"github.com/starford/glyphnote/internal/models"
)

// quickTitleLayout names notes made by QuickCreate.
const quickTitleLayout = "2006-01-02_15-04-05"

// Documents returns the document list of the active vault, newest first.
func (w *Workspace) Documents() []models.DocumentSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.docs)
}

// Tree builds the sorted document tree for the active vault.
func (w *Workspace) Tree() []*doctree.Node {
	root := ""
	if v, ok := w.boot.Vault(); ok {
		root = v.RootPath
	}
	nodes := doctree.Build(w.Documents(), root)
	doctree.Sort(nodes)
	return nodes
}

// RefreshNotes re-lists the active vault. Without a vault it does nothing.
func (w *Workspace) RefreshNotes(ctx context.Context) error {
	ctx, cancel := w.bind(ctx)
	defer cancel()

	if _, ok := w.boot.Vault(); !ok {
		return nil
	}
	done := w.begin(StatusRefreshing)
	defer done()

	if err := w.refresh(ctx); err != nil {
		w.fail(err)
		return err
	}
	w.setStatus(StatusReady)
	return nil
}

// CreateNote creates a note in the active vault, refreshes the list, and
// opens the new note.
func (w *Workspace) CreateNote(ctx context.Context, title string, engine models.Engine) (models.DocumentSummary, error) {
	ctx, cancel := w.bind(ctx)
	defer cancel()

	v, err := w.requireVault()
	if err != nil {
		return models.DocumentSummary{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return models.DocumentSummary{}, fmt.Errorf("workspace: create note: title is required: %w", apperr.ErrInvalidInput)
	}
	engine, err = models.ParseEngine(string(engine))
	if err != nil {
		return models.DocumentSummary{}, err
	}

	done := w.begin(StatusCreating)
	defer done()

	summary, err := w.store.CreateDocument(ctx, v.RootPath, title, engine)
	if err != nil {
		err = apperr.Wrap(apperr.ErrDocumentIO, err)
		w.fail(err)
		return models.DocumentSummary{}, err
	}
	if err := w.refresh(ctx); err != nil {
		w.fail(err)
		return summary, err
	}
	if _, err := w.OpenNote(ctx, summary.Path); err != nil {
		return summary, err
	}
	w.setStatus(StatusCreated)
	return summary, nil
}

// QuickCreate creates a LaTeX note titled after the current UTC time.
func (w *Workspace) QuickCreate(ctx context.Context) (models.DocumentSummary, error) {
	title := "untitled-" + w.now().UTC().Format(quickTitleLayout)
	return w.CreateNote(ctx, title, models.EngineLatex)
}

// refresh replaces the document list. Listings of a vault that has since
// been replaced are dropped.
func (w *Workspace) refresh(ctx context.Context) error {
	v, ok := w.boot.Vault()
	if !ok {
		return nil
	}
	w.mu.Lock()
	epoch := w.epoch
	w.mu.Unlock()

	docs, err := w.store.ListDocuments(ctx, v.RootPath)
	if err != nil {
		return apperr.Wrap(apperr.ErrDocumentIO, err)
	}

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		return nil
	}
	w.docs = docs
	w.mu.Unlock()

	w.emit(EventNotesRefreshed, slices.Clone(docs))
	return nil
}

func (w *Workspace) requireVault() (models.Vault, error) {
	v, ok := w.boot.Vault()
	if !ok {
		return models.Vault{}, fmt.Errorf("workspace: no vault open: %w", apperr.ErrInvalidInput)
	}
	return v, nil
}
