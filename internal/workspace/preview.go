package workspace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/glyphnote/internal/apperr"
	"github.com/starford/glyphnote/internal/preview"
)

// retargetPreview clears the preview reference at once, then resolves the
// artifact of path in the background. A completion after Close is dropped.
func (w *Workspace) retargetPreview(path string) {
	w.pv.Clear()
	if path == "" {
		return
	}
	w.resolvePreview(path)
}

// resolvePreview looks up the artifact of path in the background without
// clearing the current reference first.
func (w *Workspace) resolvePreview(path string) {
	ctx := w.ctx
	if ctx.Err() != nil {
		return
	}
	w.group.Go(func() error {
		if _, err := w.pv.Resolve(ctx, path); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("workspace: preview resolve failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			w.setStatus(apperr.Wrap(apperr.ErrPreviewResolve, err).Error())
		}
		return nil
	})
}

// Render produces a fresh artifact for path, or for the active tab when
// path is empty. Only a render of the active tab replaces the preview
// reference; any other document is rendered and its artifact returned.
func (w *Workspace) Render(ctx context.Context, path string) (string, error) {
	ctx, cancel := w.bind(ctx)
	defer cancel()

	path, err := w.targetPath(path)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	active := w.tabs.ActivePath() == path
	w.mu.Unlock()

	done := w.begin(StatusRendering)
	defer done()

	var artifact string
	if active {
		artifact, err = w.pv.Render(ctx, path)
	} else {
		artifact, err = w.renderer.RenderPreview(ctx, path)
	}
	if err != nil {
		err = apperr.Wrap(apperr.ErrRender, err)
		w.fail(err)
		return "", err
	}
	w.setStatus(StatusRendered)
	return artifact, nil
}

// RefreshPreview resolves the existing artifact of the active tab again.
func (w *Workspace) RefreshPreview(ctx context.Context) (string, error) {
	ctx, cancel := w.bind(ctx)
	defer cancel()

	path, err := w.targetPath("")
	if err != nil {
		return "", err
	}
	artifact, err := w.pv.Resolve(ctx, path)
	if err != nil {
		err = apperr.Wrap(apperr.ErrPreviewResolve, err)
		w.fail(err)
		return "", err
	}
	return artifact, nil
}

// Preview returns the preview state.
func (w *Workspace) Preview() preview.State {
	return w.pv.State()
}

func (w *Workspace) targetPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	w.mu.Lock()
	active := w.tabs.ActivePath()
	w.mu.Unlock()
	if active == "" {
		return "", fmt.Errorf("workspace: no active tab: %w", apperr.ErrInvalidInput)
	}
	return active, nil
}
