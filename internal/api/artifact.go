package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// Artifact handles GET /api/preview/artifact: it streams the PDF currently
// referenced by the preview. Only files under the active vault are served.
//
//	@Summary		Download the current preview PDF
//	@Tags			preview
//	@Produce		application/pdf
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview/artifact [get]
func (h *Handler) Artifact(w http.ResponseWriter, r *http.Request) {
	artifact := h.ws.Preview().Artifact
	if artifact == "" {
		writeJSON(w, http.StatusNotFound, errorBody("no preview"))
		return
	}
	v, ok := h.ws.Vault()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no vault open"))
		return
	}
	if err := insideRoot(v.RootPath, artifact); err != nil {
		writeJSON(w, http.StatusForbidden, errorBody(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(artifact)))
	http.ServeFile(w, r, artifact)
}

// insideRoot rejects paths that escape root after cleaning.
func insideRoot(root, path string) error {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("artifact outside vault")
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("artifact outside vault")
	}
	return nil
}
