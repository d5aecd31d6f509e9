package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/glyphnote/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(ws *workspace.Workspace, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(ws)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/state", h.State)

	// Vault selection.
	r.Post("/vault", h.OpenVault)
	r.Post("/vault/settings", h.OpenSettings)
	r.Delete("/vault/settings", h.CloseSettings)
	r.Put("/vault/settings/input", h.SetDialogInput)

	// Documents.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/quick", h.QuickCreate)
	r.Post("/notes/refresh", h.RefreshNotes)
	r.Get("/tree", h.Tree)

	// Tabs. Document paths in URLs are path-escaped.
	r.Post("/tabs", h.OpenTab)
	r.Post("/tabs/activate", h.ActivateTab)
	r.Get("/tabs/active", h.ActiveTab)
	r.Put("/tabs/active/content", h.EditActive)
	r.Post("/tabs/active/save", h.SaveActive)
	r.Get("/tabs/*", h.GetTab)
	r.Delete("/tabs/*", h.CloseTab)

	// Preview.
	r.Post("/preview/render", h.Render)
	r.Post("/preview/refresh", h.RefreshPreview)
	r.Get("/preview/artifact", h.Artifact)

	r.Put("/workspace/name", h.RenameWorkspace)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
