package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/starford/glyphnote/internal/doctree"
	"github.com/starford/glyphnote/internal/models"
	"github.com/starford/glyphnote/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	ws *workspace.Workspace
}

// NewHandler creates a new Handler.
func NewHandler(ws *workspace.Workspace) *Handler {
	return &Handler{ws: ws}
}

// docPath extracts the document path from the URL wildcard. Clients escape
// the absolute path (e.g. %2Fhome%2Fme%2Fvault%2Fnotes%2Fa.tex).
func docPath(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// State handles GET /api/state.
//
//	@Summary		Workspace snapshot
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	workspace.Snapshot
//	@Security		BearerAuth
//	@Router			/state [get]
func (h *Handler) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Snapshot())
}

// OpenVault handles POST /api/vault.
//
//	@Summary		Open or create a vault and make it active
//	@Tags			vault
//	@Accept			json
//	@Produce		json
//	@Param			body	body		VaultRequest	true	"Vault directory"
//	@Success		200		{object}	models.Vault
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault [post]
func (h *Handler) OpenVault(w http.ResponseWriter, r *http.Request) {
	var req VaultRequest
	if !readJSON(w, r, &req) {
		return
	}
	v, err := h.ws.SubmitVaultPath(r.Context(), req.Path)
	if err != nil {
		writeError(w, "open vault", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// OpenSettings handles POST /api/vault/settings.
func (h *Handler) OpenSettings(w http.ResponseWriter, _ *http.Request) {
	h.ws.OpenSettings()
	writeJSON(w, http.StatusOK, h.ws.Snapshot().Dialog)
}

// CloseSettings handles DELETE /api/vault/settings. A required dialog
// answers 409.
func (h *Handler) CloseSettings(w http.ResponseWriter, _ *http.Request) {
	if !h.ws.CloseDialog() {
		writeJSON(w, http.StatusConflict, errorBody("a vault must be selected first"))
		return
	}
	writeJSON(w, http.StatusOK, DialogResponse{Closed: true})
}

// SetDialogInput handles PUT /api/vault/settings/input.
func (h *Handler) SetDialogInput(w http.ResponseWriter, r *http.Request) {
	var req DialogInputRequest
	if !readJSON(w, r, &req) {
		return
	}
	h.ws.SetDialogInput(req.Input)
	writeJSON(w, http.StatusOK, h.ws.Snapshot().Dialog)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List documents of the active vault, newest first
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, _ *http.Request) {
	docs := h.ws.Documents()
	if docs == nil {
		docs = []models.DocumentSummary{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: docs, Total: len(docs)})
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note and open it
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	models.DocumentSummary
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !readJSON(w, r, &req) {
		return
	}
	engine := models.EngineLatex
	if req.Engine != "" {
		engine = models.Engine(req.Engine)
	}
	summary, err := h.ws.CreateNote(r.Context(), req.Title, engine)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// QuickCreate handles POST /api/notes/quick.
func (h *Handler) QuickCreate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ws.QuickCreate(r.Context())
	if err != nil {
		writeError(w, "quick create", err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// RefreshNotes handles POST /api/notes/refresh.
func (h *Handler) RefreshNotes(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.RefreshNotes(r.Context()); err != nil {
		writeError(w, "refresh notes", err)
		return
	}
	h.ListNotes(w, r)
}

// Tree handles GET /api/tree.
//
//	@Summary		Folder tree of the active vault's documents
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	TreeResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, _ *http.Request) {
	nodes := h.ws.Tree()
	if nodes == nil {
		nodes = []*doctree.Node{}
	}
	writeJSON(w, http.StatusOK, TreeResponse{Nodes: nodes})
}

// OpenTab handles POST /api/tabs.
//
//	@Summary		Open a document in a tab, or focus its existing tab
//	@Tags			tabs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TabRequest	true	"Document path"
//	@Success		200		{object}	tabs.Tab
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tabs [post]
func (h *Handler) OpenTab(w http.ResponseWriter, r *http.Request) {
	var req TabRequest
	if !readJSON(w, r, &req) {
		return
	}
	tab, err := h.ws.OpenNote(r.Context(), req.Path)
	if err != nil {
		writeError(w, "open tab", err)
		return
	}
	writeJSON(w, http.StatusOK, tab)
}

// ActivateTab handles POST /api/tabs/activate.
func (h *Handler) ActivateTab(w http.ResponseWriter, r *http.Request) {
	var req TabRequest
	if !readJSON(w, r, &req) {
		return
	}
	if !h.ws.ActivateTab(req.Path) {
		writeJSON(w, http.StatusNotFound, errorBody("tab not open"))
		return
	}
	tab, _ := h.ws.Tab(req.Path)
	writeJSON(w, http.StatusOK, tab)
}

// ActiveTab handles GET /api/tabs/active.
func (h *Handler) ActiveTab(w http.ResponseWriter, _ *http.Request) {
	tab, ok := h.ws.ActiveTab()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no active tab"))
		return
	}
	writeJSON(w, http.StatusOK, tab)
}

// GetTab handles GET /api/tabs/*.
func (h *Handler) GetTab(w http.ResponseWriter, r *http.Request) {
	tab, ok := h.ws.Tab(docPath(r))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("tab not open"))
		return
	}
	writeJSON(w, http.StatusOK, tab)
}

// EditActive handles PUT /api/tabs/active/content.
//
//	@Summary		Replace the active tab's content and mark it dirty
//	@Tags			tabs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ContentRequest	true	"New content"
//	@Success		200		{object}	tabs.Tab
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tabs/active/content [put]
func (h *Handler) EditActive(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !readJSON(w, r, &req) {
		return
	}
	tab, ok := h.ws.ActiveTab()
	if !ok || !h.ws.Edit(tab.Path, req.Content) {
		writeJSON(w, http.StatusConflict, errorBody("no active tab"))
		return
	}
	tab, _ = h.ws.Tab(tab.Path)
	writeJSON(w, http.StatusOK, tab)
}

// SaveActive handles POST /api/tabs/active/save.
func (h *Handler) SaveActive(w http.ResponseWriter, r *http.Request) {
	tab, ok := h.ws.ActiveTab()
	if !ok {
		writeJSON(w, http.StatusConflict, errorBody("no active tab"))
		return
	}
	if err := h.ws.Save(r.Context(), tab.Path); err != nil {
		writeError(w, "save", err)
		return
	}
	tab, _ = h.ws.Tab(tab.Path)
	writeJSON(w, http.StatusOK, tab)
}

// CloseTab handles DELETE /api/tabs/*. Unsaved edits are discarded.
func (h *Handler) CloseTab(w http.ResponseWriter, r *http.Request) {
	if !h.ws.CloseTab(docPath(r)) {
		writeJSON(w, http.StatusNotFound, errorBody("tab not open"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Render handles POST /api/preview/render.
//
//	@Summary		Render a PDF preview of the active tab
//	@Tags			preview
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenderRequest	false	"Optional document path"
//	@Success		200		{object}	PreviewResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview/render [post]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if r.ContentLength != 0 && !readJSON(w, r, &req) {
		return
	}
	artifact, err := h.ws.Render(r.Context(), req.Path)
	if err != nil {
		writeError(w, "render", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Artifact: artifact})
}

// RefreshPreview handles POST /api/preview/refresh.
func (h *Handler) RefreshPreview(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.ws.RefreshPreview(r.Context())
	if err != nil {
		writeError(w, "refresh preview", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Artifact: artifact})
}

// RenameWorkspace handles PUT /api/workspace/name.
func (h *Handler) RenameWorkspace(w http.ResponseWriter, r *http.Request) {
	var req WorkspaceNameRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.ws.SetWorkspaceName(r.Context(), req.Name); err != nil {
		writeError(w, "rename workspace", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": h.ws.WorkspaceName()})
}
