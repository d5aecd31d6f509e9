package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/glyphnote/internal/doctree"
	"github.com/starford/glyphnote/internal/models"
)

// VaultRequest selects a vault directory.
type VaultRequest struct {
	Path string `json:"path" example:"/home/me/Documents/GlyphVault" validate:"required"`
}

// Validate implements validation.Validatable.
func (r VaultRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// DialogInputRequest carries the path typed into the vault dialog.
type DialogInputRequest struct {
	Input string `json:"input" example:"/home/me/vault"`
}

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title  string `json:"title" example:"Lecture 3" validate:"required"`
	Engine string `json:"engine" example:"latex" enums:"latex,typst"`
}

// Validate implements validation.Validatable. An empty engine means latex.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Engine, validation.In(engineValues()...)),
	)
}

func engineValues() []any {
	out := make([]any, 0, len(models.Engines))
	for _, e := range models.Engines {
		out = append(out, string(e))
	}
	return out
}

// TabRequest names an open or to-be-opened document.
type TabRequest struct {
	Path string `json:"path" example:"/home/me/vault/notes/lecture-3.tex" validate:"required"`
}

// Validate implements validation.Validatable.
func (r TabRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// ContentRequest replaces the active tab's content. Empty content is valid.
type ContentRequest struct {
	Content string `json:"content" example:"\\documentclass{article}"`
}

// RenderRequest optionally names the document to render; empty means the
// active tab.
type RenderRequest struct {
	Path string `json:"path,omitempty"`
}

// WorkspaceNameRequest renames the workspace. A blank name restores the
// default.
type WorkspaceNameRequest struct {
	Name string `json:"name" example:"Thesis"`
}

// Validate implements validation.Validatable.
func (r WorkspaceNameRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(0, 120)),
	)
}

// NoteListResponse wraps the document list.
type NoteListResponse struct {
	Notes []models.DocumentSummary `json:"notes" validate:"required"`
	Total int                      `json:"total" example:"42" validate:"required"`
}

// TreeResponse wraps the document tree.
type TreeResponse struct {
	Nodes []*doctree.Node `json:"nodes" validate:"required"`
}

// PreviewResponse reports the artifact of a render or resolve.
type PreviewResponse struct {
	Artifact string `json:"artifact" example:"/home/me/vault/notes/lecture-3.pdf"`
}

// DialogResponse reports whether the dialog accepted a close request.
type DialogResponse struct {
	Closed bool `json:"closed"`
}
