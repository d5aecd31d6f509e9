// Package models defines the domain types for GlyphNote.
package models

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/glyphnote/internal/apperr"
)

// NotesDir is the vault subdirectory that holds every document.
const NotesDir = "notes"

// Engine is the typesetting system a document is authored for.
// The set is closed: every switch over it handles both values.
type Engine string

const (
	EngineLatex Engine = "latex"
	EngineTypst Engine = "typst"
)

// Engines lists every supported engine.
var Engines = []Engine{EngineLatex, EngineTypst}

// ParseEngine converts a wire value into an Engine.
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case EngineLatex, EngineTypst:
		return e, nil
	default:
		return "", fmt.Errorf("models: unsupported engine %q: %w", s, apperr.ErrInvalidInput)
	}
}

// Extension returns the source file extension without the dot.
func (e Engine) Extension() string {
	switch e {
	case EngineLatex:
		return "tex"
	case EngineTypst:
		return "typ"
	default:
		panic(fmt.Sprintf("models: unknown engine %q", string(e)))
	}
}

// EngineFromPath detects the engine from a file extension.
func EngineFromPath(path string) (Engine, bool) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "tex":
		return EngineLatex, true
	case "typ":
		return EngineTypst, true
	default:
		return "", false
	}
}

// Vault identifies the active document root.
type Vault struct {
	RootPath  string `json:"root_path"`
	NoteCount int    `json:"note_count"`
}

// DocumentSummary is a lightweight listing entry for one document.
type DocumentSummary struct {
	Path          string `json:"path"`
	Title         string `json:"title"`
	Engine        Engine `json:"engine"`
	UpdatedAtUnix *int64 `json:"updated_at_unix"`
}

// Document is a full document including its persisted source.
type Document struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Engine  Engine `json:"engine"`
	Content string `json:"content"`
}

// Summary drops the content of d.
func (d Document) Summary() DocumentSummary {
	return DocumentSummary{Path: d.Path, Title: d.Title, Engine: d.Engine}
}
