// Package tabs tracks the documents open for editing, the active selection,
// and per-document dirty state.
package tabs

import (
	"slices"

	"github.com/starford/glyphnote/internal/models"
)

// Tab is an in-memory editing session for one document.
type Tab struct {
	Path    string        `json:"path"`
	Title   string        `json:"title"`
	Engine  models.Engine `json:"engine"`
	Content string        `json:"content"`
	IsDirty bool          `json:"is_dirty"`
	// Revision counts edits since the tab was opened.
	Revision uint64 `json:"revision"`
}

// Session is the ordered set of open tabs plus the active path.
//
// At most one tab exists per path, and a non-empty active path always names
// an open tab. Session is not safe for concurrent use; its owner serialises
// access.
type Session struct {
	tabs   []Tab
	active string
}

// New returns an empty session.
func New() *Session {
	return &Session{}
}

// Open activates the tab for doc.Path, creating it from doc's persisted
// content when it is not open yet. An existing tab keeps its edits.
// It reports whether a new tab was created.
func (s *Session) Open(doc models.Document) bool {
	if s.index(doc.Path) >= 0 {
		s.active = doc.Path
		return false
	}
	s.tabs = append(s.tabs, Tab{
		Path:    doc.Path,
		Title:   doc.Title,
		Engine:  doc.Engine,
		Content: doc.Content,
	})
	s.active = doc.Path
	return true
}

// Activate selects an already open tab. Unknown paths are ignored.
func (s *Session) Activate(path string) bool {
	if s.index(path) < 0 {
		return false
	}
	s.active = path
	return true
}

// Edit replaces the content of the active tab and marks it dirty. It is a
// no-op unless path is the active path. Dirty tracking follows edits, not
// content diffs.
func (s *Session) Edit(path, content string) bool {
	if s.active == "" || path != s.active {
		return false
	}
	i := s.index(path)
	if i < 0 {
		return false
	}
	s.tabs[i].Content = content
	s.tabs[i].IsDirty = true
	s.tabs[i].Revision++
	return true
}

// Close removes the tab for path. When it was active, focus moves to the tab
// now at the same index, else the one before it, else nothing.
func (s *Session) Close(path string) bool {
	i := s.index(path)
	if i < 0 {
		return false
	}
	s.tabs = slices.Delete(s.tabs, i, i+1)
	if s.active != path {
		return true
	}
	switch {
	case i < len(s.tabs):
		s.active = s.tabs[i].Path
	case i-1 >= 0:
		s.active = s.tabs[i-1].Path
	default:
		s.active = ""
	}
	return true
}

// MarkSaved clears the dirty flag of path when the tab is still at revision,
// the revision whose content was written. A path without an open tab is
// ignored, so a save that finishes after its tab closed has no effect, and a
// tab edited while its save was in flight stays dirty.
func (s *Session) MarkSaved(path string, revision uint64) bool {
	i := s.index(path)
	if i < 0 || s.tabs[i].Revision != revision {
		return false
	}
	s.tabs[i].IsDirty = false
	return true
}

// Reset discards every tab and the active selection.
func (s *Session) Reset() {
	s.tabs = nil
	s.active = ""
}

// ActivePath returns the active path, or "" when nothing is active.
func (s *Session) ActivePath() string {
	return s.active
}

// Active returns a copy of the active tab.
func (s *Session) Active() (Tab, bool) {
	return s.Get(s.active)
}

// Get returns a copy of the tab for path.
func (s *Session) Get(path string) (Tab, bool) {
	if path == "" {
		return Tab{}, false
	}
	i := s.index(path)
	if i < 0 {
		return Tab{}, false
	}
	return s.tabs[i], true
}

// Tabs returns a copy of the open tabs in strip order.
func (s *Session) Tabs() []Tab {
	return slices.Clone(s.tabs)
}

// Dirty returns the paths of tabs with unsaved edits.
func (s *Session) Dirty() []string {
	var out []string
	for _, t := range s.tabs {
		if t.IsDirty {
			out = append(out, t.Path)
		}
	}
	return out
}

func (s *Session) index(path string) int {
	return slices.IndexFunc(s.tabs, func(t Tab) bool { return t.Path == path })
}
