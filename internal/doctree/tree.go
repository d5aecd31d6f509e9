// Package doctree turns a flat document listing into a navigable folder tree.
package doctree

import (
	"slices"
	"strings"

	"github.com/starford/glyphnote/internal/models"
)

const rootID = "root"

// Node is one entry of the document tree.
//
// A node is a leaf when Path is set and Children is nil; anything else is a
// folder. A folder may still carry a Path when a document ends at a segment
// that other documents continue through.
type Node struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Path     string  `json:"path,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// IsLeaf reports whether n is a document leaf.
func (n *Node) IsLeaf() bool {
	return n.Path != "" && n.Children == nil
}

// Build constructs the tree for docs relative to <vaultRoot>/notes.
// It returns nil when vaultRoot is empty. Sibling order follows first
// appearance; use Sort before presenting.
func Build(docs []models.DocumentSummary, vaultRoot string) []*Node {
	if vaultRoot == "" {
		return nil
	}

	root := &Node{ID: rootID, Name: models.NotesDir, Children: []*Node{}}
	prefix := notesPrefix(vaultRoot)

	for _, doc := range docs {
		parts := segments(relativePath(doc.Path, prefix))
		if len(parts) == 0 {
			continue
		}

		cursor := root
		for i, part := range parts {
			if cursor.Children == nil {
				cursor.Children = []*Node{}
			}
			next := child(cursor, part)
			if next == nil {
				next = &Node{ID: cursor.ID + "/" + part, Name: part}
				cursor.Children = append(cursor.Children, next)
			}
			if i == len(parts)-1 {
				if next.Path == "" {
					next.Path = doc.Path
				}
			} else if next.Children == nil {
				next.Children = []*Node{}
			}
			cursor = next
		}
	}

	return root.Children
}

// Sort orders every level of nodes by name, case-sensitively. Folders and
// leaves are not separated.
func Sort(nodes []*Node) {
	slices.SortStableFunc(nodes, func(a, b *Node) int {
		return strings.Compare(a.Name, b.Name)
	})
	for _, n := range nodes {
		if n.Children != nil {
			Sort(n.Children)
		}
	}
}

func child(parent *Node, name string) *Node {
	for _, c := range parent.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// notesPrefix returns the slash-normalised "<root>/notes/" prefix.
func notesPrefix(vaultRoot string) string {
	root := strings.TrimRight(normalize(vaultRoot), "/")
	return root + "/" + models.NotesDir + "/"
}

// relativePath strips prefix case-insensitively. Paths outside the notes
// directory fall back to their final segment.
func relativePath(path, prefix string) string {
	normalized := normalize(path)
	if len(normalized) >= len(prefix) && strings.EqualFold(normalized[:len(prefix)], prefix) {
		return normalized[len(prefix):]
	}
	parts := segments(normalized)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func segments(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
}

func normalize(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
