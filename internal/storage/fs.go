package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/starford/glyphnote/internal/apperr"
	"github.com/starford/glyphnote/internal/models"
)

// FS implements Provider backed by the local file system.
type FS struct{}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)

// NewFS creates a file-system document store.
func NewFS() *FS {
	return &FS{}
}

// OpenOrCreateVault creates the vault root and its notes directory when
// missing and reports the number of documents inside.
func (f *FS) OpenOrCreateVault(ctx context.Context, path string) (models.Vault, error) {
	if strings.TrimSpace(path) == "" {
		return models.Vault{}, fmt.Errorf("storage: vault path must not be empty: %w", apperr.ErrInvalidInput)
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return models.Vault{}, fmt.Errorf("storage: resolve vault root: %w", err)
	}
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return models.Vault{}, fmt.Errorf("storage: vault root is not a directory: %s: %w", root, apperr.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Join(root, models.NotesDir), 0o755); err != nil {
		return models.Vault{}, fmt.Errorf("storage: create vault: %w", err)
	}
	docs, err := f.ListDocuments(ctx, root)
	if err != nil {
		return models.Vault{}, err
	}
	return models.Vault{RootPath: root, NoteCount: len(docs)}, nil
}

// ListDocuments walks <vaultRoot>/notes and returns a summary for every
// .tex and .typ file, most recently modified first.
func (f *FS) ListDocuments(ctx context.Context, vaultRoot string) ([]models.DocumentSummary, error) {
	info, err := os.Stat(vaultRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: vault does not exist: %s: %w", vaultRoot, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: stat vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: vault root is not a directory: %s: %w", vaultRoot, apperr.ErrInvalidInput)
	}
	notesDir := filepath.Join(vaultRoot, models.NotesDir)
	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create notes dir: %w", err)
	}

	out := []models.DocumentSummary{}
	err = filepath.WalkDir(notesDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := models.EngineFromPath(p); !ok {
			return nil
		}
		s, err := summarize(p)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	SortNewestFirst(out)
	return out, nil
}

// CreateDocument writes a new document under <vaultRoot>/notes named after a
// slug of title. Taken names get a -2, -3, ... suffix.
func (f *FS) CreateDocument(_ context.Context, vaultRoot, title string, engine models.Engine) (models.DocumentSummary, error) {
	clean := strings.TrimSpace(title)
	if clean == "" {
		return models.DocumentSummary{}, fmt.Errorf("storage: title must not be empty: %w", apperr.ErrInvalidInput)
	}
	engine, err := models.ParseEngine(string(engine))
	if err != nil {
		return models.DocumentSummary{}, fmt.Errorf("storage: %w", err)
	}

	notesDir := filepath.Join(vaultRoot, models.NotesDir)
	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		return models.DocumentSummary{}, fmt.Errorf("storage: create notes dir: %w", err)
	}

	slug := Slugify(clean)
	candidate := filepath.Join(notesDir, slug+"."+engine.Extension())
	for i := 2; exists(candidate); i++ {
		candidate = filepath.Join(notesDir, fmt.Sprintf("%s-%d.%s", slug, i, engine.Extension()))
	}

	if err := writeAtomic(candidate, []byte(Template(clean, engine))); err != nil {
		return models.DocumentSummary{}, err
	}
	return summarize(candidate)
}

// ReadDocument returns the document at path.
func (f *FS) ReadDocument(_ context.Context, path string) (models.Document, error) {
	if err := checkDocument(path); err != nil {
		return models.Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("storage: read %s: %w", path, err)
	}
	s, err := summarize(path)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{Path: s.Path, Title: s.Title, Engine: s.Engine, Content: string(data)}, nil
}

// SaveDocument atomically replaces the content of an existing document.
func (f *FS) SaveDocument(_ context.Context, path, content string) error {
	if err := checkDocument(path); err != nil {
		return err
	}
	return writeAtomic(path, []byte(content))
}

// SortNewestFirst orders summaries by modification time, newest first.
// Missing timestamps count as zero.
func SortNewestFirst(docs []models.DocumentSummary) {
	slices.SortStableFunc(docs, func(a, b models.DocumentSummary) int {
		return cmp.Compare(unixOrZero(b.UpdatedAtUnix), unixOrZero(a.UpdatedAtUnix))
	})
}

// checkDocument rejects paths that are not existing typeset sources, so the
// store never reads or overwrites arbitrary files.
func checkDocument(path string) error {
	if _, ok := models.EngineFromPath(path); !ok {
		return fmt.Errorf("storage: unsupported document extension: %s: %w", path, apperr.ErrInvalidInput)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: note does not exist: %s: %w", path, apperr.ErrNotFound)
		}
		return fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("storage: note is a directory: %s: %w", path, apperr.ErrInvalidInput)
	}
	return nil
}

func summarize(path string) (models.DocumentSummary, error) {
	engine, ok := models.EngineFromPath(path)
	if !ok {
		return models.DocumentSummary{}, fmt.Errorf("storage: unsupported document extension: %s: %w", path, apperr.ErrInvalidInput)
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if title == "" {
		title = "untitled"
	}
	s := models.DocumentSummary{Path: path, Title: title, Engine: engine}
	if info, err := os.Stat(path); err == nil {
		ts := info.ModTime().Unix()
		s.UpdatedAtUnix = &ts
	}
	return s, nil
}

// writeAtomic writes content: tmp file → fsync → rename.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".glyphnote-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Slugify folds title to a lowercase ASCII file stem. Accents are stripped,
// runs of spaces, dashes and underscores collapse to one dash, anything else
// is dropped. An empty result becomes "note".
func Slugify(title string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "note"
	}
	return slug
}

// Template returns the starter source for a new document.
func Template(title string, engine models.Engine) string {
	switch engine {
	case models.EngineLatex:
		return "\\documentclass{article}\n" +
			"\\usepackage{amsmath,amssymb,amsthm}\n\n" +
			"\\title{" + title + "}\n" +
			"\\begin{document}\n" +
			"\\maketitle\n\n" +
			"% Start writing here\n\n" +
			"\\end{document}\n"
	case models.EngineTypst:
		return "#set document(title: \"" + strings.ReplaceAll(title, "\"", "\\\"") + "\")\n\n" +
			"= " + title + "\n\n" +
			"// Start writing here\n"
	default:
		panic(fmt.Sprintf("storage: unknown engine %q", string(engine)))
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func unixOrZero(ts *int64) int64 {
	if ts == nil {
		return 0
	}
	return *ts
}
