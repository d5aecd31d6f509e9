package testutil

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/starford/glyphnote/internal/apperr"
	"github.com/starford/glyphnote/internal/models"
	"github.com/starford/glyphnote/internal/storage"
)

var _ storage.Provider = (*MemoryStore)(nil)

// MemoryStore is an in-memory storage.Provider. Vault paths listed in
// Vaults open successfully; any other path fails unless AllowAny is set.
// Gates, when set, block the matching call until closed.
type MemoryStore struct {
	mu sync.Mutex

	AllowAny bool
	Vaults   map[string]bool
	Docs     map[string]models.Document
	Times    map[string]int64

	FailRead map[string]error
	FailSave map[string]error
	FailList error

	ReadGate map[string]chan struct{}
	SaveGate chan struct{}

	Saved   []string
	created int
}

// NewMemoryStore returns a store that accepts the given vault roots.
func NewMemoryStore(vaults ...string) *MemoryStore {
	m := &MemoryStore{
		Vaults:   map[string]bool{},
		Docs:     map[string]models.Document{},
		Times:    map[string]int64{},
		FailRead: map[string]error{},
		FailSave: map[string]error{},
		ReadGate: map[string]chan struct{}{},
	}
	for _, v := range vaults {
		m.Vaults[v] = true
	}
	return m
}

// Put adds a document under vaultRoot/notes/rel and returns its path.
func (m *MemoryStore) Put(vaultRoot, rel, content string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := path.Join(vaultRoot, models.NotesDir, rel)
	engine, _ := models.EngineFromPath(p)
	base := path.Base(p)
	m.Docs[p] = models.Document{
		Path:    p,
		Title:   strings.TrimSuffix(base, path.Ext(base)),
		Engine:  engine,
		Content: content,
	}
	m.Times[p] = int64(len(m.Docs))
	return p
}

// Content returns the stored content of path.
func (m *MemoryStore) Content(p string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Docs[p].Content
}

func (m *MemoryStore) OpenOrCreateVault(ctx context.Context, root string) (models.Vault, error) {
	if err := ctx.Err(); err != nil {
		return models.Vault{}, err
	}
	if strings.TrimSpace(root) == "" {
		return models.Vault{}, fmt.Errorf("memory: vault path is required: %w", apperr.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.AllowAny && !m.Vaults[root] {
		return models.Vault{}, fmt.Errorf("memory: open vault %s: %w", root, errors.New("permission denied"))
	}
	return models.Vault{RootPath: root, NoteCount: m.countLocked(root)}, nil
}

func (m *MemoryStore) ListDocuments(ctx context.Context, root string) ([]models.DocumentSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailList != nil {
		return nil, m.FailList
	}
	prefix := path.Join(root, models.NotesDir) + "/"
	var out []models.DocumentSummary
	for p, d := range m.Docs {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		s := d.Summary()
		ts := m.Times[p]
		s.UpdatedAtUnix = &ts
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	storage.SortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) CreateDocument(ctx context.Context, root, title string, engine models.Engine) (models.DocumentSummary, error) {
	if err := ctx.Err(); err != nil {
		return models.DocumentSummary{}, err
	}
	if strings.TrimSpace(title) == "" {
		return models.DocumentSummary{}, fmt.Errorf("memory: title is required: %w", apperr.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	slug := storage.Slugify(title)
	p := path.Join(root, models.NotesDir, slug+"."+engine.Extension())
	for i := 2; m.hasLocked(p); i++ {
		p = path.Join(root, models.NotesDir, fmt.Sprintf("%s-%d.%s", slug, i, engine.Extension()))
	}
	d := models.Document{Path: p, Title: title, Engine: engine, Content: storage.Template(title, engine)}
	m.Docs[p] = d
	m.Times[p] = int64(1000 + m.created)
	return d.Summary(), nil
}

func (m *MemoryStore) ReadDocument(ctx context.Context, p string) (models.Document, error) {
	m.mu.Lock()
	gate := m.ReadGate[p]
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Document{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailRead[p]; err != nil {
		return models.Document{}, err
	}
	d, ok := m.Docs[p]
	if !ok {
		return models.Document{}, fmt.Errorf("memory: read %s: %w", p, apperr.ErrNotFound)
	}
	return d, nil
}

func (m *MemoryStore) SaveDocument(ctx context.Context, p, content string) error {
	m.mu.Lock()
	gate := m.SaveGate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailSave[p]; err != nil {
		return err
	}
	d, ok := m.Docs[p]
	if !ok {
		return fmt.Errorf("memory: save %s: %w", p, apperr.ErrNotFound)
	}
	d.Content = content
	m.Docs[p] = d
	m.Saved = append(m.Saved, p)
	return nil
}

// SavedPaths returns the paths saved so far, in order.
func (m *MemoryStore) SavedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Saved...)
}

func (m *MemoryStore) hasLocked(p string) bool {
	_, ok := m.Docs[p]
	return ok
}

func (m *MemoryStore) countLocked(root string) int {
	prefix := path.Join(root, models.NotesDir) + "/"
	n := 0
	for p := range m.Docs {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

// Previewer is a preview.Resolver and preview.Renderer double. Artifacts maps
// document path to its existing artifact.
type Previewer struct {
	mu sync.Mutex

	Artifacts    map[string]string
	ResolveGate  map[string]chan struct{}
	RenderErr    error
	ResolveCalls []string
	RenderCalls  []string
}

// NewPreviewer returns a previewer with no artifacts.
func NewPreviewer() *Previewer {
	return &Previewer{Artifacts: map[string]string{}, ResolveGate: map[string]chan struct{}{}}
}

func (p *Previewer) ResolvePreview(ctx context.Context, doc string) (string, bool, error) {
	p.mu.Lock()
	p.ResolveCalls = append(p.ResolveCalls, doc)
	gate := p.ResolveGate[doc]
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.Artifacts[doc]
	return a, ok, nil
}

func (p *Previewer) RenderPreview(ctx context.Context, doc string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RenderCalls = append(p.RenderCalls, doc)
	if p.RenderErr != nil {
		return "", p.RenderErr
	}
	a := strings.TrimSuffix(doc, path.Ext(doc)) + ".pdf"
	p.Artifacts[doc] = a
	return a, nil
}

// Resolves returns the paths passed to ResolvePreview so far.
func (p *Previewer) Resolves() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ResolveCalls...)
}

// Renders returns the paths passed to RenderPreview so far.
func (p *Previewer) Renders() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.RenderCalls...)
}

// GateResolve makes ResolvePreview for doc block until the returned channel
// is closed.
func (p *Previewer) GateResolve(doc string) chan struct{} {
	ch := make(chan struct{})
	p.mu.Lock()
	p.ResolveGate[doc] = ch
	p.mu.Unlock()
	return ch
}

// SetArtifact records an existing artifact for doc.
func (p *Previewer) SetArtifact(doc, artifact string) {
	p.mu.Lock()
	p.Artifacts[doc] = artifact
	p.mu.Unlock()
}

// SetRenderErr makes RenderPreview fail with err.
func (p *Previewer) SetRenderErr(err error) {
	p.mu.Lock()
	p.RenderErr = err
	p.mu.Unlock()
}

// GateSave makes SaveDocument block until the returned channel is closed.
func (m *MemoryStore) GateSave() chan struct{} {
	ch := make(chan struct{})
	m.mu.Lock()
	m.SaveGate = ch
	m.mu.Unlock()
	return ch
}

// FailSaveWith makes SaveDocument of p fail with err.
func (m *MemoryStore) FailSaveWith(p string, err error) {
	m.mu.Lock()
	m.FailSave[p] = err
	m.mu.Unlock()
}
