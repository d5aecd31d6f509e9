// Package workspace composes the tree builder, tab session, vault bootstrap,
// and preview coordinator behind one set of user intents and a single status
// line.
package workspace

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/glyphnote/internal/models"
	"github.com/starford/glyphnote/internal/preview"
	"github.com/starford/glyphnote/internal/settings"
	"github.com/starford/glyphnote/internal/storage"
	"github.com/starford/glyphnote/internal/tabs"
	"github.com/starford/glyphnote/internal/vault"
)

// Status line texts.
const (
	StatusReady        = "Ready"
	StatusOpeningVault = "Opening vault..."
	StatusVaultOpened  = "Vault opened"
	StatusRefreshing   = "Refreshing notes..."
	StatusCreating     = "Creating note..."
	StatusCreated      = "Note created"
	StatusLoading      = "Loading note..."
	StatusLoaded       = "Note loaded"
	StatusSaving       = "Saving note..."
	StatusSaved        = "Saved"
	StatusRendering    = "Rendering PDF..."
	StatusRendered     = "Rendered"
)

// DefaultName is the workspace display name used until one is chosen.
const DefaultName = "Workspace"

// Previewer resolves and renders preview artifacts.
type Previewer interface {
	preview.Resolver
	preview.Renderer
}

// Deps are the collaborators a Workspace drives.
type Deps struct {
	Store       storage.Provider
	Settings    settings.Store
	Preview     Previewer
	DefaultPath vault.DefaultPathFunc
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithEventSink publishes workspace events to sink.
func WithEventSink(sink EventSink) Option {
	return func(w *Workspace) { w.sink = sink }
}

// WithClock replaces time.Now for generated note titles.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// WithDefaultName sets the display name used until the user picks one.
func WithDefaultName(name string) Option {
	return func(w *Workspace) {
		if strings.TrimSpace(name) != "" {
			w.defaultName = name
		}
	}
}

// WithPreviewSequencing makes preview completions obey call order.
func WithPreviewSequencing() Option {
	return func(w *Workspace) { w.sequencePreview = true }
}

// Workspace is the session controller. State mutation is serialised by mu,
// which is never held across a collaborator call.
type Workspace struct {
	store    storage.Provider
	prefs    settings.Store
	boot     *vault.Machine
	pv       *preview.Coordinator
	renderer preview.Renderer
	sink     EventSink
	logger   *slog.Logger
	now      func() time.Time

	defaultName     string
	sequencePreview bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	tabs   *tabs.Session
	docs   []models.DocumentSummary
	epoch  uint64
	status string
	busy   int
	name   string
}

// New wires a Workspace over deps.
func New(deps Deps, opts ...Option) *Workspace {
	w := &Workspace{
		store:       deps.Store,
		prefs:       deps.Settings,
		renderer:    deps.Preview,
		sink:        nopSink{},
		logger:      slog.Default(),
		now:         time.Now,
		defaultName: DefaultName,
		tabs:        tabs.New(),
		status:      StatusReady,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.group = &errgroup.Group{}
	w.boot = vault.New(deps.Store, deps.Settings, deps.DefaultPath, w.logger)

	pvOpts := []preview.Option{preview.WithOnChange(func(s preview.State) {
		w.emit(EventPreviewChanged, s)
	})}
	if w.sequencePreview {
		pvOpts = append(pvOpts, preview.WithSequencing())
	}
	w.pv = preview.New(deps.Preview, deps.Preview, pvOpts...)
	return w
}

// Start loads the display name and restores the remembered vault. Without a
// remembered vault the required dialog is raised and Start returns nil.
func (w *Workspace) Start(ctx context.Context) error {
	ctx, cancel := w.bind(ctx)
	defer cancel()

	w.loadName(ctx)

	done := w.begin(StatusOpeningVault)
	defer done()

	opened, err := w.boot.Restore(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.fail(err)
		w.emitDialog()
		return err
	}
	if opened == nil {
		w.setStatus(StatusReady)
		w.emitDialog()
		return nil
	}
	w.applyVault(opened)
	return nil
}

// Close cancels in-flight work and waits for background preview tasks.
// Completions arriving afterwards are dropped.
func (w *Workspace) Close() error {
	w.cancel()
	return w.group.Wait()
}

// SubmitVaultPath opens the vault at path and makes it active. The previous
// vault stays active when the open fails.
func (w *Workspace) SubmitVaultPath(ctx context.Context, path string) (models.Vault, error) {
	ctx, cancel := w.bind(ctx)
	defer cancel()

	done := w.begin(StatusOpeningVault)
	defer done()

	opened, err := w.boot.Submit(ctx, path)
	if err != nil {
		w.fail(err)
		w.emitDialog()
		return models.Vault{}, err
	}
	w.applyVault(opened)
	return opened.Vault, nil
}

// OpenSettings shows the vault dialog as optional settings.
func (w *Workspace) OpenSettings() {
	w.boot.OpenSettings()
	w.emitDialog()
}

// CloseDialog hides the vault dialog. It reports false while the dialog is
// required.
func (w *Workspace) CloseDialog() bool {
	ok := w.boot.CloseDialog()
	if ok {
		w.emitDialog()
	}
	return ok
}

// SetDialogInput records the path typed into the vault dialog.
func (w *Workspace) SetDialogInput(input string) {
	w.boot.SetDialogInput(input)
}

// Vault returns the active vault.
func (w *Workspace) Vault() (models.Vault, bool) {
	v, ok := w.boot.Vault()
	if !ok {
		return v, false
	}
	w.mu.Lock()
	v.NoteCount = len(w.docs)
	w.mu.Unlock()
	return v, true
}

// applyVault installs a freshly opened vault. Open tabs, the active tab, and
// the preview reference are dropped whatever their dirty state.
func (w *Workspace) applyVault(opened *vault.Opened) {
	w.mu.Lock()
	w.epoch++
	w.docs = opened.Documents
	discarded := w.tabs.Dirty()
	w.tabs.Reset()
	w.mu.Unlock()

	if len(discarded) > 0 {
		w.logger.Warn("workspace: unsaved tabs discarded by vault switch",
			slog.String("vault", opened.Vault.RootPath),
			slog.Any("paths", discarded))
	}
	w.pv.Clear()
	w.setStatus(StatusVaultOpened)

	v := opened.Vault
	v.NoteCount = len(opened.Documents)
	w.emit(EventVaultOpened, v)
	w.emit(EventNotesRefreshed, w.Documents())
	w.emitTabs()
	w.emitDialog()
}

// SetWorkspaceName persists the display name. A blank name restores the
// default.
func (w *Workspace) SetWorkspaceName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	var err error
	if name == "" {
		err = w.prefs.Delete(ctx, settings.KeyWorkspaceName)
	} else {
		err = w.prefs.Set(ctx, settings.KeyWorkspaceName, name)
	}
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.name = name
	w.mu.Unlock()
	w.emit(EventWorkspaceRenamed, map[string]string{"name": w.WorkspaceName()})
	return nil
}

// WorkspaceName returns the display name. While the name is blank or still
// the default and a vault is active, the vault folder name is used.
func (w *Workspace) WorkspaceName() string {
	w.mu.Lock()
	name := w.name
	w.mu.Unlock()

	if name != "" && name != w.defaultName {
		return name
	}
	if v, ok := w.boot.Vault(); ok {
		base := filepath.Base(filepath.Clean(v.RootPath))
		if base != "." && base != string(filepath.Separator) && base != "" {
			return base
		}
	}
	return w.defaultName
}

func (w *Workspace) loadName(ctx context.Context) {
	name, ok, err := w.prefs.Get(ctx, settings.KeyWorkspaceName)
	if err != nil {
		w.logger.Warn("workspace: read name failed", slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}
	w.mu.Lock()
	w.name = strings.TrimSpace(name)
	w.mu.Unlock()
}

// bind derives a context that is also cancelled when the workspace closes.
func (w *Workspace) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(w.ctx, cancel)
	if w.ctx.Err() != nil {
		cancel()
	}
	return ctx, func() {
		stop()
		cancel()
	}
}

// begin marks an operation in flight and shows status. The returned func
// ends it.
func (w *Workspace) begin(status string) func() {
	w.mu.Lock()
	w.busy++
	w.status = status
	w.mu.Unlock()
	w.emitStatus()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			w.busy--
			w.mu.Unlock()
		})
	}
}

func (w *Workspace) setStatus(status string) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
	w.emitStatus()
}

// fail shows err on the status line.
func (w *Workspace) fail(err error) {
	w.logger.Warn("workspace: operation failed", slog.String("error", err.Error()))
	w.setStatus(err.Error())
}

// current reports whether epoch still names the active vault generation.
func (w *Workspace) current(epoch uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.epoch == epoch && w.ctx.Err() == nil
}
