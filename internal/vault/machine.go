// Package vault owns which vault is active, recovery of the remembered vault
// on startup, and the "select a vault" dialog gate.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starford/glyphnote/internal/apperr"
	"github.com/starford/glyphnote/internal/models"
	"github.com/starford/glyphnote/internal/settings"
)

// State is the bootstrap phase.
type State int

const (
	StateNoVault State = iota
	StateOpening
	StateReady
)

func (s State) String() string {
	switch s {
	case StateNoVault:
		return "no_vault"
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, c := range []State{StateNoVault, StateOpening, StateReady} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("vault: unknown state %q", b)
}

// Store is the slice of the document store the machine needs.
type Store interface {
	OpenOrCreateVault(ctx context.Context, path string) (models.Vault, error)
	ListDocuments(ctx context.Context, vaultRoot string) ([]models.DocumentSummary, error)
}

// DefaultPathFunc yields the platform default vault location.
type DefaultPathFunc func(ctx context.Context) (string, error)

// DocumentsDefault derives <home>/Documents/<dirName>.
func DocumentsDefault(dirName string) DefaultPathFunc {
	return func(context.Context) (string, error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Documents", dirName), nil
	}
}

// FixedDefault always suggests path.
func FixedDefault(path string) DefaultPathFunc {
	return func(context.Context) (string, error) { return path, nil }
}

// Dialog is the vault selection dialog.
type Dialog struct {
	Open     bool   `json:"open"`
	Required bool   `json:"required"`
	Input    string `json:"input"`
}

// Opened is the result of a successful open: the vault and its listing,
// always produced together.
type Opened struct {
	Vault     models.Vault
	Documents []models.DocumentSummary
}

// Snapshot is a read-only view of the machine.
type Snapshot struct {
	State      State         `json:"state"`
	Vault      *models.Vault `json:"vault"`
	Dialog     Dialog        `json:"dialog"`
	Suggested  string        `json:"suggested_path"`
	Remembered string        `json:"remembered_path"`
}

// Machine drives NoVault → Opening → Ready. It never retries on its own.
type Machine struct {
	store    Store
	settings settings.Store
	defaults DefaultPathFunc
	logger   *slog.Logger

	mu          sync.Mutex
	state       State
	vault       *models.Vault
	remembered  string
	dialog      Dialog
	inputEdited bool
	suggested   string
}

// New creates a machine in the NoVault state.
func New(store Store, prefs settings.Store, defaults DefaultPathFunc, logger *slog.Logger) *Machine {
	if defaults == nil {
		defaults = FixedDefault("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: store, settings: prefs, defaults: defaults, logger: logger}
}

// Restore reopens the remembered vault. Without one it raises the required
// dialog and returns (nil, nil). A failed reopen forgets the remembered path
// and raises the required dialog. When ctx is cancelled before the open
// completes the result is dropped and ctx.Err() returned.
func (m *Machine) Restore(ctx context.Context) (*Opened, error) {
	m.mu.Lock()
	active := m.vault != nil
	m.mu.Unlock()
	if active {
		return nil, nil
	}

	last := m.loadRemembered(ctx)
	m.refreshSuggestion(ctx)

	m.mu.Lock()
	if last == "" {
		m.dialog.Open = true
		m.dialog.Required = true
		m.mu.Unlock()
		m.logger.Info("vault: nothing remembered, selection required")
		return nil, nil
	}
	m.state = StateOpening
	m.mu.Unlock()

	m.logger.Info("vault: restoring", slog.String("path", last))
	opened, err := m.open(ctx, last)
	if ctxErr := ctx.Err(); ctxErr != nil {
		m.settle()
		return nil, ctxErr
	}
	if err != nil {
		m.logger.Warn("vault: restore failed", slog.String("path", last), slog.String("error", err.Error()))
		m.forget(ctx)
		m.refreshSuggestion(ctx)
		m.mu.Lock()
		m.settleLocked()
		m.dialog = Dialog{Open: true, Required: true, Input: m.suggested}
		m.inputEdited = false
		m.mu.Unlock()
		return nil, err
	}

	m.commit(ctx, opened)
	return opened, nil
}

// Submit opens a user-chosen path. Success remembers the path and closes the
// dialog whatever mode it was in. Failure keeps the current vault; when no
// vault is active, or the dialog was required, the dialog is forced open in
// required mode.
func (m *Machine) Submit(ctx context.Context, path string) (*Opened, error) {
	path = strings.TrimSpace(path)

	m.mu.Lock()
	required := m.dialog.Required || m.vault == nil
	m.state = StateOpening
	m.mu.Unlock()

	m.logger.Info("vault: opening", slog.String("path", path))
	opened, err := m.open(ctx, path)
	if err != nil {
		m.logger.Warn("vault: open failed", slog.String("path", path), slog.String("error", err.Error()))
		m.mu.Lock()
		m.settleLocked()
		if required {
			m.dialog.Open = true
			m.dialog.Required = true
		}
		m.mu.Unlock()
		return nil, err
	}

	m.remember(ctx, opened.Vault.RootPath)
	m.commit(ctx, opened)
	return opened, nil
}

// OpenSettings shows the dialog as optional, seeded with the active vault,
// else the remembered path, else the suggestion.
func (m *Machine) OpenSettings() {
	m.mu.Lock()
	defer m.mu.Unlock()

	input := m.suggested
	switch {
	case m.vault != nil:
		input = m.vault.RootPath
	case m.remembered != "":
		input = m.remembered
	}
	m.dialog = Dialog{Open: true, Required: false, Input: input}
	m.inputEdited = false
}

// CloseDialog hides the dialog unless it is required.
func (m *Machine) CloseDialog() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.requiredLocked() {
		return false
	}
	m.dialog.Open = false
	return true
}

// SetDialogInput records the user's in-progress path. Suggestions no longer
// overwrite it.
func (m *Machine) SetDialogInput(input string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialog.Input = input
	m.inputEdited = true
}

// Vault returns the active vault.
func (m *Machine) Vault() (models.Vault, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vault == nil {
		return models.Vault{}, false
	}
	return *m.vault, true
}

// Snapshot returns the current view of the machine.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		State:      m.state,
		Dialog:     m.dialog,
		Suggested:  m.suggested,
		Remembered: m.remembered,
	}
	s.Dialog.Required = m.requiredLocked()
	if m.vault != nil {
		v := *m.vault
		s.Vault = &v
	}
	return s
}

func (m *Machine) open(ctx context.Context, path string) (*Opened, error) {
	v, err := m.store.OpenOrCreateVault(ctx, path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrVaultOpen, err)
	}
	docs, err := m.store.ListDocuments(ctx, v.RootPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrVaultOpen, err)
	}
	v.NoteCount = len(docs)
	return &Opened{Vault: v, Documents: docs}, nil
}

func (m *Machine) commit(ctx context.Context, opened *Opened) {
	m.mu.Lock()
	v := opened.Vault
	m.vault = &v
	m.state = StateReady
	m.dialog = Dialog{Input: v.RootPath}
	m.inputEdited = false
	m.mu.Unlock()

	m.logger.Info("vault: opened",
		slog.String("path", v.RootPath),
		slog.Int("note_count", v.NoteCount))
	m.refreshSuggestion(ctx)
}

// refreshSuggestion recomputes the suggested path: active vault, then the
// remembered path, then the platform default.
func (m *Machine) refreshSuggestion(ctx context.Context) {
	m.mu.Lock()
	var candidate string
	switch {
	case m.vault != nil:
		candidate = m.vault.RootPath
	case m.remembered != "":
		candidate = m.remembered
	}
	m.mu.Unlock()

	if candidate == "" {
		p, err := m.defaults(ctx)
		if err != nil {
			m.logger.Debug("vault: no default path", slog.String("error", err.Error()))
			p = ""
		}
		candidate = p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.suggested = candidate
	if m.dialog.Input == "" && !m.inputEdited {
		m.dialog.Input = candidate
	}
}

func (m *Machine) loadRemembered(ctx context.Context) string {
	v, ok, err := m.settings.Get(ctx, settings.KeyLastVaultPath)
	if err != nil {
		m.logger.Warn("vault: read remembered path failed", slog.String("error", err.Error()))
	}
	v = strings.TrimSpace(v)
	if !ok {
		v = ""
	}
	m.mu.Lock()
	m.remembered = v
	m.mu.Unlock()
	return v
}

func (m *Machine) remember(ctx context.Context, path string) {
	if err := m.settings.Set(ctx, settings.KeyLastVaultPath, path); err != nil {
		m.logger.Warn("vault: persist remembered path failed", slog.String("error", err.Error()))
	}
	m.mu.Lock()
	m.remembered = path
	m.mu.Unlock()
}

func (m *Machine) forget(ctx context.Context) {
	if err := m.settings.Delete(ctx, settings.KeyLastVaultPath); err != nil {
		m.logger.Warn("vault: clear remembered path failed", slog.String("error", err.Error()))
	}
	m.mu.Lock()
	m.remembered = ""
	m.mu.Unlock()
}

func (m *Machine) settle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settleLocked()
}

// settleLocked leaves Opening for whichever resting state matches the vault.
func (m *Machine) settleLocked() {
	if m.vault != nil {
		m.state = StateReady
	} else {
		m.state = StateNoVault
	}
}

func (m *Machine) requiredLocked() bool {
	return m.dialog.Required || m.vault == nil
}
