package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/glyphnote/internal/apperr"
	"github.com/starford/glyphnote/internal/models"
	"github.com/starford/glyphnote/internal/settings"
	"github.com/starford/glyphnote/internal/storage"
	"github.com/starford/glyphnote/internal/tabs"
	"github.com/starford/glyphnote/internal/testutil"
	"github.com/starford/glyphnote/internal/vault"
	"github.com/starford/glyphnote/internal/workspace"
)

type env struct {
	ws     *workspace.Workspace
	pv     *testutil.Previewer
	router http.Handler
	root   string
}

// testEnv sets up a workspace over a temp directory and returns its router.
// A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string) *env {
	t.Helper()
	pv := testutil.NewPreviewer()
	ws := workspace.New(workspace.Deps{
		Store:       storage.NewFS(),
		Settings:    settings.NewMemory(),
		Preview:     pv,
		DefaultPath: vault.FixedDefault(""),
	})
	t.Cleanup(func() { _ = ws.Close() })
	return &env{
		ws:     ws,
		pv:     pv,
		router: NewRouter(ws, authToken != "", authToken, nil),
		root:   filepath.Join(t.TempDir(), "vault"),
	}
}

func (e *env) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) openVault(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/vault", VaultRequest{Path: e.root})
	if w.Code != http.StatusOK {
		t.Fatalf("open vault = %d, body = %s", w.Code, w.Body.String())
	}
}

func (e *env) create(t *testing.T, title, engine string) models.DocumentSummary {
	t.Helper()
	w := e.do(t, http.MethodPost, "/notes", CreateNoteRequest{Title: title, Engine: engine})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	var s models.DocumentSummary
	_ = json.Unmarshal(w.Body.Bytes(), &s)
	return s
}

// settled waits for the background preview resolve of a newly opened tab.
func (e *env) settled(t *testing.T) {
	t.Helper()
	testutil.Eventually(t, func() bool {
		return len(e.pv.Resolves()) > 0 && !e.ws.Preview().Resolving
	}, "preview resolve finished")
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestStateBeforeVault(t *testing.T) {
	e := testEnv(t, "")
	if err := e.ws.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w := e.do(t, http.MethodGet, "/state", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("state = %d", w.Code)
	}
	s := decode[workspace.Snapshot](t, w)
	if s.Vault != nil {
		t.Errorf("vault = %+v, want nil", s.Vault)
	}
	if !s.Dialog.Required || !s.Dialog.Open {
		t.Errorf("dialog = %+v, want open and required", s.Dialog)
	}
	if !strings.Contains(w.Body.String(), `"bootstrap":"no_vault"`) {
		t.Errorf("bootstrap state missing: %s", w.Body.String())
	}
}

func TestOpenVault(t *testing.T) {
	e := testEnv(t, "")
	e.openVault(t)

	if _, err := os.Stat(filepath.Join(e.root, models.NotesDir)); err != nil {
		t.Fatalf("notes dir not created: %v", err)
	}
	s := decode[workspace.Snapshot](t, e.do(t, http.MethodGet, "/state", nil))
	if s.Vault == nil || s.Vault.RootPath != e.root {
		t.Fatalf("vault = %+v", s.Vault)
	}
	if s.WorkspaceName != "vault" {
		t.Errorf("workspace name = %q, want vault", s.WorkspaceName)
	}
}

func TestOpenVault_Errors(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/vault", map[string]string{"path": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty path = %d, want 400", w.Code)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	w = e.do(t, http.MethodPost, "/vault", VaultRequest{Path: file})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("file as vault = %d, want 422, body = %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/vault", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

func TestSettingsDialog(t *testing.T) {
	e := testEnv(t, "")
	if err := e.ws.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodDelete, "/vault/settings", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("close required dialog = %d, want 409", w.Code)
	}

	e.openVault(t)
	w = e.do(t, http.MethodPost, "/vault/settings", nil)
	d := decode[vault.Dialog](t, w)
	if !d.Open || d.Required || d.Input != e.root {
		t.Errorf("dialog = %+v", d)
	}

	w = e.do(t, http.MethodPut, "/vault/settings/input", DialogInputRequest{Input: "/elsewhere"})
	if d := decode[vault.Dialog](t, w); d.Input != "/elsewhere" {
		t.Errorf("input = %q", d.Input)
	}

	w = e.do(t, http.MethodDelete, "/vault/settings", nil)
	if w.Code != http.StatusOK {
		t.Errorf("close optional dialog = %d", w.Code)
	}
}

func TestCreateNote(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/notes", CreateNoteRequest{Title: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("create without vault = %d, want 400", w.Code)
	}

	e.openVault(t)
	s := e.create(t, "Lecture 3", "typst")
	if filepath.Base(s.Path) != "lecture-3.typ" {
		t.Errorf("path = %q", s.Path)
	}
	if s.Engine != models.EngineTypst {
		t.Errorf("engine = %q", s.Engine)
	}

	s2 := e.create(t, "Lecture 3", "typst")
	if filepath.Base(s2.Path) != "lecture-3-2.typ" {
		t.Errorf("collision path = %q", s2.Path)
	}

	list := decode[NoteListResponse](t, e.do(t, http.MethodGet, "/notes", nil))
	if list.Total != 2 {
		t.Errorf("total = %d, want 2", list.Total)
	}

	active := decode[tabs.Tab](t, e.do(t, http.MethodGet, "/tabs/active", nil))
	if active.Path != s2.Path {
		t.Errorf("active = %q, want %q", active.Path, s2.Path)
	}
}

func TestCreateNote_Validation(t *testing.T) {
	e := testEnv(t, "")
	e.openVault(t)

	cases := []CreateNoteRequest{
		{Title: ""},
		{Title: "x", Engine: "markdown"},
		{Title: strings.Repeat("a", 201)},
	}
	for _, c := range cases {
		w := e.do(t, http.MethodPost, "/notes", c)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%+v = %d, want 400", c, w.Code)
		}
	}
}

func TestQuickCreate(t *testing.T) {
	e := testEnv(t, "")
	e.openVault(t)

	w := e.do(t, http.MethodPost, "/notes/quick", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("quick = %d, body = %s", w.Code, w.Body.String())
	}
	s := decode[models.DocumentSummary](t, w)
	if !strings.HasPrefix(filepath.Base(s.Path), "untitled-") || s.Engine != models.EngineLatex {
		t.Errorf("summary = %+v", s)
	}
}

func TestEditSaveFlow(t *testing.T) {
	e := testEnv(t, "")
	e.openVault(t)
	s := e.create(t, "Draft", "latex")

	w := e.do(t, http.MethodPut, "/tabs/active/content", ContentRequest{Content: "hello"})
	tab := decode[tabs.Tab](t, w)
	if !tab.IsDirty || tab.Content != "hello" {
		t.Fatalf("after edit = %+v", tab)
	}

	w = e.do(t, http.MethodPost, "/tabs/active/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	if tab := decode[tabs.Tab](t, w); tab.IsDirty {
		t.Error("tab still dirty after save")
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("file = %q", data)
	}

	snap := decode[workspace.Snapshot](t, e.do(t, http.MethodGet, "/state", nil))
	if snap.Status != workspace.StatusSaved {
		t.Errorf("status = %q", snap.Status)
	}
}

func TestEditWithoutActiveTab(t *testing.T) {
	e := testEnv(t, "")
	e.openVault(t)

	if w := e.do(t, http.MethodPut, "/tabs/active/content", ContentRequest{Content: "x"}); w.Code != http.StatusConflict {
		t.Errorf("edit = %d, want 409", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/tabs/active/save", nil); w.Code != http.StatusConflict {
		t.Errorf("save = %d, want 409", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/tabs/active", nil); w.Code != http.StatusNotFound {
		t.Errorf("active = %d, want 404", w.Code)
	}
}

func TestTabLifecycle(t *testing.T) {
	e := testEnv(t, "")
	e.openVault(t)
	a := e.create(t, "A", "latex")
	b := e.create(t, "B", "typst")

	w := e.do(t, http.MethodPost, "/tabs/activate", TabRequest{Path: a.Path})
	if w.Code != http.StatusOK {
		t.Fatalf("activate = %d", w.Code)
	}

	escaped := url.PathEscape(b.Path)
	w = e.do(t, http.MethodGet, "/tabs/"+escaped, nil)
	if tab := decode[tabs.Tab](t, w); tab.Path != b.Path {
		t.Errorf("get tab = %+v", tab)
	}

	w = e.do(t, http.MethodDelete, "/tabs/"+escaped, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("close = %d", w.Code)
	}
	w = e.do(t, http.MethodDelete, "/tabs/"+escaped, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("close again = %d, want 404", w.Code)
	}

	w = e.do(t, http.MethodPost, "/tabs/activate", TabRequest{Path: b.Path})
	if w.Code != http.StatusNotFound {
		t.Errorf("activate closed = %d, want 404", w.Code)
	}

	w = e.do(t, http.MethodPost, "/tabs", TabRequest{Path: b.Path})
	if w.Code != http.StatusOK {
		t.Fatalf("reopen = %d", w.Code)
	}
	snap := decode[workspace.Snapshot](t, e.do(t, http.MethodGet, "/state", nil))
	if len(snap.Tabs) != 2 || snap.ActivePath != b.Path {
		t.Errorf("tabs = %+v active = %q", snap.Tabs, snap.ActivePath)
	}
}

func TestOpenTab_NotFound(t *testing.T) {
	e := testEnv(t, "")
	e.openVault(t)
	w := e.do(t, http.MethodPost, "/tabs", TabRequest{Path: filepath.Join(e.root, "notes", "ghost.tex")})
	if w.Code != http.StatusNotFound {
		t.Errorf("open missing = %d, want 404, body = %s", w.Code, w.Body.String())
	}
}

func TestTree(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodGet, "/tree", nil)
	if !strings.Contains(w.Body.String(), `"nodes":[]`) {
		t.Errorf("empty tree = %s", w.Body.String())
	}

	e.openVault(t)
	dir := filepath.Join(e.root, "notes", "Work")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.typ"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if w := e.do(t, http.MethodPost, "/notes/refresh", nil); w.Code != http.StatusOK {
		t.Fatalf("refresh = %d", w.Code)
	}

	tree := decode[TreeResponse](t, e.do(t, http.MethodGet, "/tree", nil))
	if len(tree.Nodes) != 1 || tree.Nodes[0].Name != "Work" || len(tree.Nodes[0].Children) != 1 {
		t.Fatalf("tree = %+v", tree.Nodes)
	}
	if leaf := tree.Nodes[0].Children[0]; leaf.Name != "report.typ" || leaf.Path == "" {
		t.Errorf("leaf = %+v", leaf)
	}
}

func TestRenderAndArtifact(t *testing.T) {
	e := testEnv(t, "")
	e.openVault(t)

	if w := e.do(t, http.MethodPost, "/preview/render", nil); w.Code != http.StatusBadRequest {
		t.Errorf("render without tab = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/preview/artifact", nil); w.Code != http.StatusNotFound {
		t.Errorf("artifact without preview = %d, want 404", w.Code)
	}

	s := e.create(t, "Paper", "latex")
	e.settled(t)
	pdf := strings.TrimSuffix(s.Path, ".tex") + ".pdf"
	if err := os.WriteFile(pdf, []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodPost, "/preview/render", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("render = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[PreviewResponse](t, w); got.Artifact != pdf {
		t.Errorf("artifact = %q, want %q", got.Artifact, pdf)
	}

	w = e.do(t, http.MethodPost, "/preview/refresh", nil)
	if got := decode[PreviewResponse](t, w); got.Artifact != pdf {
		t.Errorf("refresh artifact = %q", got.Artifact)
	}

	w = e.do(t, http.MethodGet, "/preview/artifact", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("artifact = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if w.Body.String() != "%PDF-1.7" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestRender_FailureWrappingNotFoundIs422(t *testing.T) {
	e := testEnv(t, "")
	e.openVault(t)
	e.create(t, "Broken", "latex")
	e.settled(t)

	e.pv.SetRenderErr(fmt.Errorf("render: no PDF produced: %w", apperr.ErrNotFound))
	w := e.do(t, http.MethodPost, "/preview/render", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("render failure = %d, want 422, body = %s", w.Code, w.Body.String())
	}
}

func TestArtifactOutsideVault(t *testing.T) {
	e := testEnv(t, "")
	e.openVault(t)
	s := e.create(t, "Leak", "latex")
	e.settled(t)

	outside := filepath.Join(t.TempDir(), "leak.pdf")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	e.pv.SetArtifact(s.Path, outside)
	if w := e.do(t, http.MethodPost, "/preview/refresh", nil); w.Code != http.StatusOK {
		t.Fatalf("refresh = %d", w.Code)
	}

	if w := e.do(t, http.MethodGet, "/preview/artifact", nil); w.Code != http.StatusForbidden {
		t.Errorf("outside artifact = %d, want 403", w.Code)
	}
}

func TestRenameWorkspace(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodPut, "/workspace/name", WorkspaceNameRequest{Name: "Thesis"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"Thesis"`) {
		t.Fatalf("rename = %d %s", w.Code, w.Body.String())
	}
	w = e.do(t, http.MethodPut, "/workspace/name", WorkspaceNameRequest{Name: strings.Repeat("n", 121)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("long name = %d, want 400", w.Code)
	}
}

func TestAuthTokenMode(t *testing.T) {
	e := testEnv(t, "secret")

	w := e.do(t, http.MethodGet, "/state", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", rec.Code)
	}
}

func TestInsideRoot(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"/v/notes/a.pdf", true},
		{"/v/a.pdf", true},
		{"/v/../etc/passwd", false},
		{"/other/a.pdf", false},
		{"/v2/a.pdf", false},
	}
	for _, c := range cases {
		err := insideRoot("/v", c.path)
		if (err == nil) != c.ok {
			t.Errorf("insideRoot(%q) err = %v, want ok=%v", c.path, err, c.ok)
		}
	}
}
