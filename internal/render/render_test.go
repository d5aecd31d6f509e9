package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/starford/glyphnote/internal/apperr"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}

// fakeTool writes an executable shell script standing in for an engine binary.
func fakeTool(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools need a POSIX shell")
	}
	p := filepath.Join(t.TempDir(), name)
	writeFile(t, p, "#!/bin/sh\n"+body+"\n", 0o755)
	return p
}

func TestArtifactPath(t *testing.T) {
	got := ArtifactPath(filepath.Join("v", "notes", "calc.tex"))
	want := filepath.Join("v", "notes", "calc.pdf")
	if got != want {
		t.Errorf("ArtifactPath = %q, want %q", got, want)
	}
}

func TestResolvePreview(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.typ")
	writeFile(t, src, "= A", 0o644)
	r := NewRunner(DefaultTools(), 0, nil)

	if _, ok, err := r.ResolvePreview(context.Background(), src); err != nil || ok {
		t.Fatalf("before render: ok=%v err=%v", ok, err)
	}

	writeFile(t, filepath.Join(dir, "a.pdf"), "%PDF", 0o644)
	got, ok, err := r.ResolvePreview(context.Background(), src)
	if err != nil || !ok || got != filepath.Join(dir, "a.pdf") {
		t.Errorf("ResolvePreview = %q, %v, %v", got, ok, err)
	}
}

func TestRenderPreview_Typst(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ring.typ")
	writeFile(t, src, "= Ring", 0o644)
	typst := fakeTool(t, "typst", `echo "%PDF" > "$3"`)

	r := NewRunner(Tools{Typst: typst}, 5*time.Second, nil)
	got, err := r.RenderPreview(context.Background(), src)
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	if got != filepath.Join(dir, "ring.pdf") {
		t.Errorf("artifact = %q", got)
	}
}

func TestRenderPreview_LatexFallsBackToPdflatex(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "calc.tex")
	writeFile(t, src, `\documentclass{article}`, 0o644)
	counter := filepath.Join(dir, "passes")
	pdflatex := fakeTool(t, "pdflatex", `echo pass >> "`+counter+`"; echo "%PDF" > "$4/calc.pdf"`)

	r := NewRunner(Tools{Latexmk: filepath.Join(dir, "no-latexmk"), Pdflatex: pdflatex}, 5*time.Second, nil)
	if _, err := r.RenderPreview(context.Background(), src); err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	data, _ := os.ReadFile(counter)
	if n := strings.Count(string(data), "pass"); n != 2 {
		t.Errorf("pdflatex passes = %d, want 2", n)
	}
}

func TestRenderPreview_ToolFailureCarriesOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.typ")
	writeFile(t, src, "#oops", 0o644)
	typst := fakeTool(t, "typst", `echo "error: unknown variable oops" >&2; exit 1`)

	r := NewRunner(Tools{Typst: typst}, 5*time.Second, nil)
	_, err := r.RenderPreview(context.Background(), src)
	if err == nil || !strings.Contains(err.Error(), "unknown variable oops") {
		t.Errorf("err = %v", err)
	}
}

func TestRenderPreview_NoArtifactProduced(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "quiet.typ")
	writeFile(t, src, "= Q", 0o644)
	typst := fakeTool(t, "typst", `exit 0`)

	r := NewRunner(Tools{Typst: typst}, 5*time.Second, nil)
	if _, err := r.RenderPreview(context.Background(), src); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestRenderPreview_MissingToolIsReadable(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.typ")
	writeFile(t, src, "= A", 0o644)

	r := NewRunner(Tools{Typst: filepath.Join(dir, "typst-missing")}, 0, nil)
	_, err := r.RenderPreview(context.Background(), src)
	if err == nil || !strings.Contains(err.Error(), "not installed") {
		t.Errorf("err = %v", err)
	}
}

func TestRenderPreview_RejectsUnknownInputs(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(DefaultTools(), 0, nil)

	if _, err := r.RenderPreview(context.Background(), filepath.Join(dir, "ghost.tex")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing source err = %v", err)
	}
	txt := filepath.Join(dir, "plain.txt")
	writeFile(t, txt, "x", 0o644)
	if _, err := r.RenderPreview(context.Background(), txt); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unsupported source err = %v", err)
	}
}
