// Package render turns typeset documents into PDF preview artifacts by
// running the engine toolchains installed on the host.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/glyphnote/internal/apperr"
	"github.com/starford/glyphnote/internal/models"
)

// Tools names the executables used per engine.
type Tools struct {
	Latexmk  string
	Pdflatex string
	Typst    string
}

// DefaultTools resolves binaries from PATH.
func DefaultTools() Tools {
	return Tools{Latexmk: "latexmk", Pdflatex: "pdflatex", Typst: "typst"}
}

// errToolMissing marks a binary that is not installed.
var errToolMissing = errors.New("tool not installed")

// Runner resolves and renders PDF artifacts next to their sources.
type Runner struct {
	tools   Tools
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner creates a Runner. A zero timeout disables the per-render limit.
func NewRunner(tools Tools, timeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{tools: tools, timeout: timeout, logger: logger}
}

// ArtifactPath returns <dir>/<stem>.pdf for a document path.
func ArtifactPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), stem+".pdf")
}

// ResolvePreview reports the existing PDF for path, if any.
func (r *Runner) ResolvePreview(_ context.Context, path string) (string, bool, error) {
	pdf := ArtifactPath(path)
	info, err := os.Stat(pdf)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("render: stat %s: %w", pdf, err)
	}
	if info.IsDir() {
		return "", false, nil
	}
	return pdf, true, nil
}

// RenderPreview compiles path with its engine and returns the produced PDF.
func (r *Runner) RenderPreview(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("render: note does not exist: %s: %w", path, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("render: stat %s: %w", path, err)
	}
	engine, ok := models.EngineFromPath(path)
	if !ok {
		return "", fmt.Errorf("render: unsupported note extension: %s: %w", path, apperr.ErrInvalidInput)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	pdf := ArtifactPath(path)
	outDir := filepath.Dir(path)
	start := time.Now()

	var err error
	switch engine {
	case models.EngineLatex:
		err = r.latex(ctx, path, outDir)
	case models.EngineTypst:
		_, err = r.run(ctx, r.tools.Typst, "compile", path, pdf)
	}
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(pdf); err != nil {
		return "", fmt.Errorf("render: finished but pdf not found: %s: %w", pdf, apperr.ErrNotFound)
	}
	r.logger.Debug("render: done",
		slog.String("path", path),
		slog.String("engine", string(engine)),
		slog.Duration("elapsed", time.Since(start)))
	return pdf, nil
}

// latex prefers latexmk and falls back to two pdflatex passes so references
// settle.
func (r *Runner) latex(ctx context.Context, path, outDir string) error {
	_, err := r.run(ctx, r.tools.Latexmk, "-pdf", "-interaction=nonstopmode", "-halt-on-error", "-outdir", outDir, path)
	if !errors.Is(err, errToolMissing) {
		return err
	}
	r.logger.Debug("render: latexmk missing, using pdflatex", slog.String("path", path))
	for range 2 {
		if _, err := r.run(ctx, r.tools.Pdflatex, "-interaction=nonstopmode", "-halt-on-error", "-output-directory", outDir, path); err != nil {
			return err
		}
	}
	return nil
}

// run executes bin and returns stdout. Failures carry stderr, or stdout when
// stderr is empty, since TeX reports errors on stdout.
func (r *Runner) run(ctx context.Context, bin string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("render: %s is not installed or not in PATH: %w", bin, errToolMissing)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("render: %s: %w", bin, ctxErr)
		}
		details := strings.TrimSpace(stderr.String())
		if details == "" {
			details = strings.TrimSpace(stdout.String())
		}
		if details == "" {
			return "", fmt.Errorf("render: %s exited: %w", bin, err)
		}
		return "", fmt.Errorf("render: %s failed: %s", bin, lastLines(details, 20))
	}
	return stdout.String(), nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
