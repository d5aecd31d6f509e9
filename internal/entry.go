// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/glyphnote/internal/api"
	"github.com/starford/glyphnote/internal/mcpserver"
	"github.com/starford/glyphnote/internal/render"
	"github.com/starford/glyphnote/internal/settings"
	"github.com/starford/glyphnote/internal/sse"
	"github.com/starford/glyphnote/internal/storage"
	"github.com/starford/glyphnote/internal/vault"
	"github.com/starford/glyphnote/internal/workspace"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. MCP stdio owns stdout.
	var logOut io.Writer = os.Stdout
	if app.mcp {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("settings_path", cfg.Settings.Path),
		slog.String("default_vault_path", cfg.Vault.DefaultPath),
		slog.Bool("preview_sequencing", cfg.Preview.SequenceRequests),
		slog.Bool("mcp_stdio", app.mcp),
		slog.String("log_level", cfg.App.LogLevel.String()))

	prefs, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return fmt.Errorf("init settings: %w", err)
	}
	defer prefs.Close()

	defaultPath := vault.DocumentsDefault(cfg.Vault.DefaultDirName)
	if cfg.Vault.DefaultPath != "" {
		defaultPath = vault.FixedDefault(cfg.Vault.DefaultPath)
	}

	runner := render.NewRunner(render.Tools{
		Latexmk:  cfg.Render.Latexmk,
		Pdflatex: cfg.Render.Pdflatex,
		Typst:    cfg.Render.Typst,
	}, cfg.Render.Timeout, logger)

	// SSE broker. Late clients get the current workspace state replayed.
	broker := sse.NewBroker(2*time.Second,
		sse.WithReplay(
			workspace.EventVaultOpened,
			workspace.EventNotesRefreshed,
			workspace.EventTabsChanged,
			workspace.EventPreviewChanged,
			workspace.EventDialogChanged,
			workspace.EventWorkspaceRenamed,
			workspace.EventStatus,
		),
		sse.WithHeartbeat(30*time.Second),
	)
	defer broker.Close()

	wsOpts := []workspace.Option{
		workspace.WithLogger(logger),
		workspace.WithEventSink(broker),
		workspace.WithDefaultName(cfg.Workspace.DefaultName),
	}
	if cfg.Preview.SequenceRequests {
		wsOpts = append(wsOpts, workspace.WithPreviewSequencing())
	}
	ws := workspace.New(workspace.Deps{
		Store:       storage.NewFS(),
		Settings:    prefs,
		Preview:     runner,
		DefaultPath: defaultPath,
	}, wsOpts...)
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Warn("workspace close failed", slog.String("error", err.Error()))
		}
	}()

	if err := ws.Start(ctx); err != nil {
		logger.Warn("vault restore failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(ws, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, ok := ws.Vault(); !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no_vault"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// MCP over stdio ends when the client closes stdin; the app stops with it.
	if app.mcp {
		mcpSrv := mcpserver.New(ws, app.version)
		g.Go(func() error {
			logger.Info("Starting MCP stdio server")
			defer stop()
			if err := mcpSrv.ServeStdio(); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
