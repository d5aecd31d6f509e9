package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/glyphnote/internal"
	pkgconfig "github.com/starford/glyphnote/pkg/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func run(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	err := pkgconfig.Load(configPath, cfg)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !cmd.IsSet("config"):
		// No config file at the default location: run on defaults.
		if err := pkgconfig.Validate(cfg); err != nil {
			return fmt.Errorf("failed to validate default config: %w", err)
		}
	default:
		return fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithMCPStdio(cmd.Bool("mcp")),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "glyphnote",
		Usage:   "Workspace controller for LaTeX and Typst note vaults with PDF preview",
		Version: version,
		Action:  run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.BoolFlag{
				Name:    "mcp",
				Usage:   "Also serve MCP tools over stdin/stdout",
				Sources: cli.EnvVars("APP_MCP_STDIO"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
