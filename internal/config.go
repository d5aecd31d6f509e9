package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Vault     VaultConfig       `yaml:"vault"`
	Settings  SettingsConfig    `yaml:"settings"`
	Render    RenderConfig      `yaml:"render"`
	Preview   PreviewConfig     `yaml:"preview"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if err := c.Render.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig controls the vault path suggested to the user.
//
// DefaultPath, when set, replaces the platform suggestion
// (<home>/Documents/<DefaultDirName>).
type VaultConfig struct {
	DefaultPath    string `yaml:"default_path"`
	DefaultDirName string `yaml:"default_dir_name"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultDirName, validation.Required),
	)
}

// SettingsConfig holds the SQLite file for remembered settings.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the settings configuration.
func (c *SettingsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RenderConfig holds the typesetting binaries and the per-render timeout.
type RenderConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Latexmk  string        `yaml:"latexmk"`
	Pdflatex string        `yaml:"pdflatex"`
	Typst    string        `yaml:"typst"`
}

// Validate validates the render configuration.
func (c *RenderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Latexmk, validation.Required),
		validation.Field(&c.Pdflatex, validation.Required),
		validation.Field(&c.Typst, validation.Required),
	)
}

// PreviewConfig controls preview bookkeeping.
//
// SequenceRequests makes a preview completion count only when it belongs to
// the most recently started resolve or render. Off by default: the last
// call to complete wins.
type PreviewConfig struct {
	SequenceRequests bool `yaml:"sequence_requests"`
}

// WorkspaceConfig holds workspace presentation defaults.
type WorkspaceConfig struct {
	DefaultName string `yaml:"default_name"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			DefaultDirName: "GlyphVault",
		},
		Settings: SettingsConfig{
			Path: "./glyphnote.db",
		},
		Render: RenderConfig{
			Timeout:  2 * time.Minute,
			Latexmk:  "latexmk",
			Pdflatex: "pdflatex",
			Typst:    "typst",
		},
		Workspace: WorkspaceConfig{
			DefaultName: "Workspace",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
