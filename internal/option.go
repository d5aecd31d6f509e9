package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	mcp     bool
	version string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMCPStdio additionally serves the MCP tools over stdin/stdout. Logs
// move to stderr so stdout carries only JSON-RPC.
func WithMCPStdio(enabled bool) Option {
	return func(a *application) {
		a.mcp = enabled
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
