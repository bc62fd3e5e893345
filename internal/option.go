package internal

import (
	"io"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	// out receives command output (tree tables, exported documents).
	out io.Writer
	// logOut receives the JSON log; the MCP command keeps stdout for the protocol.
	logOut io.Writer
}

func newApplication(opts []Option) *application {
	app := &application{out: os.Stdout, logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput sets the writer for command output.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithLogOutput sets the writer for the JSON log.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}
