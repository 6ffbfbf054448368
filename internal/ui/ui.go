// Package ui renders activity records, taxonomy summaries and search hits
// for the terminal.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Config configures a Printer.
type Config struct {
	Output     io.Writer
	NoColor    bool
	Heartbeats bool // print heartbeat comments
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithHeartbeats prints heartbeat frames too.
func WithHeartbeats(show bool) ConfigOption {
	return func(c *Config) {
		c.Heartbeats = show
	}
}

// NewConfig creates a Config for output. Color is turned off for non
// terminals, in CI and when NO_COLOR is set.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output:  output,
		NoColor: !IsTTY(output) || DetectNoColor() || DetectCI(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
