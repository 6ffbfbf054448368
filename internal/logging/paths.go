package logging

import (
	"os"
	"path/filepath"
)

// StateDir returns ~/.kbpulse, falling back to the temp dir when the home
// directory is unavailable.
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".kbpulse")
	}
	return filepath.Join(home, ".kbpulse")
}

// DefaultLogDir returns the default log directory (~/.kbpulse/logs/).
func DefaultLogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
