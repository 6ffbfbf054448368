package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// isolate points HOME and the user config at empty temp dirs and clears
// KBPULSE_* overrides.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	for _, key := range []string{
		"KBPULSE_CONTENT_ROOT", "KBPULSE_ADDR", "KBPULSE_LOG_LEVEL",
		"KBPULSE_HEARTBEAT_INTERVAL", "KBPULSE_BACKLOG_SIZE", "KBPULSE_SEARCH_TTL",
		"KBPULSE_FORCE_POLLING", "KBPULSE_TELEMETRY_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

func writeArticle(t *testing.T, root, rel, data string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

// newProject creates an isolated project directory with two articles under
// content/.
func newProject(t *testing.T) string {
	t.Helper()
	isolate(t)
	dir := t.TempDir()
	root := filepath.Join(dir, "content")
	writeArticle(t, root, "guides/setup.md", "---\ntitle: Setup guide\ncategory: Guides\ntags: [cli]\ncreated: 2025-01-01\n---\nInstall the binary and run it.\n")
	writeArticle(t, root, "notes/ideas.md", "---\ntitle: Ideas\ncreated: 2025-01-02\n---\nStreaming heartbeats keep proxies open.\n")
	return dir
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}
