package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
)

// isolate points the user config at an empty temp dir.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{
		"KBPULSE_CONTENT_ROOT", "KBPULSE_ADDR", "KBPULSE_LOG_LEVEL",
		"KBPULSE_HEARTBEAT_INTERVAL", "KBPULSE_BACKLOG_SIZE", "KBPULSE_SEARCH_TTL",
		"KBPULSE_FORCE_POLLING", "KBPULSE_TELEMETRY_ENABLED",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Stream.BacklogSize)
	assert.Equal(t, 25*time.Second, cfg.Stream.HeartbeatDuration())
	assert.Equal(t, 5*time.Minute, cfg.Search.TTLDuration())
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.DebounceDuration())
	assert.True(t, cfg.Search.InvalidateOnChange)
}

func TestLoad_NoFiles_UsesDefaultsAndResolvesRoot(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "content"), cfg.Content.Root)
	assert.Equal(t, "127.0.0.1:3100", cfg.Server.Addr)
}

func TestLoad_Precedence_UserThenProjectThenEnv(t *testing.T) {
	// Given: user config, project config and env all set overlapping keys
	isolate(t)
	writeFile(t, GetUserConfigPath(), "server:\n  addr: 0.0.0.0:9000\n  log_level: debug\nstream:\n  backlog_size: 4\n")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".kbpulse.yaml"), "stream:\n  backlog_size: 7\nsearch:\n  invalidate_on_change: false\n")
	t.Setenv("KBPULSE_ADDR", "127.0.0.1:4000")

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: each layer overrides the previous one key by key
	assert.Equal(t, "127.0.0.1:4000", cfg.Server.Addr, "env wins")
	assert.Equal(t, "debug", cfg.Server.LogLevel, "user value survives")
	assert.Equal(t, 7, cfg.Stream.BacklogSize, "project beats user")
	assert.False(t, cfg.Search.InvalidateOnChange, "explicit false is honored")
	assert.Equal(t, "25s", cfg.Stream.HeartbeatInterval, "untouched default")
}

func TestLoad_YAMLTakesPrecedenceOverYML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".kbpulse.yaml"), "server:\n  addr: a:1\n")
	writeFile(t, filepath.Join(dir, ".kbpulse.yml"), "server:\n  addr: b:2\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "a:1", cfg.Server.Addr)
}

func TestLoad_UnknownKey_ReturnsConfigInvalid(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".kbpulse.yaml"), "stream:\n  backlog: 3\n")

	_, err := Load(dir)

	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeConfigInvalid, kberrors.GetCode(err))
}

func TestLoad_EmptyProjectFile_IsFine(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".kbpulse.yaml"), "")

	_, err := Load(dir)

	assert.NoError(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("KBPULSE_BACKLOG_SIZE", "3")
	t.Setenv("KBPULSE_SEARCH_TTL", "30s")
	t.Setenv("KBPULSE_FORCE_POLLING", "1")
	t.Setenv("KBPULSE_TELEMETRY_ENABLED", "false")
	t.Setenv("KBPULSE_CONTENT_ROOT", "/srv/kb")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Stream.BacklogSize)
	assert.Equal(t, 30*time.Second, cfg.Search.TTLDuration())
	assert.True(t, cfg.Watch.ForcePolling)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "/srv/kb", cfg.Content.Root, "absolute roots are not re-rooted")
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad duration", func(c *Config) { c.Search.TTL = "soon" }},
		{"negative duration", func(c *Config) { c.Watch.Debounce = "-1s" }},
		{"zero heartbeat", func(c *Config) { c.Stream.HeartbeatInterval = "0s" }},
		{"zero backlog", func(c *Config) { c.Stream.BacklogSize = 0 }},
		{"bad extension", func(c *Config) { c.Content.Extension = "md" }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"bad level", func(c *Config) { c.Server.LogLevel = "trace" }},
		{"zero limit", func(c *Config) { c.Search.DefaultLimit = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Equal(t, kberrors.ErrCodeConfigInvalid, kberrors.GetCode(err))
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Stream.BacklogSize = 42

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".kbpulse.yaml")))
	loaded, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Stream.BacklogSize)
}

func TestGetUserConfigPath_HonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "kbpulse", "config.yaml"), GetUserConfigPath())
}

func TestBackupFile_KeepsNewestBackups(t *testing.T) {
	// Given: a config file
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "version: 1\n")

	// When: backing it up more times than MaxBackups
	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	// Then: only MaxBackups remain
	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}

func TestBackupFile_MissingFile(t *testing.T) {
	got, err := BackupFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
