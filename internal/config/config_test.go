package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Minute, cfg.Sync.LockDuration)
	assert.Equal(t, "overwrite", cfg.Sync.ConflictDefault)
	assert.Equal(t, "xml", cfg.Storage.StateBackend)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"missing notes dir", func(c *Config) { c.Storage.NotesDir = "" }},
		{"bad state backend", func(c *Config) { c.Storage.StateBackend = "redis" }},
		{"short lock duration", func(c *Config) { c.Sync.LockDuration = 5 * time.Second }},
		{"negative autosync", func(c *Config) { c.Sync.AutosyncInterval = -time.Minute }},
		{"bad conflict default", func(c *Config) { c.Sync.ConflictDefault = "shrug" }},
		{"service without path", func(c *Config) { c.Sync.Service = "filesystem"; c.Sync.Path = "" }},
		{"mount without tool", func(c *Config) { c.Mount.Enabled = true; c.Mount.MountPoint = "/mnt/x" }},
		{"mount without point", func(c *Config) { c.Mount.Enabled = true; c.Mount.MountTool = "sshfs" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "yaml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoaderReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"sync": {
			"service": "filesystem",
			"path": "/srv/notes",
			"lock_duration": "3m"
		}
	}`), 0o600))

	t.Setenv("NOTESYNC_LOG_LEVEL", "debug")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "filesystem", cfg.Sync.Service)
	assert.Equal(t, "/srv/notes", cfg.Sync.Path)
	assert.Equal(t, 3*time.Minute, cfg.Sync.LockDuration)
	assert.Equal(t, "debug", cfg.Log.Level, "environment overrides the file")
	assert.Equal(t, "xml", cfg.Storage.StateBackend, "defaults fill the rest")
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sync": {"lock_duration": "1s"}}`), 0o600))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Sync.Service = "filesystem"
	cfg.Sync.Path = "/srv/notes"
	require.NoError(t, cfg.Save(path))

	loaded, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "filesystem", loaded.Sync.Service)
	assert.Equal(t, "/srv/notes", loaded.Sync.Path)
}
