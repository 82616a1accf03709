package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Storage paths
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Sync behavior
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Mount provider settings
	Mount MountConfig `json:"mount" mapstructure:"mount"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// StorageConfig for local file paths.
type StorageConfig struct {
	DataDir      string `json:"data_dir" mapstructure:"data_dir"`           // Base directory for all data
	NotesDir     string `json:"notes_dir" mapstructure:"notes_dir"`         // Local note files
	TempDir      string `json:"temp_dir" mapstructure:"temp_dir"`           // Download scratch area
	StateBackend string `json:"state_backend" mapstructure:"state_backend"` // Client record backend: xml or sqlite
}

// SyncConfig for synchronization behavior.
type SyncConfig struct {
	Service          string        `json:"service" mapstructure:"service"`                     // Sync service id (e.g. "filesystem")
	Path             string        `json:"path" mapstructure:"path"`                           // Remote store root for the filesystem service
	LockDuration     time.Duration `json:"lock_duration" mapstructure:"lock_duration"`         // Declared lock lifetime
	AutosyncInterval time.Duration `json:"autosync_interval" mapstructure:"autosync_interval"` // 0 disables the scheduler
	AutosyncDebounce time.Duration `json:"autosync_debounce" mapstructure:"autosync_debounce"` // Edit quiet period before autosync
	ConflictDefault  string        `json:"conflict_default" mapstructure:"conflict_default"`   // overwrite, rename, rename_keep_local
}

// MountConfig for the exec-based mount provider.
type MountConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	MountTool    string        `json:"mount_tool" mapstructure:"mount_tool"`       // e.g. sshfs, wdfs
	MountArgs    []string      `json:"mount_args" mapstructure:"mount_args"`       // Tool arguments before target/mountpoint
	Target       string        `json:"target" mapstructure:"target"`               // Remote location to mount
	MountPoint   string        `json:"mount_point" mapstructure:"mount_point"`     // Local mount directory
	UnmountDelay time.Duration `json:"unmount_delay" mapstructure:"unmount_delay"` // Delay before post-sync unmount
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stderr)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".notesync"

	return &Config{
		Storage: StorageConfig{
			DataDir:      dataDir,
			NotesDir:     filepath.Join(dataDir, "notes"),
			TempDir:      filepath.Join(dataDir, "temp"),
			StateBackend: "xml",
		},
		Sync: SyncConfig{
			Service:          "",
			LockDuration:     2 * time.Minute,
			AutosyncInterval: 0,
			AutosyncDebounce: 20 * time.Second,
			ConflictDefault:  "overwrite",
		},
		Mount: MountConfig{
			Enabled:      false,
			UnmountDelay: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	if c.Storage.NotesDir == "" {
		return errors.New("storage.notes_dir is required")
	}

	switch c.Storage.StateBackend {
	case "xml", "sqlite":
	default:
		return fmt.Errorf("invalid state backend: %s", c.Storage.StateBackend)
	}

	if c.Sync.Service != "" && c.Sync.Path == "" && !c.Mount.Enabled {
		return errors.New("sync.path is required when a sync service is configured")
	}

	if c.Sync.LockDuration < 30*time.Second {
		return errors.New("sync.lock_duration must be at least 30s")
	}

	if c.Sync.AutosyncInterval < 0 {
		return errors.New("sync.autosync_interval cannot be negative")
	}

	switch c.Sync.ConflictDefault {
	case "overwrite", "rename", "rename_keep_local":
	default:
		return fmt.Errorf("invalid conflict default: %s", c.Sync.ConflictDefault)
	}

	if c.Mount.Enabled {
		if c.Mount.MountTool == "" {
			return errors.New("mount.mount_tool is required when mount is enabled")
		}
		if c.Mount.MountPoint == "" {
			return errors.New("mount.mount_point is required when mount is enabled")
		}
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.Storage.NotesDir,
		c.Storage.TempDir,
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
