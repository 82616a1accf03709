package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from file and environment.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a config loader. An empty configPath probes the
// default locations.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  "NOTESYNC",
	}
}

// Load reads configuration from file and environment, layered over the
// defaults.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		for _, dir := range l.defaultDirs() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file: %w", err)
			}
			// No config file; defaults plus env is fine.
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultDirs returns default config directories, most specific first.
func (l *Loader) defaultDirs() []string {
	dirs := []string{".", ".notesync"}

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homeDir, ".config", "notesync"),
			filepath.Join(homeDir, ".notesync"),
		)
	}

	return dirs
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.notes_dir", cfg.Storage.NotesDir)
	v.SetDefault("storage.temp_dir", cfg.Storage.TempDir)
	v.SetDefault("storage.state_backend", cfg.Storage.StateBackend)

	v.SetDefault("sync.service", cfg.Sync.Service)
	v.SetDefault("sync.path", cfg.Sync.Path)
	v.SetDefault("sync.lock_duration", cfg.Sync.LockDuration)
	v.SetDefault("sync.autosync_interval", cfg.Sync.AutosyncInterval)
	v.SetDefault("sync.autosync_debounce", cfg.Sync.AutosyncDebounce)
	v.SetDefault("sync.conflict_default", cfg.Sync.ConflictDefault)

	v.SetDefault("mount.enabled", cfg.Mount.Enabled)
	v.SetDefault("mount.mount_tool", cfg.Mount.MountTool)
	v.SetDefault("mount.mount_args", cfg.Mount.MountArgs)
	v.SetDefault("mount.target", cfg.Mount.Target)
	v.SetDefault("mount.mount_point", cfg.Mount.MountPoint)
	v.SetDefault("mount.unmount_delay", cfg.Mount.UnmountDelay)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
}
