package main

import (
	"fmt"
	"path/filepath"

	"github.com/clearnote/notesync/internal/clientstate"
	"github.com/clearnote/notesync/internal/models"
	"github.com/clearnote/notesync/internal/mount"
	"github.com/clearnote/notesync/internal/notes"
	"github.com/clearnote/notesync/internal/remote"
	"github.com/clearnote/notesync/internal/remote/fsservice"
	syncengine "github.com/clearnote/notesync/internal/sync"
)

// app bundles the wired subsystems a command needs.
type app struct {
	manager notes.Manager
	client  clientstate.Store
	service remote.Service
	engine  *syncengine.Engine
}

func buildApp(ui syncengine.UI) (*app, error) {
	mgr, err := notes.NewDirManager(cfg.Storage.NotesDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open notes directory: %w", err)
	}

	client, err := newClientStore()
	if err != nil {
		return nil, err
	}

	// Local deletions are tracked so the next pass can report what it
	// removed from the server.
	mgr.OnDelete(func(n *models.Note) {
		if err := client.NoteDeleted(n.ID, n.Title); err != nil {
			logger.WithError(err).Warn("Failed to record note deletion")
		}
	})

	service, err := newService(client.ClientID())
	if err != nil {
		client.Close()
		return nil, err
	}

	return &app{
		manager: mgr,
		client:  client,
		service: service,
		engine:  syncengine.NewEngine(mgr, client, service, ui, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.client.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close client record")
	}
}

func newClientStore() (clientstate.Store, error) {
	switch cfg.Storage.StateBackend {
	case "sqlite":
		return clientstate.NewSQLiteStore(filepath.Join(cfg.Storage.DataDir, "state.db"), logger)
	default:
		return clientstate.NewXMLStore(cfg.Storage.DataDir, logger)
	}
}

func newService(clientID string) (remote.Service, error) {
	if cfg.Sync.Service == "" {
		return nil, nil
	}
	if cfg.Sync.Service != "filesystem" {
		return nil, fmt.Errorf("unknown sync service %q: %w", cfg.Sync.Service, models.ErrNotSupported)
	}

	var provider mount.Provider
	if cfg.Mount.Enabled {
		p, err := mount.NewExecProvider(mount.ExecConfig{
			Tool:         cfg.Mount.MountTool,
			Args:         cfg.Mount.MountArgs,
			Target:       cfg.Mount.Target,
			MountPoint:   cfg.Mount.MountPoint,
			UnmountDelay: cfg.Mount.UnmountDelay,
		}, logger)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	path := cfg.Sync.Path
	if path == "" && cfg.Mount.Enabled {
		path = cfg.Mount.MountPoint
	}

	return fsservice.New(fsservice.Config{
		Path:         path,
		TempDir:      cfg.Storage.TempDir,
		ClientID:     clientID,
		LockDuration: cfg.Sync.LockDuration,
	}, provider, &configPersister{}, logger), nil
}

// configPersister saves the chosen sync path back to the config file.
type configPersister struct{}

func (p *configPersister) SaveSyncConfig(path string) error {
	cfg.Sync.Service = "filesystem"
	cfg.Sync.Path = path
	return cfg.Save(configSavePath())
}

func (p *configPersister) ClearSyncConfig() error {
	cfg.Sync.Service = ""
	cfg.Sync.Path = ""
	return cfg.Save(configSavePath())
}

func configSavePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(cfg.Storage.DataDir, "config.json")
}

// conflictDefault maps the configured policy onto a resolution.
func conflictDefault() models.ConflictResolution {
	switch cfg.Sync.ConflictDefault {
	case "rename":
		return models.ResolveRenameAndAccept
	case "rename_keep_local":
		return models.ResolveRenameKeepLocal
	default:
		return models.ResolveOverwrite
	}
}
