// Package fsservice wires the filesystem store and a mount provider
// into a selectable sync service.
package fsservice

import (
	"context"
	"os"
	"time"

	"github.com/clearnote/notesync/internal/events"
	"github.com/clearnote/notesync/internal/models"
	"github.com/clearnote/notesync/internal/mount"
	"github.com/clearnote/notesync/internal/remote"
	"github.com/clearnote/notesync/internal/remote/fsstore"
)

// Config holds the service's persisted settings.
type Config struct {
	// Path is the sync directory. For mounted providers this is
	// resolved at mount time and may be left empty here.
	Path string

	// TempDir is the scratch area for downloads.
	TempDir string

	// ClientID identifies this installation in lock records.
	ClientID string

	// LockDuration is the declared lock lifetime.
	LockDuration time.Duration
}

// Persister saves and clears the service's settings, typically the
// application's config layer.
type Persister interface {
	SaveSyncConfig(path string) error
	ClearSyncConfig() error
}

// Service implements remote.Service over a local or mounted
// directory.
type Service struct {
	cfg       Config
	provider  mount.Provider
	persister Persister
	logger    *events.Logger

	// A store is built fresh for every pass; lock sighting state has
	// to outlive them for expired-lock takeover to work.
	contention *fsstore.ContentionState
}

// New builds the service. A nil provider defaults to treating Path as
// an always-present local directory.
func New(cfg Config, provider mount.Provider, persister Persister, logger *events.Logger) *Service {
	if provider == nil {
		provider = &mount.NoopProvider{Path: cfg.Path}
	}
	return &Service{
		cfg:        cfg,
		provider:   provider,
		persister:  persister,
		logger:     logger.WithField("service", "filesystem"),
		contention: &fsstore.ContentionState{},
	}
}

func (s *Service) ID() string { return "filesystem" }

func (s *Service) Name() string { return "Local Folder" }

// IsConfigured reports whether a sync directory has been chosen.
func (s *Service) IsConfigured() bool {
	return s.cfg.Path != ""
}

// IsSupported reports whether the service can run on this system.
// Directory sync has no platform requirements beyond an existing or
// creatable path.
func (s *Service) IsSupported() bool { return true }

// CreateStore mounts the sync directory if needed and opens a store
// over it. Any pending idle unmount is cancelled by the mount.
func (s *Service) CreateStore() (remote.Store, error) {
	path, err := s.provider.Mount(context.Background())
	if err != nil {
		return nil, &models.ServerCreationError{Service: s.ID(), Err: err}
	}
	if path == "" {
		path = s.cfg.Path
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, &models.ServerCreationError{Service: s.ID(), Err: err}
	}

	store, err := fsstore.New(path, fsstore.Config{
		TempDir:      s.cfg.TempDir,
		ClientID:     s.cfg.ClientID,
		LockDuration: s.cfg.LockDuration,
		Contention:   s.contention,
	}, s.logger)
	if err != nil {
		return nil, &models.ServerCreationError{Service: s.ID(), Err: err}
	}
	return store, nil
}

// SaveConfiguration persists the chosen sync directory.
func (s *Service) SaveConfiguration() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.SaveSyncConfig(s.cfg.Path)
}

// ResetConfiguration forgets the sync directory and tears down any
// mount.
func (s *Service) ResetConfiguration() error {
	if err := s.provider.Unmount(); err != nil {
		s.logger.WithError(err).Warn("Unmount during configuration reset failed")
	}
	s.cfg.Path = ""
	if s.persister == nil {
		return nil
	}
	return s.persister.ClearSyncConfig()
}

// PostSyncCleanup arms the idle unmount so back-to-back syncs reuse
// the mount while an abandoned one is eventually released.
func (s *Service) PostSyncCleanup() {
	s.provider.ArmDelayedUnmount()
}
