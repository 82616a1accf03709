package sync

import (
	"context"
	"time"

	"github.com/clearnote/notesync/internal/events"
	"github.com/clearnote/notesync/internal/models"
	"github.com/clearnote/notesync/internal/notes"
)

// SchedulerConfig controls background sync cadence.
type SchedulerConfig struct {
	// Interval between unprompted background passes. Zero disables
	// the periodic timer.
	Interval time.Duration

	// Debounce is how long after the last local edit a pass fires.
	// Editing again inside the window pushes the pass out.
	Debounce time.Duration
}

// Scheduler runs background sync passes on a timer and shortly after
// local edits settle.
type Scheduler struct {
	engine *Engine
	cfg    SchedulerConfig
	logger *events.Logger

	editCh chan struct{}
}

// NewScheduler builds a scheduler and registers its edit listener on
// the manager.
func NewScheduler(engine *Engine, mgr notes.Manager, cfg SchedulerConfig, logger *events.Logger) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 20 * time.Second
	}

	s := &Scheduler{
		engine: engine,
		cfg:    cfg,
		logger: logger.WithField("component", "sync_scheduler"),
		editCh: make(chan struct{}, 1),
	}

	mgr.OnChange(func(n *models.Note) {
		select {
		case s.editCh <- struct{}{}:
		default:
		}
	})

	return s
}

// Run blocks until ctx is cancelled, firing sync passes as the timers
// demand. A pass already in flight is skipped, not queued.
func (s *Scheduler) Run(ctx context.Context) {
	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := time.NewTimer(s.cfg.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	debounceArmed := false

	s.logger.WithFields(map[string]interface{}{
		"interval": s.cfg.Interval.String(),
		"debounce": s.cfg.Debounce.String(),
	}).Info("Background sync scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Background sync scheduler stopped")
			return

		case <-tick:
			if !s.syncDue() {
				s.logger.Debug("Nothing pending, skipping background pass")
				continue
			}
			s.fire(ctx, "interval")

		case <-s.editCh:
			// Restart the settle window on every edit.
			if debounceArmed && !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(s.cfg.Debounce)
			debounceArmed = true

		case <-debounce.C:
			debounceArmed = false
			s.fire(ctx, "edits settled")
		}
	}
}

// syncDue reports whether a pass would have anything to do: a local
// edit or deletion since the last sync, or a newer revision on the
// server. It reads the store without opening a transaction, so the
// answer is approximate; the pass itself re-reads under the lock.
func (s *Scheduler) syncDue() bool {
	client := s.engine.client
	if len(client.DeletedNoteTitles()) > 0 {
		return true
	}
	lastSync := client.LastSyncDate()
	for _, n := range s.engine.notes.Notes() {
		if client.Revision(n.ID) == -1 || n.MetadataChangeTime.After(lastSync) {
			return true
		}
	}

	service := s.engine.service
	if service == nil || !service.IsConfigured() {
		return false
	}
	store, err := service.CreateStore()
	if err != nil {
		s.logger.WithError(err).Debug("Server unreachable for due check")
		return false
	}
	defer service.PostSyncCleanup()

	rev, err := store.LatestRevision()
	if err != nil {
		return false
	}
	return rev > client.LastSyncedRevision()
}

func (s *Scheduler) fire(ctx context.Context, reason string) {
	s.logger.WithField("reason", reason).Debug("Starting background sync")
	switch err := s.engine.Sync(ctx); err {
	case nil:
	case models.ErrSyncInProgress:
		s.logger.Debug("Sync already running, skipping background pass")
	case ErrServerLocked:
		s.logger.Debug("Store locked by another client, will retry later")
	case models.ErrNoConfiguredService:
		s.logger.Debug("No sync service configured, skipping background pass")
	default:
		s.logger.WithError(err).Warn("Background sync failed")
	}
}
