package sync

import (
	"github.com/clearnote/notesync/internal/events"
	"github.com/clearnote/notesync/internal/models"
)

// SilentUI satisfies UI without any interaction: progress goes to the
// log and every conflict resolves to a fixed default. Background
// syncs run with this.
type SilentUI struct {
	defaultResolution models.ConflictResolution
	logger            *events.Logger
}

func NewSilentUI(defaultResolution models.ConflictResolution, logger *events.Logger) *SilentUI {
	return &SilentUI{
		defaultResolution: defaultResolution,
		logger:            logger.WithField("component", "silent_ui"),
	}
}

func (u *SilentUI) StateChanged(state models.SyncState) {}

func (u *SilentUI) NoteSynchronized(title string, outcome models.SyncOutcome) {
	u.logger.WithFields(map[string]interface{}{
		"title":   title,
		"outcome": outcome.String(),
	}).Info("Note synchronized")
}

func (u *SilentUI) Conflict(existing *models.Note, update models.NoteUpdate, titlesInFlight map[string]bool) models.ConflictResolution {
	u.logger.WithFields(map[string]interface{}{
		"title":      update.Title,
		"resolution": u.defaultResolution.String(),
	}).Warn("Resolving note conflict with configured default")
	return u.defaultResolution
}
