// Package sync orchestrates one synchronization pass between the
// local note manager and a remote store, and schedules background
// passes.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clearnote/notesync/internal/clientstate"
	"github.com/clearnote/notesync/internal/events"
	"github.com/clearnote/notesync/internal/models"
	"github.com/clearnote/notesync/internal/notes"
	"github.com/clearnote/notesync/internal/remote"
)

// ErrServerLocked reports that another client holds the store lock;
// the pass made no changes and can simply be retried later.
var ErrServerLocked = errors.New("sync server is locked by another client")

// UI receives progress callbacks during a sync pass and arbitrates
// conflicts. Calls arrive from the syncing goroutine.
type UI interface {
	// StateChanged reports each state transition.
	StateChanged(state models.SyncState)

	// NoteSynchronized reports one applied change.
	NoteSynchronized(title string, outcome models.SyncOutcome)

	// Conflict asks how to reconcile a local note against an incoming
	// update. titlesInFlight holds every title arriving in this pass,
	// so renames can steer clear of them.
	Conflict(existing *models.Note, update models.NoteUpdate, titlesInFlight map[string]bool) models.ConflictResolution
}

// Engine runs sync passes. One Engine serves one note manager and one
// client record; passes are serialized.
type Engine struct {
	notes   notes.Manager
	client  clientstate.Store
	service remote.Service
	ui      UI
	logger  *events.Logger

	stateCh chan stateReq
	syncCh  chan struct{}
}

type stateReq struct {
	set   bool
	state models.SyncState
	reply chan models.SyncState
}

// NewEngine wires the engine. A nil ui gets a logging-only SilentUI
// that resolves every conflict by accepting the incoming note.
func NewEngine(mgr notes.Manager, client clientstate.Store, service remote.Service, ui UI, logger *events.Logger) *Engine {
	if ui == nil {
		ui = NewSilentUI(models.ResolveOverwrite, logger)
	}
	e := &Engine{
		notes:   mgr,
		client:  client,
		service: service,
		ui:      ui,
		logger:  logger.WithField("component", "sync_engine"),
		stateCh: make(chan stateReq),
		syncCh:  make(chan struct{}, 1),
	}
	e.syncCh <- struct{}{}
	go e.stateLoop()
	return e
}

// stateLoop owns the current state; readers and writers go through
// channels so State is safe from any goroutine.
func (e *Engine) stateLoop() {
	state := models.StateIdle
	for req := range e.stateCh {
		if req.set {
			state = req.state
		}
		if req.reply != nil {
			req.reply <- state
		}
	}
}

// State reports the engine's current state.
func (e *Engine) State() models.SyncState {
	reply := make(chan models.SyncState, 1)
	e.stateCh <- stateReq{reply: reply}
	return <-reply
}

func (e *Engine) setState(state models.SyncState) {
	e.stateCh <- stateReq{set: true, state: state}
	e.logger.WithField("state", state.String()).Debug("Sync state changed")
	e.ui.StateChanged(state)
}

// Sync runs one full pass. A pass already in flight makes the call
// return models.ErrSyncInProgress immediately. Cancelling ctx between
// phases abandons the pass and releases the remote lock.
func (e *Engine) Sync(ctx context.Context) error {
	select {
	case <-e.syncCh:
	default:
		return models.ErrSyncInProgress
	}
	defer func() { e.syncCh <- struct{}{} }()

	err := e.run(ctx)

	var creationErr *models.ServerCreationError
	switch {
	case err == nil:
		e.setState(models.StateSucceeded)
	case errors.Is(err, ErrServerLocked),
		errors.Is(err, models.ErrNoConfiguredService),
		errors.As(err, &creationErr):
		// The terminal state was already reported in run; these
		// short-circuit straight to idle.
	case isCancelled(err):
		e.logger.Info("Sync cancelled")
		e.setState(models.StateUserCancelled)
	default:
		e.logger.WithError(err).Error("Sync failed")
		e.setState(models.StateFailed)
	}
	e.setState(models.StateIdle)
	if e.service != nil {
		e.service.PostSyncCleanup()
	}
	return err
}

func isCancelled(err error) bool {
	return errors.Is(err, models.ErrSyncCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) run(ctx context.Context) error {
	e.setState(models.StateConnecting)

	if e.service == nil || !e.service.IsConfigured() {
		e.setState(models.StateNoConfiguredService)
		return models.ErrNoConfiguredService
	}

	store, err := e.service.CreateStore()
	if err != nil {
		e.setState(models.StateServerCreationFailed)
		return err
	}

	e.setState(models.StateAcquiringLock)
	lock, err := store.BeginTransaction()
	if err != nil {
		return err
	}
	if lock == remote.LockHeld {
		e.setState(models.StateLocked)
		return ErrServerLocked
	}

	// Past this point the remote lock is ours; every exit that is not
	// a successful commit must cancel the transaction.
	if err := e.runLocked(ctx, store); err != nil {
		if cancelErr := store.CancelTransaction(); cancelErr != nil {
			e.logger.WithError(cancelErr).Warn("Failed to release sync lock")
		}
		return err
	}
	return nil
}

func (e *Engine) runLocked(ctx context.Context, store remote.Store) error {
	e.setState(models.StatePrepareDownload)

	if err := e.bindServerIdentity(store); err != nil {
		return err
	}

	lastRev := e.client.LastSyncedRevision()
	updates, err := store.NoteUpdatesSince(lastRev)
	if err != nil {
		return fmt.Errorf("fetch updates since revision %d: %w", lastRev, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	titlesInFlight := make(map[string]bool, len(updates))
	for _, up := range updates {
		titlesInFlight[up.Title] = true
	}

	if len(updates) > 0 {
		if err := e.resolveTitleConflicts(updates, titlesInFlight); err != nil {
			return err
		}

		e.setState(models.StateDownloading)
		if err := e.applyUpdates(updates, titlesInFlight); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.deleteLocallyRemovedOnServer(store); err != nil {
		return err
	}

	e.setState(models.StatePrepareUpload)
	uploads, outcomes, err := e.collectUploads()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var uploadedIDs []string
	if len(uploads) > 0 {
		e.setState(models.StateUploading)
		uploadedIDs, err = store.UploadNotes(uploads)
		if err != nil {
			return fmt.Errorf("upload notes: %w", err)
		}
		uploaded := make(map[string]bool, len(uploadedIDs))
		for _, id := range uploadedIDs {
			uploaded[id] = true
		}
		for _, up := range uploads {
			if uploaded[up.ID] {
				e.ui.NoteSynchronized(up.Title, outcomes[up.ID])
			}
		}
	}

	e.setState(models.StateDeleteServerNotes)
	if err := e.deleteServerRemovedLocally(store); err != nil {
		return err
	}

	e.setState(models.StateCommitting)
	result := store.CommitTransaction()
	if !result.OK {
		return fmt.Errorf("commit sync transaction: %w", result.Reason)
	}

	// The commit result carries the revision observed under the lock.
	// Re-reading LatestRevision here could pick up a commit another
	// client squeezed in after our lock was released.
	latest := result.Revision
	if err := e.client.SetLastSyncedRevision(latest); err != nil {
		return fmt.Errorf("record synced revision: %w", err)
	}
	for _, id := range uploadedIDs {
		if err := e.client.SetRevision(id, latest); err != nil {
			return fmt.Errorf("record note revision: %w", err)
		}
	}
	if err := e.client.SetLastSyncDate(time.Now()); err != nil {
		return fmt.Errorf("record sync date: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"revision":   latest,
		"downloaded": len(updates),
		"uploaded":   len(uploadedIDs),
	}).Info("Sync pass complete")

	return nil
}

// bindServerIdentity resets local sync history when the remote store
// is not the one this client last synced against, then records the
// binding.
func (e *Engine) bindServerIdentity(store remote.Store) error {
	serverID, err := store.ID()
	if err != nil {
		return fmt.Errorf("read server identity: %w", err)
	}

	if known := e.client.ServerID(); known != "" && known != serverID {
		e.logger.WithFields(map[string]interface{}{
			"known_server":  known,
			"actual_server": serverID,
		}).Warn("Sync server changed, resetting local sync history")
		if err := e.client.Reset(); err != nil {
			return fmt.Errorf("reset client record: %w", err)
		}
	}
	return e.client.SetServerID(serverID)
}

// updateMatches reports whether an incoming update carries the same
// content as a local note. An undecodable update never matches.
func updateMatches(local *models.Note, up models.NoteUpdate) bool {
	incoming, err := models.DecodeNoteXML(up.XMLContent)
	if err != nil {
		return false
	}
	return local.ContentEquals(incoming)
}

// resolveTitleConflicts handles incoming notes that are new to this
// client but collide with a different local note's title. Running
// before download keeps every title unique once the pass completes.
func (e *Engine) resolveTitleConflicts(updates map[string]models.NoteUpdate, titlesInFlight map[string]bool) error {
	for _, id := range sortedUpdateIDs(updates) {
		up := updates[id]
		if e.notes.FindByID(up.ID) != nil {
			continue
		}
		local := e.notes.FindByTitle(up.Title)
		if local == nil {
			continue
		}
		if updateMatches(local, up) {
			// Same note created independently on both sides. Adopt
			// the server's copy so both clients converge on one id.
			if err := e.notes.Delete(local); err != nil {
				return fmt.Errorf("drop duplicate note %q: %w", local.Title, err)
			}
			continue
		}
		if err := e.resolveConflict(local, up, titlesInFlight); err != nil {
			return err
		}
	}
	return nil
}

// applyUpdates brings each incoming note into the local manager,
// surfacing content conflicts on notes edited since the last sync.
func (e *Engine) applyUpdates(updates map[string]models.NoteUpdate, titlesInFlight map[string]bool) error {
	lastSync := e.client.LastSyncDate()

	for _, id := range sortedUpdateIDs(updates) {
		up := updates[id]
		existing := e.notes.FindByID(up.ID)

		if existing != nil && existing.MetadataChangeTime.After(lastSync) && !updateMatches(existing, up) {
			if err := e.resolveConflict(existing, up, titlesInFlight); err != nil {
				return err
			}
			existing = e.notes.FindByID(up.ID)
		}

		if existing == nil {
			// A note with this title can appear between the early
			// conflict scan and now (managers auto-create notes such
			// as templates on first access). The incoming copy wins.
			if dup := e.notes.FindByTitle(up.Title); dup != nil {
				if err := e.notes.Delete(dup); err != nil {
					return fmt.Errorf("clear colliding note %q: %w", dup.Title, err)
				}
			}
			if _, err := e.notes.CreateFromUpdate(up); err != nil {
				return fmt.Errorf("create note %q: %w", up.Title, err)
			}
			e.ui.NoteSynchronized(up.Title, models.OutcomeDownloadNew)
		} else {
			if err := e.notes.UpdateFromRemote(existing, up); err != nil {
				return fmt.Errorf("update note %q: %w", up.Title, err)
			}
			e.ui.NoteSynchronized(up.Title, models.OutcomeDownloadModified)
		}

		if err := e.client.SetRevision(up.ID, up.Revision); err != nil {
			return fmt.Errorf("record note revision: %w", err)
		}
	}
	return nil
}

// resolveConflict asks the UI and applies the chosen resolution.
func (e *Engine) resolveConflict(local *models.Note, up models.NoteUpdate, titlesInFlight map[string]bool) error {
	e.logger.WithFields(map[string]interface{}{
		"note_id": up.ID,
		"title":   up.Title,
	}).Info("Note conflict detected")

	switch e.ui.Conflict(local, up, titlesInFlight) {
	case models.ResolveOverwrite:
		// Incoming note wins. A title-only collision (different IDs)
		// drops the local copy; same ID is overwritten by the normal
		// download path.
		if local.ID != up.ID {
			if err := e.notes.Delete(local); err != nil {
				return fmt.Errorf("discard conflicting note %q: %w", local.Title, err)
			}
		}
		return nil

	case models.ResolveRenameAndAccept, models.ResolveRenameKeepLocal:
		// Either way the local note moves aside under a fresh
		// identifier and a non-colliding title, freeing the original
		// identifier for the incoming copy. The moved note has no
		// revision and uploads in this pass.
		return e.renameConflictingNote(local, titlesInFlight)

	case models.ResolveCancel:
		return models.ErrSyncCancelled

	default:
		return models.ErrSyncCancelled
	}
}

func (e *Engine) renameConflictingNote(local *models.Note, titlesInFlight map[string]bool) error {
	taken := make(map[string]bool, len(titlesInFlight))
	for t := range titlesInFlight {
		taken[t] = true
	}
	for _, n := range e.notes.Notes() {
		if n.ID == local.ID {
			continue
		}
		taken[n.Title] = true
	}

	oldTitle := local.Title
	newTitle := notes.UniqueTitle(oldTitle, taken)

	// Delete and recreate under a fresh identifier so the incoming
	// copy can land on the original one. The recreated note has no
	// revision yet and uploads in this pass.
	moved := *local
	moved.ID = uuid.NewString()
	moved.Title = newTitle
	moved.Touch()
	content, err := models.EncodeNoteXML(&moved)
	if err != nil {
		return fmt.Errorf("serialize conflicting note %q: %w", oldTitle, err)
	}
	if err := e.notes.Delete(local); err != nil {
		return fmt.Errorf("displace conflicting note %q: %w", oldTitle, err)
	}
	if _, err := e.notes.CreateFromUpdate(models.NewNoteUpdate(content, newTitle, moved.ID, -1)); err != nil {
		return fmt.Errorf("recreate conflicting note %q: %w", oldTitle, err)
	}

	e.logger.WithFields(map[string]interface{}{
		"old_id":    local.ID,
		"new_id":    moved.ID,
		"old_title": oldTitle,
		"new_title": newTitle,
	}).Info("Renamed conflicting note")
	return nil
}

// deleteLocallyRemovedOnServer removes local notes the server no
// longer carries. Only notes that have synced before are candidates;
// a never-synced local note is simply pending upload.
func (e *Engine) deleteLocallyRemovedOnServer(store remote.Store) error {
	serverIDs, err := store.AllNoteIDs()
	if err != nil {
		return fmt.Errorf("list server notes: %w", err)
	}
	onServer := make(map[string]bool, len(serverIDs))
	for _, id := range serverIDs {
		onServer[id] = true
	}

	for _, note := range e.notes.Notes() {
		if e.client.Revision(note.ID) == -1 || onServer[note.ID] {
			continue
		}
		title := note.Title
		if err := e.notes.Delete(note); err != nil {
			return fmt.Errorf("delete note %q removed on server: %w", title, err)
		}
		e.ui.NoteSynchronized(title, models.OutcomeDeleteFromClient)
	}
	return nil
}

// collectUploads gathers local notes the server has never seen or
// that changed since the last sync.
func (e *Engine) collectUploads() ([]remote.Upload, map[string]models.SyncOutcome, error) {
	lastRev := e.client.LastSyncedRevision()
	lastSync := e.client.LastSyncDate()

	var uploads []remote.Upload
	outcomes := make(map[string]models.SyncOutcome)

	for _, note := range e.notes.Notes() {
		rev := e.client.Revision(note.ID)

		var outcome models.SyncOutcome
		switch {
		case rev == -1:
			outcome = models.OutcomeUploadNew
		case rev <= lastRev && note.MetadataChangeTime.After(lastSync):
			outcome = models.OutcomeUploadModified
		default:
			continue
		}

		content, err := e.notes.SerializedContent(note)
		if err != nil {
			return nil, nil, fmt.Errorf("serialize note %q: %w", note.Title, err)
		}
		uploads = append(uploads, remote.Upload{ID: note.ID, Title: note.Title, Content: content})
		outcomes[note.ID] = outcome
	}

	sort.Slice(uploads, func(i, j int) bool { return uploads[i].ID < uploads[j].ID })
	return uploads, outcomes, nil
}

// deleteServerRemovedLocally propagates local deletions: any server
// note with no local counterpart is removed from the store.
func (e *Engine) deleteServerRemovedLocally(store remote.Store) error {
	serverIDs, err := store.AllNoteIDs()
	if err != nil {
		return fmt.Errorf("list server notes: %w", err)
	}

	var deleteIDs []string
	for _, id := range serverIDs {
		if e.notes.FindByID(id) == nil {
			deleteIDs = append(deleteIDs, id)
		}
	}
	if len(deleteIDs) == 0 {
		return nil
	}

	if err := store.DeleteNotes(deleteIDs); err != nil {
		return fmt.Errorf("delete server notes: %w", err)
	}

	deletedTitles := e.client.DeletedNoteTitles()
	for _, id := range deleteIDs {
		title := deletedTitles[id]
		if title == "" {
			title = id
		}
		e.ui.NoteSynchronized(title, models.OutcomeDeleteFromServer)
	}
	return nil
}

func sortedUpdateIDs(updates map[string]models.NoteUpdate) []string {
	ids := make([]string, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
