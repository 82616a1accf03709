// Package fsstore implements the remote note store over a plain
// directory tree: numbered revision directories, a root manifest, and
// a renewable lock file serializing writers.
package fsstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clearnote/notesync/internal/events"
	"github.com/clearnote/notesync/internal/models"
	"github.com/clearnote/notesync/internal/remote"
)

// Config controls store construction.
type Config struct {
	// TempDir is the scratch area note bodies are copied into during
	// download. Defaults to a per-process temp directory.
	TempDir string

	// ClientID identifies this installation in lock records.
	ClientID string

	// LockDuration is the declared lifetime of the lock record.
	// Defaults to two minutes.
	LockDuration time.Duration

	// Contention carries foreign-lock sightings across passes. A
	// store is built per sync pass, but deciding that another
	// client's lock has expired takes two sightings of the same
	// record a full lock duration apart, so the sighting state must
	// outlive any single store. Nil gets a private instance.
	Contention *ContentionState
}

// ContentionState tracks the last foreign lock record seen and when
// it was first sighted.
type ContentionState struct {
	mu        sync.Mutex
	firstSeen time.Time
	lastHash  string
}

// Store implements remote.Store over a local directory (typically a
// mounted network filesystem). One Store serves one sync pass.
type Store struct {
	root         string
	tempDir      string
	clientID     string
	lockDuration time.Duration
	logger       *events.Logger

	lockPath     string
	manifestPath string

	mu          sync.Mutex
	inTx        bool
	newRevision int
	updated     map[string]bool
	deleted     map[string]bool
	lock        *LockInfo
	serverID    string

	renewStop chan struct{}
	renewDone chan struct{}

	contention *ContentionState
}

// New creates a store over root, which must already exist (the mount
// provider is responsible for making it appear).
func New(root string, cfg Config, logger *events.Logger) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("sync directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sync path %s is not a directory", root)
	}

	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "notesync-scratch")
	}
	if err := os.MkdirAll(tempDir, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	lockDuration := cfg.LockDuration
	if lockDuration <= 0 {
		lockDuration = 2 * time.Minute
	}

	contention := cfg.Contention
	if contention == nil {
		contention = &ContentionState{}
	}

	s := &Store{
		root:         root,
		tempDir:      tempDir,
		clientID:     cfg.ClientID,
		lockDuration: lockDuration,
		logger:       logger.WithField("component", "fs_store"),
		lockPath:     filepath.Join(root, LockFileName),
		manifestPath: filepath.Join(root, ManifestFileName),
		contention:   contention,
	}

	latest, err := s.LatestRevision()
	if err != nil {
		return nil, err
	}
	s.newRevision = latest + 1

	return s, nil
}

// revisionDirPath addresses a revision as {root}/{rev/100}/{rev} to
// bound directory fan-out.
func (s *Store) revisionDirPath(rev int) string {
	return filepath.Join(s.root, strconv.Itoa(rev/100), strconv.Itoa(rev))
}

func (s *Store) notePath(rev int, id string) string {
	return filepath.Join(s.revisionDirPath(rev), id+".note")
}

// BeginTransaction claims the store's write lock. A corrupt lock file
// reads as no lock at all and is overwritten.
func (s *Store) BeginTransaction() (remote.LockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inTx {
		return remote.LockError, fmt.Errorf("transaction already open")
	}

	if current, err := readLockFile(s.lockPath); err == nil {
		hash := current.HashString()
		c := s.contention
		c.mu.Lock()
		switch {
		case c.firstSeen.IsZero(), hash != c.lastHash:
			// First sighting, or the holder renewed: (re)start the
			// wait window.
			c.firstSeen = time.Now()
			c.lastHash = hash
			c.mu.Unlock()
			s.logger.WithField("wait", current.Duration.String()).
				Debug("Sync lock held by another client, waiting for it to expire")
			return remote.LockHeld, nil

		case time.Since(c.firstSeen) < current.Duration:
			c.mu.Unlock()
			s.logger.Debug("Sync lock not yet expired")
			return remote.LockHeld, nil

		default:
			// Same record, full duration elapsed: the holder is gone.
			c.mu.Unlock()
			s.cleanupExpiredLock()
		}
	}

	s.contention.mu.Lock()
	s.contention.firstSeen = time.Time{}
	s.contention.lastHash = ""
	s.contention.mu.Unlock()

	s.lock = &LockInfo{
		TransactionID: uuid.NewString(),
		ClientID:      s.clientID,
		RenewCount:    0,
		Duration:      s.lockDuration,
		Revision:      s.newRevision,
	}
	if err := writeLockFile(s.lockPath, s.lock); err != nil {
		s.lock = nil
		return remote.LockError, err
	}

	s.startRenewalLocked()
	s.inTx = true
	s.updated = make(map[string]bool)
	s.deleted = make(map[string]bool)

	s.logger.WithFields(map[string]interface{}{
		"transaction_id": s.lock.TransactionID,
		"revision":       s.newRevision,
	}).Debug("Sync transaction started")

	return remote.LockAcquired, nil
}

// cleanupExpiredLock recovers from an abandoned transaction: restore
// the newest valid manifest if the root copy is gone or corrupt, then
// remove the stale lock. Callers hold mu.
func (s *Store) cleanupExpiredLock() {
	s.logger.Debug("Cleaning up a previous failed sync transaction")

	if !isValidXMLFile(s.manifestPath) {
		if rev := s.highestRevisionOnDisk(); rev >= 0 {
			for ; rev >= 0; rev-- {
				candidate := filepath.Join(s.revisionDirPath(rev), ManifestFileName)
				if !isValidXMLFile(candidate) {
					continue
				}
				if err := copyFile(candidate, s.manifestPath); err != nil {
					s.logger.WithError(err).Warn("Failed to restore manifest from revision directory")
				}
				break
			}
		}
	}

	if err := os.Remove(s.lockPath); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).Warn("Failed to delete expired lock file")
	}
}

// startRenewalLocked runs the lock-renewal timer for the life of one
// transaction. Callers hold mu.
func (s *Store) startRenewalLocked() {
	interval := s.lock.Duration - renewalMargin
	if interval <= 0 {
		interval = s.lock.Duration / 2
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.renewStop = stop
	s.renewDone = done

	go func() {
		defer close(done)
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-stop:
				return
			case <-timer.C:
				s.mu.Lock()
				if s.lock == nil {
					s.mu.Unlock()
					return
				}
				s.lock.RenewCount++
				err := writeLockFile(s.lockPath, s.lock)
				count := s.lock.RenewCount
				s.mu.Unlock()

				if err != nil {
					s.logger.WithError(err).Warn("Failed to renew sync lock")
				} else {
					s.logger.WithField("renew_count", count).Debug("Renewed sync lock")
				}
				timer.Reset(interval)
			}
		}
	}()
}

// stopRenewalLocked cancels the renewal timer and waits for it to
// exit. Callers hold mu; the lock is dropped while waiting so the
// renewal goroutine can finish a rewrite in flight.
func (s *Store) stopRenewalLocked() {
	if s.renewStop == nil {
		return
	}
	stop, done := s.renewStop, s.renewDone
	s.renewStop, s.renewDone = nil, nil

	close(stop)
	s.mu.Unlock()
	<-done
	s.mu.Lock()
}

// LatestRevision derives the newest committed revision, preferring
// the root manifest and falling back to scanning revision directories
// for the newest one whose own manifest still parses. Invalid
// revision directories found during the scan are discarded.
func (s *Store) LatestRevision() (int, error) {
	if m, err := ReadManifest(s.manifestPath); err == nil {
		return m.Revision, nil
	}

	for {
		rev := s.highestRevisionOnDisk()
		if rev < 0 {
			return -1, nil
		}
		if isValidXMLFile(filepath.Join(s.revisionDirPath(rev), ManifestFileName)) {
			return rev, nil
		}
		s.logger.WithField("revision", rev).Warn("Discarding revision directory with invalid manifest")
		if err := os.RemoveAll(s.revisionDirPath(rev)); err != nil {
			return -1, fmt.Errorf("discard invalid revision %d: %w", rev, err)
		}
	}
}

// highestRevisionOnDisk scans the revision directory tree for the
// largest numeric revision, or -1 when none exist.
func (s *Store) highestRevisionOnDisk() int {
	latest := -1

	parents, err := os.ReadDir(s.root)
	if err != nil {
		return -1
	}
	for _, parent := range parents {
		if !parent.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(parent.Name()); err != nil {
			continue
		}
		children, err := os.ReadDir(filepath.Join(s.root, parent.Name()))
		if err != nil {
			continue
		}
		for _, child := range children {
			if !child.IsDir() {
				continue
			}
			rev, err := strconv.Atoi(child.Name())
			if err != nil {
				continue
			}
			if rev > latest {
				latest = rev
			}
		}
	}
	return latest
}

// AllNoteIDs enumerates every live note in the manifest.
func (s *Store) AllNoteIDs() ([]string, error) {
	m, err := ReadManifest(s.manifestPath)
	if err != nil {
		// Absent or corrupt manifest means an empty store.
		return nil, nil
	}

	ids := make([]string, 0, len(m.Notes))
	for id := range m.Notes {
		ids = append(ids, id)
	}
	return ids, nil
}

// NoteUpdatesSince returns every note whose manifest revision exceeds
// revision, with its body copied into the scratch area and loaded.
func (s *Store) NoteUpdatesSince(revision int) (map[string]models.NoteUpdate, error) {
	updates := make(map[string]models.NoteUpdate)

	m, err := ReadManifest(s.manifestPath)
	if err != nil {
		return updates, nil
	}

	if err := s.resetScratch(); err != nil {
		return nil, err
	}

	for id, rev := range m.Notes {
		if rev <= revision {
			continue
		}

		srcPath := s.notePath(rev, id)
		scratchPath := filepath.Join(s.tempDir, id+".note")
		if err := copyFile(srcPath, scratchPath); err != nil {
			return nil, fmt.Errorf("fetch note %s at revision %d: %w", id, rev, err)
		}

		data, err := os.ReadFile(scratchPath)
		if err != nil {
			return nil, fmt.Errorf("read fetched note %s: %w", id, err)
		}

		updates[id] = models.NewNoteUpdate(string(data), "", id, rev)
	}

	s.logger.WithFields(map[string]interface{}{
		"since": revision,
		"count": len(updates),
	}).Debug("Collected note updates")

	return updates, nil
}

// resetScratch empties the download scratch area.
func (s *Store) resetScratch() error {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return fmt.Errorf("read scratch directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(s.tempDir, entry.Name())); err != nil {
			s.logger.WithError(err).Debug("Failed to clear scratch file")
		}
	}
	return nil
}

// UploadNotes copies note bodies into the pending revision directory.
// Notes that fail to copy are logged and skipped.
func (s *Store) UploadNotes(uploads []remote.Upload) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inTx {
		return nil, fmt.Errorf("upload outside transaction")
	}

	revDir := s.revisionDirPath(s.newRevision)
	if err := os.MkdirAll(revDir, 0o755); err != nil {
		return nil, fmt.Errorf("create revision directory: %w", err)
	}

	uploaded := make([]string, 0, len(uploads))
	for _, up := range uploads {
		path := filepath.Join(revDir, up.ID+".note")
		if err := os.WriteFile(path, []byte(up.Content), 0o644); err != nil {
			uerr := &models.UploadError{NoteID: up.ID, Title: up.Title, Err: err}
			s.logger.WithError(uerr).Error("Failed to upload note")
			continue
		}
		s.updated[up.ID] = true
		uploaded = append(uploaded, up.ID)
	}

	s.logger.WithFields(map[string]interface{}{
		"requested": len(uploads),
		"uploaded":  len(uploaded),
	}).Debug("Uploaded notes")

	return uploaded, nil
}

// DeleteNotes marks ids for omission from the next manifest. Physical
// removal happens during commit-time cleanup.
func (s *Store) DeleteNotes(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inTx {
		return fmt.Errorf("delete outside transaction")
	}

	for _, id := range ids {
		s.deleted[id] = true
	}
	return nil
}

// CommitTransaction promotes the pending revision. The lock is
// released on every path out of here, changes or not.
func (s *Store) CommitTransaction() remote.CommitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inTx {
		return remote.CommitResult{OK: false, Reason: fmt.Errorf("commit outside transaction")}
	}

	defer func() {
		s.stopRenewalLocked()
		if err := os.Remove(s.lockPath); err != nil && !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Failed to delete lock record")
		}
		s.lock = nil
		s.inTx = false
	}()

	if len(s.updated) == 0 && len(s.deleted) == 0 {
		s.logger.Debug("Commit with no changes")
		return remote.CommitResult{OK: true, Revision: s.newRevision - 1}
	}

	if err := s.promoteManifestLocked(); err != nil {
		return remote.CommitResult{OK: false, Reason: err}
	}

	s.cleanupSupersededLocked()

	s.logger.WithFields(map[string]interface{}{
		"revision": s.newRevision,
		"updated":  len(s.updated),
		"deleted":  len(s.deleted),
	}).Info("Committed sync transaction")

	return remote.CommitResult{OK: true, Revision: s.newRevision}
}

// promoteManifestLocked builds the new manifest inside the pending
// revision directory and promotes it to the store root. Callers hold
// mu.
func (s *Store) promoteManifestLocked() error {
	revDir := s.revisionDirPath(s.newRevision)
	if err := os.MkdirAll(revDir, 0o755); err != nil {
		return fmt.Errorf("create revision directory: %w", err)
	}

	serverID, err := s.serverIDLocked()
	if err != nil {
		return err
	}

	next := &Manifest{
		Revision: s.newRevision,
		ServerID: serverID,
		Notes:    make(map[string]int),
	}

	// Carry forward previous entries, minus deletions, minus the notes
	// being re-uploaded at the new revision.
	if prev, err := ReadManifest(s.manifestPath); err == nil {
		for id, rev := range prev.Notes {
			if s.deleted[id] || s.updated[id] {
				continue
			}
			next.Notes[id] = rev
		}
	}
	for id := range s.updated {
		next.Notes[id] = s.newRevision
	}

	revManifestPath := filepath.Join(revDir, ManifestFileName)
	if err := WriteManifest(revManifestPath, next); err != nil {
		return err
	}

	// Promote: park the old manifest, copy the new one into place,
	// then drop the parked copy.
	oldPath := s.manifestPath + ".old"
	if _, err := os.Stat(s.manifestPath); err == nil {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear parked manifest: %w", err)
		}
		if err := os.Rename(s.manifestPath, oldPath); err != nil {
			return fmt.Errorf("park old manifest: %w", err)
		}
	}
	if err := copyFile(revManifestPath, s.manifestPath); err != nil {
		return fmt.Errorf("promote manifest: %w", err)
	}
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).Debug("Failed to remove parked manifest")
	}

	return nil
}

// cleanupSupersededLocked removes note files in the immediately
// preceding revision directory that this commit superseded. Errors
// are logged and never fail the commit. Callers hold mu.
func (s *Store) cleanupSupersededLocked() {
	prevDir := s.revisionDirPath(s.newRevision - 1)
	entries, err := os.ReadDir(prevDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == ManifestFileName {
			continue
		}
		id := name
		if ext := filepath.Ext(name); ext != "" {
			id = name[:len(name)-len(ext)]
		}
		if !s.updated[id] && !s.deleted[id] {
			continue
		}
		if err := os.Remove(filepath.Join(prevDir, name)); err != nil {
			s.logger.WithError(err).Warn("Server cleanup failed; integrity is intact, excess files remain")
		}
	}
}

// CancelTransaction releases the lock without touching the manifest.
func (s *Store) CancelTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inTx {
		return nil
	}

	s.stopRenewalLocked()
	s.lock = nil
	s.inTx = false
	s.updated = nil
	s.deleted = nil

	if err := os.Remove(s.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete lock record: %w", err)
	}

	s.logger.Debug("Sync transaction cancelled")
	return nil
}

// CurrentLock reports the lock record currently on the store.
func (s *Store) CurrentLock() (remote.LockState, error) {
	info, err := readLockFile(s.lockPath)
	if err != nil {
		return remote.LockState{}, nil
	}
	return remote.LockState{
		Held:          true,
		TransactionID: info.TransactionID,
		ClientID:      info.ClientID,
		RenewCount:    info.RenewCount,
		Duration:      info.Duration,
		Revision:      info.Revision,
	}, nil
}

// ID returns the store's stable identity, generating one for a store
// that has never been committed to.
func (s *Store) ID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverIDLocked()
}

func (s *Store) serverIDLocked() (string, error) {
	if s.serverID != "" {
		return s.serverID, nil
	}

	if m, err := ReadManifest(s.manifestPath); err == nil && m.ServerID != "" {
		s.serverID = m.ServerID
		return s.serverID, nil
	}

	s.serverID = uuid.NewString()
	return s.serverID, nil
}

// copyFile copies src to dst, replacing dst.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
