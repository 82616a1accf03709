// Package remote defines the contracts between the sync orchestrator
// and a revision-numbered note store, plus the service seam a
// transport plugs into.
package remote

import (
	"time"

	"github.com/clearnote/notesync/internal/models"
)

// LockResult reports the outcome of a lock acquisition attempt.
// Contention is a scheduling signal, not an error, so it gets its own
// arm instead of hiding in an error value.
type LockResult int

const (
	// LockAcquired means this client now holds the transaction lock.
	LockAcquired LockResult = iota

	// LockHeld means another client holds an unexpired lock; try
	// again after its declared duration.
	LockHeld

	// LockError means the attempt failed outright; the accompanying
	// error carries the cause.
	LockError
)

func (r LockResult) String() string {
	switch r {
	case LockAcquired:
		return "acquired"
	case LockHeld:
		return "held"
	case LockError:
		return "error"
	default:
		return "unknown"
	}
}

// CommitResult reports the outcome of a commit. Revision is the
// store's revision once the commit is done, captured while the lock
// was still held; reading LatestRevision after the lock is released
// can observe another client's commit.
type CommitResult struct {
	OK       bool
	Revision int
	Reason   error
}

// LockState is the currently observable lock record, if any.
type LockState struct {
	Held          bool
	TransactionID string
	ClientID      string
	RenewCount    int
	Duration      time.Duration
	Revision      int
}

// Upload is one note handed to the store for upload: identity plus
// its serialized body.
type Upload struct {
	ID      string
	Title   string
	Content string
}

// Store is a transactional, revision-numbered note store. All write
// operations are only valid between BeginTransaction and
// CommitTransaction/CancelTransaction.
type Store interface {
	// BeginTransaction claims exclusive write access. LockHeld is not
	// an error: it means another client is synchronizing and the
	// caller should retry after the lock's declared duration.
	BeginTransaction() (LockResult, error)

	// CommitTransaction promotes the pending revision, releases the
	// lock, and reports whether the new manifest is in place. The lock
	// is released even when nothing was uploaded or deleted.
	CommitTransaction() CommitResult

	// CancelTransaction releases the lock without touching the
	// manifest. Safe to call on any failure path.
	CancelTransaction() error

	// LatestRevision returns the newest committed revision, or -1 for
	// an empty store. Only stable inside an open transaction.
	LatestRevision() (int, error)

	// AllNoteIDs enumerates every live note in the manifest.
	AllNoteIDs() ([]string, error)

	// NoteUpdatesSince returns every note whose manifest revision
	// exceeds revision, keyed by note id, with bodies loaded.
	NoteUpdatesSince(revision int) (map[string]models.NoteUpdate, error)

	// UploadNotes copies note bodies into the pending revision.
	// Per-note failures are logged and skipped; the returned slice
	// holds the ids that made it.
	UploadNotes(uploads []Upload) ([]string, error)

	// DeleteNotes marks ids for omission from the next manifest.
	DeleteNotes(ids []string) error

	// CurrentLock reports the lock record currently visible on the
	// store, parsed leniently (a corrupt record reads as not held).
	CurrentLock() (LockState, error)

	// ID returns the store's stable identity token, generating one if
	// the store has never been written to.
	ID() (string, error)
}
