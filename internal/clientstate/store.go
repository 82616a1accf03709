// Package clientstate tracks what this installation has already
// synchronized: the last fully synced revision, per-note revisions,
// pending deletions, and the identity of the server those numbers are
// scoped to.
package clientstate

import (
	"time"
)

// Store is the local client record. Every setter persists before
// returning, so a crash between sync passes never loses bookkeeping.
type Store interface {
	// LastSyncedRevision returns the last fully synchronized revision,
	// or -1 if this client has never completed a sync.
	LastSyncedRevision() int

	// SetLastSyncedRevision records the revision of the last
	// successful full sync.
	SetLastSyncedRevision(rev int) error

	// LastSyncDate returns the timestamp of the last full sync.
	LastSyncDate() time.Time

	// SetLastSyncDate stamps a completed sync. Recording a new sync
	// date clears the deletion map: deletions older than a full sync
	// have already been propagated.
	SetLastSyncDate(t time.Time) error

	// Revision returns the last synchronized revision for a note, or
	// -1 if the note has never been synchronized from this client.
	Revision(noteID string) int

	// SetRevision records the manifest revision that last carried this
	// note. Called only after a commit has actually succeeded.
	SetRevision(noteID string, rev int) error

	// DeletedNoteTitles maps recently deleted note ids to their last
	// known titles. Entries survive until the next full sync.
	DeletedNoteTitles() map[string]string

	// NoteDeleted records a local deletion, dropping the note from the
	// revision map at the same time.
	NoteDeleted(noteID, title string) error

	// ServerID returns the bound server identity, or "".
	ServerID() string

	// SetServerID binds this record to a server instance.
	SetServerID(id string) error

	// Reset discards the record entirely and reinitializes defaults.
	// Required when the bound server identity no longer matches.
	Reset() error

	// ClientID is a stable identifier for this installation, used in
	// lock records.
	ClientID() string

	// Close releases resources (watchers, database handles).
	Close() error
}
