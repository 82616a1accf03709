package clientstate

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"

	"github.com/clearnote/notesync/internal/events"
)

// SQLiteStore keeps the client record in a SQLite database. Same
// contract as XMLStore; installations with many notes avoid rewriting
// the whole record on every mutation.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger

	mu sync.Mutex
}

// NewSQLiteStore opens (or initializes) a SQLite client record.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_client_state"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sync_meta (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS note_revisions (
        guid TEXT PRIMARY KEY,
        latest_revision INTEGER NOT NULL
    );

    CREATE TABLE IF NOT EXISTS note_deletions (
        guid TEXT PRIMARY KEY,
        title TEXT NOT NULL
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Seed a stable client id on first open.
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sync_meta (key, value) VALUES ('client_id', ?)`,
		uuid.NewString())
	if err != nil {
		return fmt.Errorf("seed client id: %w", err)
	}

	return nil
}

func (s *SQLiteStore) getMeta(key string) string {
	var value string
	err := s.db.QueryRow(`SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

func (s *SQLiteStore) setMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_meta (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// LastSyncedRevision returns the last fully synchronized revision.
func (s *SQLiteStore) LastSyncedRevision() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rev int
	if _, err := fmt.Sscanf(s.getMeta("last_sync_rev"), "%d", &rev); err != nil {
		return -1
	}
	return rev
}

// SetLastSyncedRevision records a completed sync's revision.
func (s *SQLiteStore) SetLastSyncedRevision(rev int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMeta("last_sync_rev", fmt.Sprintf("%d", rev))
}

// LastSyncDate returns the timestamp of the last full sync.
func (s *SQLiteStore) LastSyncDate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := s.getMeta("last_sync_date")
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// SetLastSyncDate stamps a completed sync and forgets old deletions.
func (s *SQLiteStore) SetLastSyncDate(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setMeta("last_sync_date", t.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM note_deletions`); err != nil {
		return fmt.Errorf("clear deletions: %w", err)
	}
	return nil
}

// Revision returns the note's last synchronized revision, or -1.
func (s *SQLiteStore) Revision(noteID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rev int
	err := s.db.QueryRow(
		`SELECT latest_revision FROM note_revisions WHERE guid = ?`, noteID).Scan(&rev)
	if err != nil {
		return -1
	}
	return rev
}

// SetRevision records a note's newly committed revision.
func (s *SQLiteStore) SetRevision(noteID string, rev int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO note_revisions (guid, latest_revision) VALUES (?, ?)
         ON CONFLICT(guid) DO UPDATE SET latest_revision = excluded.latest_revision`,
		noteID, rev)
	if err != nil {
		return fmt.Errorf("set revision for %s: %w", noteID, err)
	}
	return nil
}

// DeletedNoteTitles returns a copy of the deletion map.
func (s *SQLiteStore) DeletedNoteTitles() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	rows, err := s.db.Query(`SELECT guid, title FROM note_deletions`)
	if err != nil {
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var guid, title string
		if err := rows.Scan(&guid, &title); err != nil {
			continue
		}
		out[guid] = title
	}
	return out
}

// NoteDeleted records a local deletion.
func (s *SQLiteStore) NoteDeleted(noteID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin deletion tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO note_deletions (guid, title) VALUES (?, ?)
         ON CONFLICT(guid) DO UPDATE SET title = excluded.title`, noteID, title); err != nil {
		return fmt.Errorf("record deletion: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM note_revisions WHERE guid = ?`, noteID); err != nil {
		return fmt.Errorf("drop revision: %w", err)
	}

	return tx.Commit()
}

// ServerID returns the bound server identity.
func (s *SQLiteStore) ServerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMeta("server_id")
}

// SetServerID binds the record to a server instance.
func (s *SQLiteStore) SetServerID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMeta("server_id", id)
}

// Reset discards all bookkeeping but keeps the client id.
func (s *SQLiteStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Resetting client sync state")

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sync_meta WHERE key != 'client_id'`); err != nil {
		return fmt.Errorf("clear meta: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM note_revisions`); err != nil {
		return fmt.Errorf("clear revisions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM note_deletions`); err != nil {
		return fmt.Errorf("clear deletions: %w", err)
	}

	return tx.Commit()
}

// ClientID returns the stable installation identifier.
func (s *SQLiteStore) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMeta("client_id")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
