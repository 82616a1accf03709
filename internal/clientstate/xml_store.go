package clientstate

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/clearnote/notesync/internal/events"
)

// RecordFileName is the local client record file name.
const RecordFileName = "manifest.xml"

// clientRecordXML is the persisted form of the client record.
type clientRecordXML struct {
	XMLName      xml.Name          `xml:"manifest"`
	LastSyncDate string            `xml:"last-sync-date"`
	LastSyncRev  int               `xml:"last-sync-rev"`
	ServerID     string            `xml:"server-id"`
	ClientID     string            `xml:"client-id"`
	Revisions    []noteRevisionXML `xml:"note-revisions>note"`
	Deletions    []noteDeletionXML `xml:"note-deletions>note"`
}

type noteRevisionXML struct {
	GUID     string `xml:"guid,attr"`
	Revision int    `xml:"latest-revision,attr"`
}

type noteDeletionXML struct {
	GUID  string `xml:"guid,attr"`
	Title string `xml:"title,attr"`
}

// XMLStore keeps the client record in a small XML file, rewritten on
// every mutation and reparsed when the backing file changes from
// outside the process.
type XMLStore struct {
	path    string
	logger  *events.Logger
	watcher *fsnotify.Watcher

	mu           sync.RWMutex
	lastSyncDate time.Time
	lastSyncRev  int
	serverID     string
	clientID     string
	revisions    map[string]int
	deletions    map[string]string

	// selfWrites counts our own pending writes so the watcher does not
	// reparse a file we just wrote.
	selfWrites int
	done       chan struct{}
}

// NewXMLStore opens (or initializes) the client record under baseDir
// and starts watching it for external changes.
func NewXMLStore(baseDir string, logger *events.Logger) (*XMLStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	s := &XMLStore{
		path:   filepath.Join(baseDir, RecordFileName),
		logger: logger.WithField("component", "client_state"),
		done:   make(chan struct{}),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create state watcher: %w", err)
	}
	if err := watcher.Add(baseDir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch state directory: %w", err)
	}
	s.watcher = watcher
	go s.watch()

	return s, nil
}

// load parses the record file, falling back to defaults when the file
// is missing or unparsable, and writes the defaults back out.
func (s *XMLStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *XMLStore) loadLocked() error {
	s.lastSyncDate = time.Time{}
	s.lastSyncRev = -1
	s.serverID = ""
	s.revisions = make(map[string]int)
	s.deletions = make(map[string]string)
	if s.clientID == "" {
		s.clientID = uuid.NewString()
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.writeLocked()
	}
	if err != nil {
		return fmt.Errorf("read client record: %w", err)
	}

	var record clientRecordXML
	if err := xml.Unmarshal(data, &record); err != nil {
		s.logger.WithError(err).Warn("Client record unparsable, reinitializing")
		return s.writeLocked()
	}

	if record.LastSyncDate != "" {
		if ts, err := time.Parse(time.RFC3339Nano, record.LastSyncDate); err == nil {
			s.lastSyncDate = ts
		}
	}
	s.lastSyncRev = record.LastSyncRev
	s.serverID = record.ServerID
	if record.ClientID != "" {
		s.clientID = record.ClientID
	}
	for _, rev := range record.Revisions {
		s.revisions[rev.GUID] = rev.Revision
	}
	for _, del := range record.Deletions {
		s.deletions[del.GUID] = del.Title
	}

	return nil
}

// watch reparses the record whenever another process rewrites it.
func (s *XMLStore) watch() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != RecordFileName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			s.mu.Lock()
			if s.selfWrites > 0 {
				s.selfWrites--
				s.mu.Unlock()
				continue
			}
			s.logger.Debug("Client record changed externally, reloading")
			if err := s.loadLocked(); err != nil {
				s.logger.WithError(err).Warn("Failed to reload client record")
			}
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Warn("Client record watcher error")
		}
	}
}

// writeLocked rewrites the record file atomically. Callers hold mu.
func (s *XMLStore) writeLocked() error {
	record := clientRecordXML{
		LastSyncRev: s.lastSyncRev,
		ServerID:    s.serverID,
		ClientID:    s.clientID,
	}
	if !s.lastSyncDate.IsZero() {
		record.LastSyncDate = s.lastSyncDate.UTC().Format(time.RFC3339Nano)
	}
	for guid, rev := range s.revisions {
		record.Revisions = append(record.Revisions, noteRevisionXML{GUID: guid, Revision: rev})
	}
	for guid, title := range s.deletions {
		record.Deletions = append(record.Deletions, noteDeletionXML{GUID: guid, Title: title})
	}

	data, err := xml.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal client record: %w", err)
	}
	data = append([]byte(xml.Header), data...)

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp client record: %w", err)
	}

	s.selfWrites++
	if err := os.Rename(tmpPath, s.path); err != nil {
		s.selfWrites--
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename client record: %w", err)
	}

	return nil
}

// LastSyncedRevision returns the last fully synchronized revision.
func (s *XMLStore) LastSyncedRevision() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncRev
}

// SetLastSyncedRevision records a completed sync's revision.
func (s *XMLStore) SetLastSyncedRevision(rev int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSyncRev = rev
	return s.writeLocked()
}

// LastSyncDate returns the timestamp of the last full sync.
func (s *XMLStore) LastSyncDate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncDate
}

// SetLastSyncDate stamps a completed sync and forgets old deletions.
func (s *XMLStore) SetLastSyncDate(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSyncDate = t
	s.deletions = make(map[string]string)
	return s.writeLocked()
}

// Revision returns the note's last synchronized revision, or -1.
func (s *XMLStore) Revision(noteID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rev, ok := s.revisions[noteID]; ok {
		return rev
	}
	return -1
}

// SetRevision records a note's newly committed revision.
func (s *XMLStore) SetRevision(noteID string, rev int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revisions[noteID] = rev
	return s.writeLocked()
}

// DeletedNoteTitles returns a copy of the deletion map.
func (s *XMLStore) DeletedNoteTitles() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.deletions))
	for k, v := range s.deletions {
		out[k] = v
	}
	return out
}

// NoteDeleted records a local deletion immediately, whether or not a
// sync pass is running.
func (s *XMLStore) NoteDeleted(noteID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletions[noteID] = title
	delete(s.revisions, noteID)
	return s.writeLocked()
}

// ServerID returns the bound server identity.
func (s *XMLStore) ServerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverID
}

// SetServerID binds the record to a server instance.
func (s *XMLStore) SetServerID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverID = id
	return s.writeLocked()
}

// Reset discards all bookkeeping. The client id survives; it belongs
// to the installation, not to any server binding.
func (s *XMLStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Resetting client sync state")
	s.lastSyncDate = time.Time{}
	s.lastSyncRev = -1
	s.serverID = ""
	s.revisions = make(map[string]int)
	s.deletions = make(map[string]string)
	return s.writeLocked()
}

// ClientID returns the stable installation identifier.
func (s *XMLStore) ClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientID
}

// Close stops the file watcher.
func (s *XMLStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
