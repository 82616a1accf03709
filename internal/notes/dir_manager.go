package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/clearnote/notesync/internal/events"
	"github.com/clearnote/notesync/internal/models"
)

// DirManager keeps the note set as one .note file per document in a
// directory, with an in-memory index for lookups.
type DirManager struct {
	baseDir string
	logger  *events.Logger

	mu       sync.RWMutex
	byID     map[string]*models.Note
	deleteFn []func(*models.Note)
	changeFn []func(*models.Note)

	// selfOps counts pending filesystem events caused by this
	// process, so the directory watcher can tell its own writes from
	// external editors.
	selfOps map[string]int
}

// NewDirManager creates a manager over baseDir, loading any existing
// note files. Files that fail to parse are skipped with a warning.
func NewDirManager(baseDir string, logger *events.Logger) (*DirManager, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve notes directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0o700); err != nil {
		return nil, fmt.Errorf("create notes directory: %w", err)
	}

	m := &DirManager{
		baseDir: absPath,
		logger:  logger.WithField("component", "note_manager"),
		byID:    make(map[string]*models.Note),
		selfOps: make(map[string]int),
	}

	if err := m.loadAll(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *DirManager) loadAll() error {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return fmt.Errorf("read notes directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".note") {
			continue
		}

		path := filepath.Join(m.baseDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			m.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable note file")
			continue
		}

		note, err := models.DecodeNoteXML(string(data))
		if err != nil {
			m.logger.WithError(err).WithField("path", path).Warn("Skipping unparsable note file")
			continue
		}

		note.ID = strings.TrimSuffix(entry.Name(), ".note")
		m.byID[note.ID] = note
	}

	m.logger.WithField("count", len(m.byID)).Debug("Loaded notes")
	return nil
}

// Notes returns a snapshot of all live notes.
func (m *DirManager) Notes() []*models.Note {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Note, 0, len(m.byID))
	for _, n := range m.byID {
		out = append(out, n)
	}
	return out
}

// FindByID returns the note with the given identifier, or nil.
func (m *DirManager) FindByID(id string) *models.Note {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

// FindByTitle returns the first note with the given title, or nil.
func (m *DirManager) FindByTitle(title string) *models.Note {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, n := range m.byID {
		if n.Title == title {
			return n
		}
	}
	return nil
}

// Create adds a new note with a fresh identifier.
func (m *DirManager) Create(title, body string) (*models.Note, error) {
	note := models.NewNote(title, body)

	m.mu.Lock()
	m.byID[note.ID] = note
	m.mu.Unlock()

	if err := m.persist(note); err != nil {
		return nil, err
	}

	m.notifyChange(note)
	return note, nil
}

// CreateFromUpdate materializes a remote update as a new local note.
func (m *DirManager) CreateFromUpdate(update models.NoteUpdate) (*models.Note, error) {
	note, err := models.DecodeNoteXML(update.XMLContent)
	if err != nil {
		return nil, fmt.Errorf("create note from update %s: %w", update.ID, err)
	}
	note.ID = update.ID

	m.mu.Lock()
	m.byID[note.ID] = note
	m.mu.Unlock()

	if err := m.persist(note); err != nil {
		return nil, err
	}

	m.notifyChange(note)
	return note, nil
}

// UpdateFromRemote replaces a note's content with a remote update.
func (m *DirManager) UpdateFromRemote(note *models.Note, update models.NoteUpdate) error {
	parsed, err := models.DecodeNoteXML(update.XMLContent)
	if err != nil {
		return fmt.Errorf("update note %s from remote: %w", note.ID, err)
	}

	m.mu.Lock()
	note.Title = parsed.Title
	note.Body = parsed.Body
	note.Tags = parsed.Tags
	note.MetadataChangeTime = parsed.MetadataChangeTime
	m.mu.Unlock()

	if err := m.persist(note); err != nil {
		return err
	}

	m.notifyChange(note)
	return nil
}

// Rename retitles a note without changing its content.
func (m *DirManager) Rename(note *models.Note, title string) error {
	m.mu.Lock()
	note.Title = title
	note.Touch()
	m.mu.Unlock()

	if err := m.persist(note); err != nil {
		return err
	}

	m.notifyChange(note)
	return nil
}

// Delete removes a note and notifies deletion observers.
func (m *DirManager) Delete(note *models.Note) error {
	m.mu.Lock()
	if _, ok := m.byID[note.ID]; !ok {
		m.mu.Unlock()
		return models.ErrNoteNotFound
	}
	delete(m.byID, note.ID)
	m.selfOps[note.FileName()]++
	m.mu.Unlock()

	if err := os.Remove(m.notePath(note)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove note file: %w", err)
	}

	m.mu.RLock()
	hooks := append([]func(*models.Note){}, m.deleteFn...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(note)
	}

	return nil
}

// SerializedContent returns the note's markup blob.
func (m *DirManager) SerializedContent(note *models.Note) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.EncodeNoteXML(note)
}

// OnDelete registers a deletion hook.
func (m *DirManager) OnDelete(fn func(*models.Note)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteFn = append(m.deleteFn, fn)
}

// OnChange registers a change hook.
func (m *DirManager) OnChange(fn func(*models.Note)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeFn = append(m.changeFn, fn)
}

func (m *DirManager) notifyChange(note *models.Note) {
	m.mu.RLock()
	hooks := append([]func(*models.Note){}, m.changeFn...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(note)
	}
}

func (m *DirManager) notePath(note *models.Note) string {
	return filepath.Join(m.baseDir, note.FileName())
}

// persist writes the note file atomically: temp file, then rename.
func (m *DirManager) persist(note *models.Note) error {
	m.mu.RLock()
	blob, err := models.EncodeNoteXML(note)
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	path := m.notePath(note)
	tmpPath := path + ".tmp"

	m.mu.Lock()
	m.selfOps[note.FileName()]++
	m.mu.Unlock()

	if err := os.WriteFile(tmpPath, []byte(blob), 0o600); err != nil {
		return fmt.Errorf("write temp note file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename note file: %w", err)
	}

	return nil
}
