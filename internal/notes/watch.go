package notes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/clearnote/notesync/internal/models"
)

// Watch follows the notes directory until ctx is cancelled, folding
// external edits into the in-memory index. Change and delete hooks
// fire for externally modified notes the same way they do for API
// mutations; writes issued by this process are ignored.
func (m *DirManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create notes watcher: %w", err)
	}
	if err := watcher.Add(m.baseDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch notes directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				m.handleFsEvent(event)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.WithError(err).Warn("Notes watcher error")
			}
		}
	}()

	return nil
}

func (m *DirManager) handleFsEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".note") {
		return
	}

	m.mu.Lock()
	if m.selfOps[name] > 0 {
		m.selfOps[name]--
		if m.selfOps[name] == 0 {
			delete(m.selfOps, name)
		}
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	id := strings.TrimSuffix(name, ".note")

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		m.mu.Lock()
		note, ok := m.byID[id]
		if ok {
			delete(m.byID, id)
		}
		hooks := append([]func(*models.Note){}, m.deleteFn...)
		m.mu.Unlock()
		if !ok {
			return
		}
		m.logger.WithField("note_id", id).Debug("Note removed externally")
		for _, fn := range hooks {
			fn(note)
		}

	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		data, err := os.ReadFile(event.Name)
		if err != nil {
			// Editors often replace files in several steps; a missing
			// file here just means a later event carries the content.
			return
		}
		parsed, err := models.DecodeNoteXML(string(data))
		if err != nil {
			m.logger.WithError(err).WithField("note_id", id).Debug("Ignoring unparsable external edit")
			return
		}
		parsed.ID = id

		m.mu.Lock()
		existing, ok := m.byID[id]
		if ok {
			existing.Title = parsed.Title
			existing.Body = parsed.Body
			existing.Tags = parsed.Tags
			existing.MetadataChangeTime = parsed.MetadataChangeTime
		} else {
			m.byID[id] = parsed
			existing = parsed
		}
		m.mu.Unlock()

		m.logger.WithField("note_id", id).Debug("Note changed externally")
		m.notifyChange(existing)
	}
}
