// Package notes owns the local document set. Sync never touches note
// files directly; every mutation goes through a Manager so the
// interactive surface and the sync pass stay consistent.
package notes

import (
	"fmt"

	"github.com/clearnote/notesync/internal/models"
)

// Manager is the document-manager seam the sync core consumes.
type Manager interface {
	// Notes returns a snapshot of all live notes.
	Notes() []*models.Note

	// FindByID returns the note with the given identifier, or nil.
	FindByID(id string) *models.Note

	// FindByTitle returns the note with the given title, or nil.
	FindByTitle(title string) *models.Note

	// Create adds a new note with a fresh identifier.
	Create(title, body string) (*models.Note, error)

	// CreateFromUpdate materializes a remote update as a new local
	// note, keeping the update's identifier.
	CreateFromUpdate(update models.NoteUpdate) (*models.Note, error)

	// UpdateFromRemote replaces a local note's content with a remote
	// update, in place.
	UpdateFromRemote(note *models.Note, update models.NoteUpdate) error

	// Rename retitles a note without changing its content.
	Rename(note *models.Note, title string) error

	// Delete removes a note and reports the deletion to observers.
	Delete(note *models.Note) error

	// SerializedContent returns the note's markup blob, the form that
	// travels to the server and feeds content comparison.
	SerializedContent(note *models.Note) (string, error)

	// OnDelete registers a hook invoked after every deletion.
	OnDelete(fn func(*models.Note))

	// OnChange registers a hook invoked after every create, update,
	// or rename. The background scheduler uses this to detect edits.
	OnChange(fn func(*models.Note))
}

// UniqueTitle derives a title from base that collides with none of
// taken, in the usual "Title (2)" style.
func UniqueTitle(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", base, i)
		if !taken[candidate] {
			return candidate
		}
	}
}
