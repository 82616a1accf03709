package models

import (
	"time"

	"github.com/google/uuid"
)

// Note is one local document as seen by the sync core. The note
// manager owns the authoritative copy; sync only reads these fields
// and hands mutations back to the manager.
type Note struct {
	ID                 string
	Title              string
	Body               string
	Tags               []string
	MetadataChangeTime time.Time
}

// NewNote creates a note with a fresh identifier.
func NewNote(title, body string) *Note {
	return &Note{
		ID:                 uuid.NewString(),
		Title:              title,
		Body:               body,
		MetadataChangeTime: time.Now(),
	}
}

// Touch updates the metadata-change timestamp.
func (n *Note) Touch() {
	n.MetadataChangeTime = time.Now()
}

// FileName returns the on-disk name for the note's serialized form.
func (n *Note) FileName() string {
	return n.ID + ".note"
}

// NoteUpdate is one fetched document body in flight during a download
// batch: the serialized content plus the identity needed to apply it.
type NoteUpdate struct {
	ID         string
	Title      string
	XMLContent string
	Revision   int
}

// NewNoteUpdate builds an update, recovering the title from the
// serialized content when the caller does not know it.
func NewNoteUpdate(xmlContent, title, id string, revision int) NoteUpdate {
	u := NoteUpdate{
		ID:         id,
		Title:      title,
		XMLContent: xmlContent,
		Revision:   revision,
	}
	if u.Title == "" && xmlContent != "" {
		if parsed, err := DecodeNoteXML(xmlContent); err == nil {
			u.Title = parsed.Title
		}
	}
	return u
}
