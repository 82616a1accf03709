package fsstore

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/clearnote/notesync/internal/models"
)

// ManifestFileName is the manifest file name, at the store root and
// inside every revision directory.
const ManifestFileName = "manifest.xml"

// Manifest is the authoritative index of a store: its revision, its
// identity, and the revision each live note was last modified at.
type Manifest struct {
	Revision int
	ServerID string
	Notes    map[string]int // note id -> revision last modified
}

// manifestXML is the wire form.
type manifestXML struct {
	XMLName  xml.Name          `xml:"sync"`
	Revision int               `xml:"revision,attr"`
	ServerID string            `xml:"server-id,attr"`
	Notes    []manifestNoteXML `xml:"note"`
}

type manifestNoteXML struct {
	ID  string `xml:"id,attr"`
	Rev int    `xml:"rev,attr"`
}

// ReadManifest parses a manifest file. A missing or unparsable file
// returns a CorruptFileError wrapping the cause; callers treat both
// the same as absence.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.CorruptFileError{Path: path, Err: err}
	}

	var doc manifestXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &models.CorruptFileError{Path: path, Err: err}
	}

	m := &Manifest{
		Revision: doc.Revision,
		ServerID: doc.ServerID,
		Notes:    make(map[string]int, len(doc.Notes)),
	}
	for _, n := range doc.Notes {
		m.Notes[n.ID] = n.Rev
	}
	return m, nil
}

// WriteManifest writes a manifest file. Entries are emitted in sorted
// id order so repeated writes of the same set are byte-identical.
func WriteManifest(path string, m *Manifest) error {
	doc := manifestXML{
		Revision: m.Revision,
		ServerID: m.ServerID,
	}

	ids := make([]string, 0, len(m.Notes))
	for id := range m.Notes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		doc.Notes = append(doc.Notes, manifestNoteXML{ID: id, Rev: m.Notes[id]})
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append([]byte(xml.Header), data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

// isValidXMLFile reports whether the file exists and parses as
// well-formed XML. Any failure reads as "file absent", which is how
// the rest of the store treats corruption.
func isValidXMLFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	sawElement := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return sawElement
		}
		if err != nil {
			return false
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
}
