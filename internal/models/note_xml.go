package models

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"
)

// NoteXMLVersion is written into every serialized note.
const NoteXMLVersion = "0.3"

// noteXML is the wire form of a note: a self-contained markup blob
// that round-trips everything sync needs to recreate the document.
type noteXML struct {
	XMLName            xml.Name `xml:"note"`
	Version            string   `xml:"version,attr"`
	Title              string   `xml:"title"`
	Text               string   `xml:"text"`
	Tags               []string `xml:"tags>tag"`
	MetadataChangeDate string   `xml:"last-metadata-change-date"`
}

// EncodeNoteXML serializes a note to its markup blob.
func EncodeNoteXML(n *Note) (string, error) {
	doc := noteXML{
		Version:            NoteXMLVersion,
		Title:              n.Title,
		Text:               n.Body,
		Tags:               n.Tags,
		MetadataChangeDate: n.MetadataChangeTime.UTC().Format(time.RFC3339Nano),
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal note %s: %w", n.ID, err)
	}
	return xml.Header + string(data) + "\n", nil
}

// DecodeNoteXML parses a markup blob back into a note. The identifier
// is not part of the blob; callers supply it from the surrounding
// context (file name or manifest entry).
func DecodeNoteXML(blob string) (*Note, error) {
	var doc noteXML
	if err := xml.Unmarshal([]byte(blob), &doc); err != nil {
		return nil, fmt.Errorf("parse note xml: %w", err)
	}

	n := &Note{
		Title: doc.Title,
		Body:  doc.Text,
		Tags:  doc.Tags,
	}
	if doc.MetadataChangeDate != "" {
		if ts, err := time.Parse(time.RFC3339Nano, doc.MetadataChangeDate); err == nil {
			n.MetadataChangeTime = ts
		}
	}
	return n, nil
}

// TitleFromNoteXML extracts just the title from a markup blob, or ""
// if the blob cannot be parsed.
func TitleFromNoteXML(blob string) string {
	n, err := DecodeNoteXML(blob)
	if err != nil {
		return ""
	}
	return n.Title
}

// SynchronizedXMLMatches reports whether two note blobs carry the same
// synchronized content: title, tag set, and body text. Formatting
// noise and timestamps are ignored, so a note that merely round-
// tripped through the server does not look modified.
func SynchronizedXMLMatches(blobA, blobB string) bool {
	a, errA := DecodeNoteXML(blobA)
	b, errB := DecodeNoteXML(blobB)
	if errA != nil || errB != nil {
		return false
	}
	return a.ContentEquals(b)
}

// ContentEquals compares title, tag set, and body, ignoring tag order
// and surrounding whitespace.
func (n *Note) ContentEquals(other *Note) bool {
	if other == nil {
		return false
	}
	if n.Title != other.Title {
		return false
	}
	if strings.TrimSpace(n.Body) != strings.TrimSpace(other.Body) {
		return false
	}
	return sortedTags(n.Tags) == sortedTags(other.Tags)
}

func sortedTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}
