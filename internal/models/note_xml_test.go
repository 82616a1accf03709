package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteXMLRoundTrip(t *testing.T) {
	original := &Note{
		ID:                 "abc-123",
		Title:              "Groceries",
		Body:               "milk\neggs\nbread",
		Tags:               []string{"home", "weekly"},
		MetadataChangeTime: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}

	blob, err := EncodeNoteXML(original)
	require.NoError(t, err)
	assert.Contains(t, blob, "<title>Groceries</title>")

	decoded, err := DecodeNoteXML(blob)
	require.NoError(t, err)

	assert.Equal(t, original.Title, decoded.Title)
	assert.Equal(t, original.Body, decoded.Body)
	assert.Equal(t, original.Tags, decoded.Tags)
	assert.True(t, original.MetadataChangeTime.Equal(decoded.MetadataChangeTime))
}

func TestDecodeNoteXMLInvalid(t *testing.T) {
	_, err := DecodeNoteXML("not xml at all")
	assert.Error(t, err)
}

func TestTitleFromNoteXML(t *testing.T) {
	blob, err := EncodeNoteXML(NewNote("Meeting Notes", "agenda"))
	require.NoError(t, err)

	assert.Equal(t, "Meeting Notes", TitleFromNoteXML(blob))
	assert.Equal(t, "", TitleFromNoteXML("<broken"))
}

func TestContentEquals(t *testing.T) {
	base := &Note{Title: "A", Body: "text", Tags: []string{"x", "y"}}

	tests := []struct {
		name  string
		other *Note
		want  bool
	}{
		{"identical", &Note{Title: "A", Body: "text", Tags: []string{"x", "y"}}, true},
		{"tag order ignored", &Note{Title: "A", Body: "text", Tags: []string{"y", "x"}}, true},
		{"whitespace ignored", &Note{Title: "A", Body: "  text\n", Tags: []string{"x", "y"}}, true},
		{"different title", &Note{Title: "B", Body: "text", Tags: []string{"x", "y"}}, false},
		{"different body", &Note{Title: "A", Body: "other", Tags: []string{"x", "y"}}, false},
		{"different tags", &Note{Title: "A", Body: "text", Tags: []string{"x"}}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.ContentEquals(tt.other))
		})
	}
}

func TestSynchronizedXMLMatches(t *testing.T) {
	a := NewNote("Same", "content")
	b := &Note{Title: "Same", Body: "content\n", MetadataChangeTime: time.Now().Add(time.Hour)}

	blobA, err := EncodeNoteXML(a)
	require.NoError(t, err)
	blobB, err := EncodeNoteXML(b)
	require.NoError(t, err)

	assert.True(t, SynchronizedXMLMatches(blobA, blobB),
		"timestamp differences must not count as modification")
	assert.False(t, SynchronizedXMLMatches(blobA, "garbage"))
}

func TestNewNoteUpdateRecoversTitle(t *testing.T) {
	blob, err := EncodeNoteXML(NewNote("Recovered", "body"))
	require.NoError(t, err)

	up := NewNoteUpdate(blob, "", "id-1", 4)
	assert.Equal(t, "Recovered", up.Title)
	assert.Equal(t, 4, up.Revision)

	explicit := NewNoteUpdate(blob, "Given", "id-2", 5)
	assert.Equal(t, "Given", explicit.Title)
}
