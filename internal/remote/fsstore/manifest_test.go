package fsstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearnote/notesync/internal/models"
)

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFileName)

	original := &Manifest{
		Revision: 42,
		ServerID: "server-abc",
		Notes: map[string]int{
			"note-1": 40,
			"note-2": 42,
		},
	}
	require.NoError(t, WriteManifest(path, original))

	read, err := ReadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, original.Revision, read.Revision)
	assert.Equal(t, original.ServerID, read.ServerID)
	assert.Equal(t, original.Notes, read.Notes)
}

func TestManifestDeterministicOutput(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		Revision: 1,
		ServerID: "s",
		Notes:    map[string]int{"b": 1, "a": 0, "c": 1},
	}

	pathA := filepath.Join(dir, "a.xml")
	pathB := filepath.Join(dir, "b.xml")
	require.NoError(t, WriteManifest(pathA, m))
	require.NoError(t, WriteManifest(pathB, m))

	dataA, err := os.ReadFile(pathA)
	require.NoError(t, err)
	dataB, err := os.ReadFile(pathB)
	require.NoError(t, err)
	assert.Equal(t, dataA, dataB)
}

func TestReadManifestMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()

	var corrupt *models.CorruptFileError

	_, err := ReadManifest(filepath.Join(dir, "missing.xml"))
	require.ErrorAs(t, err, &corrupt)

	badPath := filepath.Join(dir, "bad.xml")
	require.NoError(t, os.WriteFile(badPath, []byte("<sync revision="), 0o644))
	_, err = ReadManifest(badPath)
	require.ErrorAs(t, err, &corrupt)
}

func TestIsValidXMLFile(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.xml")
	require.NoError(t, WriteManifest(valid, &Manifest{Revision: 0, Notes: map[string]int{}}))
	assert.True(t, isValidXMLFile(valid))

	empty := filepath.Join(dir, "empty.xml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.False(t, isValidXMLFile(empty), "an empty file has no document")

	truncated := filepath.Join(dir, "truncated.xml")
	require.NoError(t, os.WriteFile(truncated, []byte("<sync revision=\"1\">"), 0o644))
	assert.False(t, isValidXMLFile(truncated))

	assert.False(t, isValidXMLFile(filepath.Join(dir, "missing.xml")))
}
