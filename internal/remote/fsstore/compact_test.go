package fsstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearnote/notesync/internal/events"
	"github.com/clearnote/notesync/internal/remote"
)

func TestCompactRemovesSupersededRevisions(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note>v2</note>"})

	// Commit-time cleanup removed the superseded note file; the old
	// revision manifest is still there.
	require.FileExists(t, filepath.Join(root, "0", "0", ManifestFileName))

	stats, err := Compact(root, events.Nop())
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(root, "0", "0"))
	assert.FileExists(t, filepath.Join(root, "0", "1", "n1.note"))
	assert.FileExists(t, filepath.Join(root, "0", "1", ManifestFileName))
	assert.Positive(t, stats.FilesRemoved)
	assert.Positive(t, stats.DirsRemoved)

	// The store still reads back cleanly.
	m, err := ReadManifest(filepath.Join(root, ManifestFileName))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"n1": 1}, m.Notes)
}

func TestCompactRemovesOrphanedFiles(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})

	orphan := filepath.Join(root, "0", "0", "orphan.note")
	require.NoError(t, os.WriteFile(orphan, []byte("<note/>"), 0o644))

	stats, err := Compact(root, events.Nop())
	require.NoError(t, err)

	assert.NoFileExists(t, orphan)
	assert.FileExists(t, filepath.Join(root, "0", "0", "n1.note"))
	assert.Equal(t, 1, stats.FilesRemoved)
}

func TestCompactRefusesLockedStore(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})

	require.NoError(t, writeLockFile(filepath.Join(root, LockFileName), &LockInfo{
		TransactionID: "tx-1",
		ClientID:      "busy-client",
		Duration:      time.Minute,
	}))

	_, err := Compact(root, events.Nop())
	assert.Error(t, err)
}

func TestCompactRequiresManifest(t *testing.T) {
	_, err := Compact(t.TempDir(), events.Nop())
	assert.Error(t, err)
}
