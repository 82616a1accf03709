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

func newTestStore(t *testing.T, root, clientID string) *Store {
	t.Helper()
	s, err := New(root, Config{
		TempDir:  t.TempDir(),
		ClientID: clientID,
	}, events.Nop())
	require.NoError(t, err)
	return s
}

func commitNotes(t *testing.T, root string, uploads ...remote.Upload) {
	t.Helper()
	s := newTestStore(t, root, "seed-client")

	lock, err := s.BeginTransaction()
	require.NoError(t, err)
	require.Equal(t, remote.LockAcquired, lock)

	ids, err := s.UploadNotes(uploads)
	require.NoError(t, err)
	require.Len(t, ids, len(uploads))

	result := s.CommitTransaction()
	require.True(t, result.OK, "commit failed: %v", result.Reason)
}

func TestFirstCommitCreatesRevisionZero(t *testing.T) {
	root := t.TempDir()

	commitNotes(t, root,
		remote.Upload{ID: "n1", Title: "One", Content: "<note/>"},
		remote.Upload{ID: "n2", Title: "Two", Content: "<note/>"},
	)

	m, err := ReadManifest(filepath.Join(root, ManifestFileName))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Revision)
	assert.Equal(t, map[string]int{"n1": 0, "n2": 0}, m.Notes)
	assert.NotEmpty(t, m.ServerID)

	assert.FileExists(t, filepath.Join(root, "0", "0", "n1.note"))
	assert.NoFileExists(t, filepath.Join(root, LockFileName))
}

func TestRevisionsIncreaseMonotonically(t *testing.T) {
	root := t.TempDir()

	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note>v2</note>"})
	commitNotes(t, root, remote.Upload{ID: "n2", Title: "Two", Content: "<note/>"})

	m, err := ReadManifest(filepath.Join(root, ManifestFileName))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Revision)
	assert.Equal(t, map[string]int{"n1": 1, "n2": 2}, m.Notes)
}

func TestCommitWithoutChangesKeepsRevision(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})

	s := newTestStore(t, root, "client-b")
	lock, err := s.BeginTransaction()
	require.NoError(t, err)
	require.Equal(t, remote.LockAcquired, lock)

	result := s.CommitTransaction()
	require.True(t, result.OK)
	assert.Equal(t, 0, result.Revision)

	rev, err := s.LatestRevision()
	require.NoError(t, err)
	assert.Equal(t, 0, rev)
	assert.NoFileExists(t, filepath.Join(root, LockFileName))
}

func TestCommitReportsOwnRevision(t *testing.T) {
	root := t.TempDir()

	a := newTestStore(t, root, "client-a")
	lock, err := a.BeginTransaction()
	require.NoError(t, err)
	require.Equal(t, remote.LockAcquired, lock)

	_, err = a.UploadNotes([]remote.Upload{{ID: "n1", Title: "One", Content: "<note/>"}})
	require.NoError(t, err)

	resultA := a.CommitTransaction()
	require.True(t, resultA.OK)
	assert.Equal(t, 0, resultA.Revision)

	// Another client grabs the freed lock and commits right away.
	commitNotes(t, root, remote.Upload{ID: "n2", Title: "Two", Content: "<note/>"})

	latest, err := a.LatestRevision()
	require.NoError(t, err)
	assert.Equal(t, 1, latest, "the store moved past our commit")
	assert.Equal(t, 0, resultA.Revision,
		"the result still names the revision this commit produced")
}

func TestLatestRevisionFallsBackToScan(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})
	commitNotes(t, root, remote.Upload{ID: "n2", Title: "Two", Content: "<note/>"})

	require.NoError(t, os.Remove(filepath.Join(root, ManifestFileName)))

	s := newTestStore(t, root, "client-b")
	rev, err := s.LatestRevision()
	require.NoError(t, err)
	assert.Equal(t, 1, rev)
}

func TestLatestRevisionDiscardsInvalidDirs(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})

	// Fake a half-written revision: directory exists, manifest does not.
	abandoned := filepath.Join(root, "0", "1")
	require.NoError(t, os.MkdirAll(abandoned, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(abandoned, "n9.note"), []byte("<note/>"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(root, ManifestFileName)))

	s := newTestStore(t, root, "client-b")
	rev, err := s.LatestRevision()
	require.NoError(t, err)
	assert.Equal(t, 0, rev)
	assert.NoDirExists(t, abandoned)
}

func TestNoteUpdatesSince(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root,
		remote.Upload{ID: "n1", Title: "One", Content: "<note><title>One</title></note>"},
		remote.Upload{ID: "n2", Title: "Two", Content: "<note><title>Two</title></note>"},
	)
	commitNotes(t, root,
		remote.Upload{ID: "n2", Title: "Two", Content: "<note><title>Two</title><text>v2</text></note>"},
	)

	s := newTestStore(t, root, "client-b")

	all, err := s.NoteUpdatesSince(-1)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 0, all["n1"].Revision)
	assert.Equal(t, 1, all["n2"].Revision)
	assert.Contains(t, all["n2"].XMLContent, "v2")

	recent, err := s.NoteUpdatesSince(0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
	assert.Contains(t, recent, "n2")

	none, err := s.NoteUpdatesSince(1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteNotes(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root,
		remote.Upload{ID: "n1", Title: "One", Content: "<note/>"},
		remote.Upload{ID: "n2", Title: "Two", Content: "<note/>"},
	)

	s := newTestStore(t, root, "client-b")
	lock, err := s.BeginTransaction()
	require.NoError(t, err)
	require.Equal(t, remote.LockAcquired, lock)

	require.NoError(t, s.DeleteNotes([]string{"n2"}))
	result := s.CommitTransaction()
	require.True(t, result.OK)

	m, err := ReadManifest(filepath.Join(root, ManifestFileName))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"n1": 0}, m.Notes)

	ids, err := s.AllNoteIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, ids)
}

func TestCommitCleansSupersededFiles(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note>v2</note>"})

	assert.NoFileExists(t, filepath.Join(root, "0", "0", "n1.note"))
	assert.FileExists(t, filepath.Join(root, "0", "1", "n1.note"))
}

func TestCancelReleasesLockWithoutCommitting(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})

	s := newTestStore(t, root, "client-b")
	lock, err := s.BeginTransaction()
	require.NoError(t, err)
	require.Equal(t, remote.LockAcquired, lock)

	_, err = s.UploadNotes([]remote.Upload{{ID: "n9", Title: "Nine", Content: "<note/>"}})
	require.NoError(t, err)
	require.NoError(t, s.CancelTransaction())

	assert.NoFileExists(t, filepath.Join(root, LockFileName))
	m, err := ReadManifest(filepath.Join(root, ManifestFileName))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Revision)
	assert.NotContains(t, m.Notes, "n9")
}

func TestLockBlocksSecondClient(t *testing.T) {
	root := t.TempDir()

	a := newTestStore(t, root, "client-a")
	lock, err := a.BeginTransaction()
	require.NoError(t, err)
	require.Equal(t, remote.LockAcquired, lock)

	b := newTestStore(t, root, "client-b")
	lock, err = b.BeginTransaction()
	require.NoError(t, err)
	assert.Equal(t, remote.LockHeld, lock)

	// Still within the declared duration.
	lock, err = b.BeginTransaction()
	require.NoError(t, err)
	assert.Equal(t, remote.LockHeld, lock)

	require.NoError(t, a.CancelTransaction())

	lock, err = b.BeginTransaction()
	require.NoError(t, err)
	assert.Equal(t, remote.LockAcquired, lock)
	require.NoError(t, b.CancelTransaction())

	state, err := b.CurrentLock()
	require.NoError(t, err)
	assert.False(t, state.Held)
}

func TestExpiredLockIsTakenOver(t *testing.T) {
	root := t.TempDir()

	stale := &LockInfo{
		TransactionID: "tx-dead",
		ClientID:      "crashed-client",
		Duration:      50 * time.Millisecond,
		Revision:      0,
	}
	require.NoError(t, writeLockFile(filepath.Join(root, LockFileName), stale))

	s := newTestStore(t, root, "client-b")

	lock, err := s.BeginTransaction()
	require.NoError(t, err)
	require.Equal(t, remote.LockHeld, lock, "first sighting starts the wait window")

	time.Sleep(80 * time.Millisecond)

	lock, err = s.BeginTransaction()
	require.NoError(t, err)
	assert.Equal(t, remote.LockAcquired, lock, "unrenewed lock past its duration is abandoned")

	state, err := s.CurrentLock()
	require.NoError(t, err)
	assert.Equal(t, "client-b", state.ClientID)

	require.NoError(t, s.CancelTransaction())
}

func TestRenewedLockRestartsWaitWindow(t *testing.T) {
	root := t.TempDir()
	lockPath := filepath.Join(root, LockFileName)

	info := &LockInfo{
		TransactionID: "tx-alive",
		ClientID:      "other-client",
		Duration:      50 * time.Millisecond,
	}
	require.NoError(t, writeLockFile(lockPath, info))

	s := newTestStore(t, root, "client-b")
	lock, err := s.BeginTransaction()
	require.NoError(t, err)
	require.Equal(t, remote.LockHeld, lock)

	time.Sleep(80 * time.Millisecond)

	// The holder renews; the changed record must reset the window even
	// though the old duration has elapsed.
	info.RenewCount = 1
	require.NoError(t, writeLockFile(lockPath, info))

	lock, err = s.BeginTransaction()
	require.NoError(t, err)
	assert.Equal(t, remote.LockHeld, lock)
}

func TestCorruptLockIsIgnored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, LockFileName), []byte("not a lock"), 0o644))

	s := newTestStore(t, root, "client-b")
	lock, err := s.BeginTransaction()
	require.NoError(t, err)
	assert.Equal(t, remote.LockAcquired, lock)
	require.NoError(t, s.CancelTransaction())
}

func TestTakeoverRestoresManifestFromRevisionDir(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})

	// Simulate a writer that died mid-promotion: root manifest gone,
	// stale lock left behind.
	require.NoError(t, os.Remove(filepath.Join(root, ManifestFileName)))
	require.NoError(t, writeLockFile(filepath.Join(root, LockFileName), &LockInfo{
		TransactionID: "tx-dead",
		ClientID:      "crashed-client",
		Duration:      50 * time.Millisecond,
	}))

	s := newTestStore(t, root, "client-b")

	lock, err := s.BeginTransaction()
	require.NoError(t, err)
	require.Equal(t, remote.LockHeld, lock)

	time.Sleep(80 * time.Millisecond)

	lock, err = s.BeginTransaction()
	require.NoError(t, err)
	require.Equal(t, remote.LockAcquired, lock)
	require.NoError(t, s.CancelTransaction())

	m, err := ReadManifest(filepath.Join(root, ManifestFileName))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Revision)
	assert.Contains(t, m.Notes, "n1")
}

func TestServerIDStableAcrossStores(t *testing.T) {
	root := t.TempDir()
	commitNotes(t, root, remote.Upload{ID: "n1", Title: "One", Content: "<note/>"})

	a := newTestStore(t, root, "client-a")
	idA, err := a.ID()
	require.NoError(t, err)

	b := newTestStore(t, root, "client-b")
	idB, err := b.ID()
	require.NoError(t, err)

	assert.Equal(t, idA, idB)
	assert.NotEmpty(t, idA)
}
