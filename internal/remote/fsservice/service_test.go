package fsservice

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearnote/notesync/internal/events"
	"github.com/clearnote/notesync/internal/remote"
)

type fakePersister struct {
	saved   []string
	cleared int
}

func (p *fakePersister) SaveSyncConfig(path string) error { p.saved = append(p.saved, path); return nil }
func (p *fakePersister) ClearSyncConfig() error           { p.cleared++; return nil }

func TestCreateStoreOverLocalDirectory(t *testing.T) {
	root := t.TempDir()

	svc := New(Config{
		Path:     root,
		TempDir:  t.TempDir(),
		ClientID: "client-1",
	}, nil, nil, events.Nop())

	assert.True(t, svc.IsConfigured())
	assert.True(t, svc.IsSupported())
	assert.Equal(t, "filesystem", svc.ID())

	store, err := svc.CreateStore()
	require.NoError(t, err)

	lock, err := store.BeginTransaction()
	require.NoError(t, err)
	assert.Equal(t, remote.LockAcquired, lock)
	require.NoError(t, store.CancelTransaction())
}

func TestCreateStoreCreatesMissingDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "not", "yet", "there")

	svc := New(Config{Path: root, TempDir: t.TempDir(), ClientID: "c"}, nil, nil, events.Nop())

	_, err := svc.CreateStore()
	require.NoError(t, err)
	assert.DirExists(t, root)
}

func TestSaveAndResetConfiguration(t *testing.T) {
	persister := &fakePersister{}
	svc := New(Config{Path: "/srv/notes", ClientID: "c"}, nil, persister, events.Nop())

	require.NoError(t, svc.SaveConfiguration())
	assert.Equal(t, []string{"/srv/notes"}, persister.saved)

	require.NoError(t, svc.ResetConfiguration())
	assert.Equal(t, 1, persister.cleared)
	assert.False(t, svc.IsConfigured())
}
