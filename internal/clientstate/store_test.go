package clientstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearnote/notesync/internal/events"
)

// The XML and SQLite backends must be interchangeable, so both run
// the same operation suite.
func TestStoreBackends(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T, dir string) Store
	}{
		{
			name: "xml",
			open: func(t *testing.T, dir string) Store {
				s, err := NewXMLStore(dir, events.Nop())
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T, dir string) Store {
				s, err := NewSQLiteStore(filepath.Join(dir, "state.db"), events.Nop())
				require.NoError(t, err)
				return s
			},
		},
	}

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			t.Run("defaults", func(t *testing.T) {
				s := backend.open(t, t.TempDir())
				defer s.Close()

				assert.Equal(t, -1, s.LastSyncedRevision())
				assert.True(t, s.LastSyncDate().IsZero())
				assert.Equal(t, -1, s.Revision("never-seen"))
				assert.Empty(t, s.DeletedNoteTitles())
				assert.Equal(t, "", s.ServerID())
				assert.NotEmpty(t, s.ClientID())
			})

			t.Run("bookkeeping round trip", func(t *testing.T) {
				s := backend.open(t, t.TempDir())
				defer s.Close()

				require.NoError(t, s.SetLastSyncedRevision(7))
				require.NoError(t, s.SetRevision("note-a", 7))
				require.NoError(t, s.SetServerID("server-1"))

				assert.Equal(t, 7, s.LastSyncedRevision())
				assert.Equal(t, 7, s.Revision("note-a"))
				assert.Equal(t, "server-1", s.ServerID())
			})

			t.Run("deletion drops revision", func(t *testing.T) {
				s := backend.open(t, t.TempDir())
				defer s.Close()

				require.NoError(t, s.SetRevision("note-a", 3))
				require.NoError(t, s.NoteDeleted("note-a", "Groceries"))

				assert.Equal(t, -1, s.Revision("note-a"))
				assert.Equal(t, map[string]string{"note-a": "Groceries"}, s.DeletedNoteTitles())
			})

			t.Run("sync date clears deletions", func(t *testing.T) {
				s := backend.open(t, t.TempDir())
				defer s.Close()

				require.NoError(t, s.NoteDeleted("note-a", "Groceries"))
				when := time.Now()
				require.NoError(t, s.SetLastSyncDate(when))

				assert.Empty(t, s.DeletedNoteTitles())
				assert.WithinDuration(t, when, s.LastSyncDate(), time.Second)
			})

			t.Run("reset keeps client id", func(t *testing.T) {
				s := backend.open(t, t.TempDir())
				defer s.Close()

				clientID := s.ClientID()
				require.NoError(t, s.SetLastSyncedRevision(9))
				require.NoError(t, s.SetServerID("server-1"))
				require.NoError(t, s.SetRevision("note-a", 9))

				require.NoError(t, s.Reset())

				assert.Equal(t, -1, s.LastSyncedRevision())
				assert.Equal(t, "", s.ServerID())
				assert.Equal(t, -1, s.Revision("note-a"))
				assert.Equal(t, clientID, s.ClientID())
			})

			t.Run("state survives reopen", func(t *testing.T) {
				dir := t.TempDir()

				s := backend.open(t, dir)
				require.NoError(t, s.SetLastSyncedRevision(12))
				require.NoError(t, s.SetRevision("note-a", 12))
				require.NoError(t, s.SetServerID("server-2"))
				clientID := s.ClientID()
				require.NoError(t, s.Close())

				reopened := backend.open(t, dir)
				defer reopened.Close()

				assert.Equal(t, 12, reopened.LastSyncedRevision())
				assert.Equal(t, 12, reopened.Revision("note-a"))
				assert.Equal(t, "server-2", reopened.ServerID())
				assert.Equal(t, clientID, reopened.ClientID())
			})
		})
	}
}

func TestXMLStoreCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, RecordFileName), []byte("<manifest><broken"), 0o600))

	s, err := NewXMLStore(dir, events.Nop())
	require.NoError(t, err, "corrupt record must reinitialize, not fail")
	defer s.Close()

	assert.Equal(t, -1, s.LastSyncedRevision())
	assert.True(t, s.LastSyncDate().IsZero())
}
