package clientstate

import (
	"sync"
	"time"
)

// MockStore provides an in-memory Store for testing.
type MockStore struct {
	mu           sync.RWMutex
	lastSyncDate time.Time
	lastSyncRev  int
	serverID     string
	clientID     string
	revisions    map[string]int
	deletions    map[string]string

	// ResetCount records how many times Reset was called.
	ResetCount int
}

// NewMockStore creates an in-memory client record.
func NewMockStore() *MockStore {
	return &MockStore{
		lastSyncRev: -1,
		clientID:    "mock-client",
		revisions:   make(map[string]int),
		deletions:   make(map[string]string),
	}
}

func (m *MockStore) LastSyncedRevision() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSyncRev
}

func (m *MockStore) SetLastSyncedRevision(rev int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSyncRev = rev
	return nil
}

func (m *MockStore) LastSyncDate() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSyncDate
}

func (m *MockStore) SetLastSyncDate(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSyncDate = t
	m.deletions = make(map[string]string)
	return nil
}

func (m *MockStore) Revision(noteID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rev, ok := m.revisions[noteID]; ok {
		return rev
	}
	return -1
}

func (m *MockStore) SetRevision(noteID string, rev int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revisions[noteID] = rev
	return nil
}

func (m *MockStore) DeletedNoteTitles() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.deletions))
	for k, v := range m.deletions {
		out[k] = v
	}
	return out
}

func (m *MockStore) NoteDeleted(noteID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletions[noteID] = title
	delete(m.revisions, noteID)
	return nil
}

func (m *MockStore) ServerID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serverID
}

func (m *MockStore) SetServerID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serverID = id
	return nil
}

func (m *MockStore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSyncDate = time.Time{}
	m.lastSyncRev = -1
	m.serverID = ""
	m.revisions = make(map[string]int)
	m.deletions = make(map[string]string)
	m.ResetCount++
	return nil
}

func (m *MockStore) ClientID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientID
}

func (m *MockStore) Close() error {
	return nil
}
