package settings

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process ListingStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]NodeSettings
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]NodeSettings)}
}

func (m *MemoryStore) Get(_ context.Context, folderID string) (NodeSettings, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.records[folderID]
	return cloneSettings(s), ok, nil
}

func (m *MemoryStore) Set(_ context.Context, folderID string, s NodeSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.records[folderID]
	if err := checkVersion(folderID, stored, exists, s); err != nil {
		return err
	}
	next, err := nextRecord(cloneSettings(s))
	if err != nil {
		return err
	}
	m.records[folderID] = next
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, folderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, folderID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// cloneSettings copies the byte slices so callers cannot alias stored records.
func cloneSettings(s NodeSettings) NodeSettings {
	s.WrappedPrivateKey = append([]byte(nil), s.WrappedPrivateKey...)
	s.Salt = append([]byte(nil), s.Salt...)
	s.IV = append([]byte(nil), s.IV...)
	return s
}
