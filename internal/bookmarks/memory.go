package bookmarks

import (
	"context"
	"fmt"
	"sync"

	kerrors "github.com/bmlock/bmlock/internal/errors"
)

// MemoryStore is an in-process Tree.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]Item
	children map[string][]string

	// FailUpdateAfter makes UpdateItem fail once this many updates have succeeded.
	// Zero disables it.
	FailUpdateAfter int
	updates         int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]Item),
		children: make(map[string][]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; ok {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	if item.ParentID != RootID {
		parent, ok := m.items[item.ParentID]
		if !ok {
			return fmt.Errorf("parent %s: %w", item.ParentID, kerrors.ErrNotFound)
		}
		if !parent.IsFolder() {
			return fmt.Errorf("parent %s: %w", item.ParentID, kerrors.ErrNotFolder)
		}
	}
	m.items[item.ID] = item
	m.children[item.ParentID] = append(m.children[item.ParentID], item.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return Item{}, fmt.Errorf("item %s: %w", id, kerrors.ErrNotFound)
	}
	return item, nil
}

func (m *MemoryStore) ListChildren(_ context.Context, folderID string) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.children[folderID]
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.items[id])
	}
	return out, nil
}

func (m *MemoryStore) UpdateItem(_ context.Context, id string, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUpdateAfter > 0 && m.updates >= m.FailUpdateAfter {
		return fmt.Errorf("update %s: %w", id, kerrors.ErrStoreUnavailable)
	}
	item, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, kerrors.ErrNotFound)
	}
	item.apply(u)
	m.items[id] = item
	m.updates++
	return nil
}
