package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	kerrors "github.com/bmlock/bmlock/internal/errors"
)

// LocalStore keeps all folder records in one JSON file keyed "node_settings/<id>",
// the same layout as a settings backup.
type LocalStore struct {
	Path string

	mu sync.Mutex
}

// NewLocalStore creates a new local store instance
func NewLocalStore(path string) *LocalStore {
	return &LocalStore{Path: path}
}

// EnsureDir ensures the settings directory exists
func (ls *LocalStore) EnsureDir() error {
	return os.MkdirAll(filepath.Dir(ls.Path), 0700)
}

// load reads the whole file. A missing file is an empty store.
func (ls *LocalStore) load() (map[string]NodeSettings, error) {
	data, err := os.ReadFile(ls.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]NodeSettings), nil
		}
		return nil, fmt.Errorf("read settings file: %w: %w", kerrors.ErrStoreUnavailable, err)
	}

	records := make(map[string]NodeSettings)
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: settings file %s: %v", kerrors.ErrMalformedInput, ls.Path, err)
	}
	return records, nil
}

// save writes the file through a temp file and rename so readers never see a partial write.
func (ls *LocalStore) save(records map[string]NodeSettings) error {
	if err := ls.EnsureDir(); err != nil {
		return fmt.Errorf("create settings directory: %w: %w", kerrors.ErrStoreUnavailable, err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmp := ls.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write settings file: %w: %w", kerrors.ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmp, ls.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace settings file: %w: %w", kerrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (ls *LocalStore) Get(_ context.Context, folderID string) (NodeSettings, bool, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	records, err := ls.load()
	if err != nil {
		return NodeSettings{}, false, err
	}
	s, ok := records[StorageKey(folderID)]
	return s, ok, nil
}

func (ls *LocalStore) Set(_ context.Context, folderID string, s NodeSettings) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	records, err := ls.load()
	if err != nil {
		return err
	}
	key := StorageKey(folderID)
	stored, exists := records[key]
	if err := checkVersion(folderID, stored, exists, s); err != nil {
		return err
	}
	next, err := nextRecord(s)
	if err != nil {
		return err
	}
	records[key] = next
	return ls.save(records)
}

func (ls *LocalStore) Delete(_ context.Context, folderID string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	records, err := ls.load()
	if err != nil {
		return err
	}
	key := StorageKey(folderID)
	if _, ok := records[key]; !ok {
		return nil
	}
	delete(records, key)
	return ls.save(records)
}

func (ls *LocalStore) List(_ context.Context) ([]string, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	records, err := ls.load()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for key := range records {
		if id, ok := FolderIDFromKey(key); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
