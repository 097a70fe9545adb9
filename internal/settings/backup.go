package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	kerrors "github.com/bmlock/bmlock/internal/errors"
)

// Export writes every record as one JSON object keyed "node_settings/<id>".
func Export(ctx context.Context, store ListingStore, w io.Writer) (int, error) {
	ids, err := store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list settings: %w", err)
	}

	doc := make(map[string]NodeSettings, len(ids))
	for _, id := range ids {
		s, ok, err := store.Get(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("get settings for %s: %w", id, err)
		}
		if !ok {
			continue
		}
		s.Version = 0
		s.ModifiedAt = ""
		doc[StorageKey(id)] = s
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return 0, fmt.Errorf("failed to write backup: %w", err)
	}
	return len(doc), nil
}

// Import reads a backup written by Export and stores every record, replacing
// existing ones. The whole document is validated before anything is written.
func Import(ctx context.Context, store Store, r io.Reader) (int, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("%w: backup: %v", kerrors.ErrMalformedInput, err)
	}

	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	records := make(map[string]NodeSettings, len(doc))
	for _, key := range keys {
		id, ok := FolderIDFromKey(key)
		if !ok {
			// Unrelated keys in the extension's storage area.
			continue
		}
		s, err := NodeSettingsFromJSON(doc[key])
		if err != nil {
			return 0, fmt.Errorf("record %s: %w", key, err)
		}
		if err := s.Validate(); err != nil {
			return 0, fmt.Errorf("record %s: %w", key, err)
		}
		records[id] = s
	}

	imported := 0
	for _, key := range keys {
		id, ok := FolderIDFromKey(key)
		if !ok {
			continue
		}
		s := records[id]
		current, exists, err := store.Get(ctx, id)
		if err != nil {
			return imported, fmt.Errorf("get settings for %s: %w", id, err)
		}
		s.Version = 0
		if exists {
			s.Version = current.Version
		}
		if err := store.Set(ctx, id, s); err != nil {
			return imported, fmt.Errorf("restore settings for %s: %w", id, err)
		}
		imported++
	}
	return imported, nil
}
