// Package settings persists the per-folder NodeSettings record.
//
// Every lock-state transition reads the record through a Store, acts, and writes
// it back. Nothing here caches records between calls.
//
// Writes use optimistic versioning: NodeSettings.Version must equal the stored
// version (0 when no record exists) or Set returns ErrVersionConflict. The stored
// record then carries Version+1.
package settings

import (
	"context"
	"fmt"
	"time"

	kerrors "github.com/bmlock/bmlock/internal/errors"
)

// Store is the settings collaborator.
type Store interface {
	// Get returns the record for folderID. ok is false for an unmanaged folder.
	Get(ctx context.Context, folderID string) (s NodeSettings, ok bool, err error)

	// Set writes the record after checking s.Version against the stored version.
	Set(ctx context.Context, folderID string, s NodeSettings) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, folderID string) error
}

// Lister is implemented by stores that can enumerate managed folders.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// ListingStore is a Store that can enumerate its records.
type ListingStore interface {
	Store
	Lister
}

// checkVersion compares the caller's version with the stored one.
func checkVersion(folderID string, stored NodeSettings, exists bool, s NodeSettings) error {
	var current int64
	if exists {
		current = stored.Version
	}
	if s.Version != current {
		return fmt.Errorf("folder %s: read version %d, stored version %d: %w", folderID, s.Version, current, kerrors.ErrVersionConflict)
	}
	return nil
}

// nextRecord validates s and stamps the version and time it is stored with.
func nextRecord(s NodeSettings) (NodeSettings, error) {
	if err := s.Validate(); err != nil {
		return NodeSettings{}, err
	}
	s.Version++
	s.SetModifiedAt(time.Now())
	return s, nil
}
