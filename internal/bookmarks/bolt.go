package bookmarks

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	kerrors "github.com/bmlock/bmlock/internal/errors"
	"go.etcd.io/bbolt"
)

// Bucket names
var (
	itemsBucket    = []byte("items")
	childrenBucket = []byte("children")
)

// BoltStore is a Tree persisted in a bbolt database file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the bookmark database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create bookmarks directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bookmarks database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(itemsBucket); err != nil {
			return fmt.Errorf("failed to create items bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(childrenBucket); err != nil {
			return fmt.Errorf("failed to create children bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (bs *BoltStore) Close() error {
	return bs.db.Close()
}

func (bs *BoltStore) Create(_ context.Context, item Item) error {
	data, err := item.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	return bs.db.Update(func(tx *bbolt.Tx) error {
		items := tx.Bucket(itemsBucket)
		if items.Get([]byte(item.ID)) != nil {
			return fmt.Errorf("item %s already exists", item.ID)
		}
		if item.ParentID != RootID {
			raw := items.Get([]byte(item.ParentID))
			if raw == nil {
				return fmt.Errorf("parent %s: %w", item.ParentID, kerrors.ErrNotFound)
			}
			parent, err := ItemFromJSON(raw)
			if err != nil {
				return fmt.Errorf("failed to parse parent %s: %w", item.ParentID, err)
			}
			if !parent.IsFolder() {
				return fmt.Errorf("parent %s: %w", item.ParentID, kerrors.ErrNotFolder)
			}
		}

		if err := items.Put([]byte(item.ID), data); err != nil {
			return fmt.Errorf("failed to store item: %w", err)
		}

		siblings, err := tx.Bucket(childrenBucket).CreateBucketIfNotExists([]byte(item.ParentID))
		if err != nil {
			return fmt.Errorf("failed to create child index: %w", err)
		}
		seq, err := siblings.NextSequence()
		if err != nil {
			return err
		}
		return siblings.Put(itob(seq), []byte(item.ID))
	})
}

func (bs *BoltStore) Get(_ context.Context, id string) (Item, error) {
	var item Item
	err := bs.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(itemsBucket).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("item %s: %w", id, kerrors.ErrNotFound)
		}
		var err error
		item, err = ItemFromJSON(raw)
		return err
	})
	return item, err
}

func (bs *BoltStore) ListChildren(_ context.Context, folderID string) ([]Item, error) {
	var out []Item
	err := bs.db.View(func(tx *bbolt.Tx) error {
		siblings := tx.Bucket(childrenBucket).Bucket([]byte(folderID))
		if siblings == nil {
			return nil
		}
		items := tx.Bucket(itemsBucket)
		return siblings.ForEach(func(_, id []byte) error {
			raw := items.Get(id)
			if raw == nil {
				return nil
			}
			item, err := ItemFromJSON(raw)
			if err != nil {
				return fmt.Errorf("failed to parse item %s: %w", id, err)
			}
			out = append(out, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateItem rewrites title and url inside one transaction.
func (bs *BoltStore) UpdateItem(_ context.Context, id string, u Update) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		items := tx.Bucket(itemsBucket)
		raw := items.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("item %s: %w", id, kerrors.ErrNotFound)
		}
		item, err := ItemFromJSON(raw)
		if err != nil {
			return fmt.Errorf("failed to parse item %s: %w", id, err)
		}
		item.apply(u)
		data, err := item.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		return items.Put([]byte(id), data)
	})
}

// itob returns an 8-byte big endian representation of v, so keys sort by insertion.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
