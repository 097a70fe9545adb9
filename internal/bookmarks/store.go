// Package bookmarks models the bookmark tree the encryption engine operates on.
//
// The engine depends only on Store: it lists a folder's direct children and
// rewrites title/url pairs. It never creates, deletes or moves items.
package bookmarks

import "context"

// Store is the bookmark collaborator used by the engine.
type Store interface {
	// ListChildren returns the direct children of folderID in display order.
	ListChildren(ctx context.Context, folderID string) ([]Item, error)

	// UpdateItem rewrites title and/or url of one item in a single write.
	UpdateItem(ctx context.Context, id string, u Update) error
}

// Tree is a Store that can also create and fetch items. The CLI uses it.
type Tree interface {
	Store
	Get(ctx context.Context, id string) (Item, error)
	Create(ctx context.Context, item Item) error
}
