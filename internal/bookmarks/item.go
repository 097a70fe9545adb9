package bookmarks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type distinguishes folders from bookmarks.
type Type string

const (
	TypeFolder   Type = "folder"
	TypeBookmark Type = "bookmark"
)

// RootID is the parent of top-level folders.
const RootID = "root"

// Item is a folder or bookmark node. The encryption engine only reads and
// writes Title and URL.
type Item struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFolder reports whether the item is a folder node.
func (i Item) IsFolder() bool {
	return i.Type == TypeFolder
}

// Update carries the fields to rewrite on an item. Nil fields are left unchanged.
type Update struct {
	Title *string
	URL   *string
}

// NewFolder creates a folder item with a fresh id.
func NewFolder(parentID, title string) Item {
	now := time.Now().UTC()
	return Item{
		ID:        uuid.New().String(),
		ParentID:  parentID,
		Type:      TypeFolder,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewBookmark creates a bookmark item with a fresh id.
func NewBookmark(parentID, title, url string) Item {
	now := time.Now().UTC()
	return Item{
		ID:        uuid.New().String(),
		ParentID:  parentID,
		Type:      TypeBookmark,
		Title:     title,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// apply rewrites the fields set in u and bumps UpdatedAt.
func (i *Item) apply(u Update) {
	if u.Title != nil {
		i.Title = *u.Title
	}
	if u.URL != nil {
		i.URL = *u.URL
	}
	i.UpdatedAt = time.Now().UTC()
}

// ToJSON serializes the item to JSON
func (i Item) ToJSON() ([]byte, error) {
	return json.Marshal(i)
}

// ItemFromJSON deserializes an item from JSON
func ItemFromJSON(data []byte) (Item, error) {
	var i Item
	if err := json.Unmarshal(data, &i); err != nil {
		return Item{}, err
	}
	return i, nil
}
