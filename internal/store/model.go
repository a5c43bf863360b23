// Package store provides local persistence for links and collections
package store

import (
	"time"

	"github.com/tildaslashalef/linkmark/internal/ulid"
)

// Visibility values for collections
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// Link represents a locally stored bookmark.
//
// RemoteID is empty until the link has been pushed to the server at least
// once. IsDirty marks local changes that are not reflected remotely; a link
// with IsDirty=false and a non-nil LastSyncedAt is assumed to exactly mirror
// remote state.
type Link struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Tags         []string   `json:"tags,omitempty"`
	Collection   string     `json:"collection,omitempty"`
	RemoteID     string     `json:"remote_id,omitempty"`
	IsDirty      bool       `json:"is_dirty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewLink creates a new dirty link with a fresh local ID
func NewLink(url, title string, tags []string, collection string) *Link {
	now := time.Now()
	return &Link{
		ID:         ulid.LinkID(),
		URL:        url,
		Title:      title,
		Tags:       tags,
		Collection: collection,
		IsDirty:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkUpdated records a local mutation: the link becomes dirty and its
// last-synced timestamp is cleared in the same write.
func (l *Link) MarkUpdated() {
	l.IsDirty = true
	l.LastSyncedAt = nil
	l.UpdatedAt = time.Now()
}

// Synced reports whether the link has ever been pushed to the server
func (l *Link) Synced() bool {
	return l.RemoteID != ""
}

// Collection represents a locally stored bookmark collection
type Collection struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Visibility   string     `json:"visibility"`
	RemoteID     string     `json:"remote_id,omitempty"`
	LinkCount    int        `json:"link_count"`
	IsDirty      bool       `json:"is_dirty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewCollection creates a new dirty collection with a fresh local ID
func NewCollection(name, description, visibility string) *Collection {
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	now := time.Now()
	return &Collection{
		ID:          ulid.CollectionID(),
		Name:        name,
		Description: description,
		Visibility:  visibility,
		IsDirty:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkUpdated records a local mutation on the collection
func (c *Collection) MarkUpdated() {
	c.IsDirty = true
	c.LastSyncedAt = nil
	c.UpdatedAt = time.Now()
}

// Synced reports whether the collection has ever been pushed to the server
func (c *Collection) Synced() bool {
	return c.RemoteID != ""
}
