package models

import "time"

// Item status values mirrored from the remote API.
const (
	ItemStatusUnread   = "unread"
	ItemStatusReading  = "reading"
	ItemStatusArchived = "archived"
)

// CachedItem is the local mirror of a remote item, captured for offline
// reading. CachedAt marks when the record was written locally; an item with
// no cached record is not available offline.
type CachedItem struct {
	ID          UUID   `db:"id" json:"id"`
	Type        string `db:"type" json:"type"`
	URL         string `db:"url" json:"url"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description,omitempty"`
	Thumbnail   string `db:"thumbnail" json:"thumbnail,omitempty"`
	Content     string `db:"content" json:"content,omitempty"`
	ContentType string `db:"content_type" json:"content_type,omitempty"`
	FolderID    UUID   `db:"folder_id" json:"folder_id,omitempty"`
	Status      string `db:"status" json:"status"`
	WordCount   int    `db:"word_count" json:"word_count,omitempty"`
	ReadingTime int    `db:"reading_time" json:"reading_time,omitempty"`
	CreatedAt   int64  `db:"created_at" json:"created_at"`
	UpdatedAt   int64  `db:"updated_at" json:"updated_at"`
	CachedAt    int64  `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for CachedItem.
func (CachedItem) TableName() string {
	return "cached_items"
}

// CachedAtTime returns the CachedAt as time.Time.
func (c *CachedItem) CachedAtTime() time.Time {
	return time.Unix(c.CachedAt, 0)
}
