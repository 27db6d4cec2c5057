package models

import "time"

// CachedHighlight is the local mirror of a remote highlight, captured as a
// side-effect of caching its owning item. A dangling highlight (owning item
// absent) is tolerated; it is simply unreachable via the item-keyed index.
type CachedHighlight struct {
	ID        UUID   `db:"id" json:"id"`
	ItemID    UUID   `db:"item_id" json:"item_id"`
	Text      string `db:"text" json:"text"`
	Color     string `db:"color" json:"color,omitempty"`
	Note      string `db:"note" json:"note,omitempty"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
	CachedAt  int64  `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for CachedHighlight.
func (CachedHighlight) TableName() string {
	return "cached_highlights"
}

// CachedAtTime returns the CachedAt as time.Time.
func (h *CachedHighlight) CachedAtTime() time.Time {
	return time.Unix(h.CachedAt, 0)
}
