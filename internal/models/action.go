package models

import "encoding/json"

// ActionKind identifies the remote mutation a pending action replays.
type ActionKind string

const (
	ActionCreateHighlight ActionKind = "create-highlight"
	ActionUpdateHighlight ActionKind = "update-highlight"
	ActionDeleteHighlight ActionKind = "delete-highlight"
	ActionMarkItemRead    ActionKind = "mark-item-read"
)

// Valid reports whether the kind is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionCreateHighlight, ActionUpdateHighlight, ActionDeleteHighlight, ActionMarkItemRead:
		return true
	}
	return false
}

// PendingAction is a deferred remote mutation waiting in the outbox.
// It is deleted on successful replay and left in place on failure, to be
// retried on the next drain pass.
type PendingAction struct {
	ID        UUID            `db:"id" json:"id"`
	Kind      ActionKind      `db:"kind" json:"kind"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	CreatedAt int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for PendingAction.
func (PendingAction) TableName() string {
	return "pending_actions"
}

// CreateHighlightPayload is the request body for a create-highlight replay.
// ClientRef is a client-generated idempotency key; the server may use it to
// deduplicate a highlight created twice by a retried drain.
type CreateHighlightPayload struct {
	ClientRef string `json:"client_ref"`
	ItemID    string `json:"item_id"`
	Text      string `json:"text"`
	Color     string `json:"color,omitempty"`
	Note      string `json:"note,omitempty"`
}

// UpdateHighlightPayload is the request body for an update-highlight replay.
// Nil fields are left unchanged by the server.
type UpdateHighlightPayload struct {
	HighlightID string  `json:"highlight_id"`
	Color       *string `json:"color,omitempty"`
	Note        *string `json:"note,omitempty"`
}

// DeleteHighlightPayload is the request body for a delete-highlight replay.
type DeleteHighlightPayload struct {
	HighlightID string `json:"highlight_id"`
}

// MarkItemReadPayload is the request body for a mark-item-read replay.
type MarkItemReadPayload struct {
	ItemID string `json:"item_id"`
	Status string `json:"status"`
}
