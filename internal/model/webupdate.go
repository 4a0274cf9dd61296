package model

import (
	"encoding/json"
	"time"
)

// WebUpdateStatus mirrors the curator-facing status of a WebUpdate.
type WebUpdateStatus string

const (
	WebUpdatePending  WebUpdateStatus = "pending"
	WebUpdatePublished WebUpdateStatus = "published"
	WebUpdateRejected WebUpdateStatus = "rejected"
)

// WebUpdate is a content record referencing a DiffContent, carrying
// client-scoped tags. Everything beyond the fields named in spec is opaque
// to the core: it is persisted and returned verbatim, never interpreted.
type WebUpdate struct {
	ID            int64           `json:"id"`
	ClientID      int             `json:"client_id"`
	WebSourceID   int64           `json:"web_source_id"`
	DiffContentID int64           `json:"diff_content_id"`
	Hash          string          `json:"hash"`
	Status        WebUpdateStatus `json:"status"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	PubDate       string          `json:"pub_date"`
	Tags          map[string][]int `json:"tags,omitempty"`

	// ManualCopyOf optionally marks this WebUpdate as a curator-initiated
	// duplicate of another WebUpdate.
	ManualCopyOf *int64 `json:"manual_copy_of,omitempty"`

	// SnippetInfo is opaque list-view screenshot-snippet metadata.
	SnippetInfo json.RawMessage `json:"snippet_info,omitempty"`

	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}
