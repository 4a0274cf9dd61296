package model

import "time"

// DiffHtmlStatus is the lifecycle status of a DiffHtml row.
type DiffHtmlStatus string

const (
	DiffHtmlDraft     DiffHtmlStatus = "draft"
	DiffHtmlProcessed DiffHtmlStatus = "processed"
	DiffHtmlFailed    DiffHtmlStatus = "failed"
)

// DiffSummary is the structured added/removed record the diff summarizer
// (C7) produces: text lines, image src URLs, and anchor hrefs.
type DiffSummary struct {
	T []string `json:"T"`
	I []string `json:"I"`
	L []string `json:"L"`
}

// Empty reports whether the summary carries no content in any bucket.
func (s DiffSummary) Empty() bool {
	return len(s.T) == 0 && len(s.I) == 0 && len(s.L) == 0
}

// DiffHtml holds annotated left/right HTML computed from an old and a new
// Snapshot, plus the structured added/removed summary. Exactly one DiffHtml
// exists per new_snapshot_id.
type DiffHtml struct {
	ID int64 `json:"id"`

	OldSnapshotID *int64 `json:"old_snapshot_id,omitempty"`
	OldDiffHTML   string `json:"old_diff_html,omitempty"`
	Removed       DiffSummary `json:"removed"`

	NewSnapshotID int64  `json:"new_snapshot_id"`
	NewDiffHTML   string `json:"new_diff_html,omitempty"`
	Added         DiffSummary `json:"added"`

	Status    DiffHtmlStatus `json:"status"`
	LastError string         `json:"last_error,omitempty"`

	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

// IsFirstFetch reports whether this DiffHtml represents a first-fetch
// (no prior snapshot to compare against).
func (d *DiffHtml) IsFirstFetch() bool {
	return d.OldSnapshotID == nil
}
