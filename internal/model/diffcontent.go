package model

import "time"

// DiffContentStatus is the lifecycle status of a DiffContent row.
type DiffContentStatus string

const (
	DiffContentPending   DiffContentStatus = "pending"
	DiffContentPublished DiffContentStatus = "published"
	DiffContentRejected  DiffContentStatus = "rejected"
)

// DiffContent is a DiffHtml augmented with rendered side-by-side
// screenshots; it is the unit curation acts on. Created only once its
// DiffHtml reaches processed, or as a degraded record (no images) when the
// renderer exhausts retries but a non-empty summary exists.
type DiffContent struct {
	ID int64 `json:"id"`

	OldSnapshotID *int64 `json:"old_snapshot_id,omitempty"`
	OldDiffHTML   string `json:"old_diff_html,omitempty"`
	OldDiffImageKey string `json:"old_diff_image_key,omitempty"`

	NewSnapshotID int64  `json:"new_snapshot_id"`
	NewDiffHTML   string `json:"new_diff_html,omitempty"`
	NewDiffImageKey string `json:"new_diff_image_key,omitempty"`

	Status  DiffContentStatus `json:"status"`
	Added   DiffSummary       `json:"added"`
	Removed DiffSummary       `json:"removed"`

	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

// Degraded reports whether this DiffContent was created without rendered
// screenshots (renderer failure path, §4.8).
func (d *DiffContent) Degraded() bool {
	return d.OldDiffImageKey == "" && d.NewDiffImageKey == ""
}
