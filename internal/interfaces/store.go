package interfaces

import (
	"context"
	"time"

	"github.com/raysh454/moku-wst/internal/model"
)

// Store is the persistence contract for the pipeline's five entities. A
// single SQLite-backed implementation (internal/store) is provided; tests
// may substitute an in-memory fake.
type Store interface {
	// Sources

	// CreateSource inserts a new Source in the active state.
	CreateSource(ctx context.Context, src *model.Source) (*model.Source, error)
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	DueSources(ctx context.Context, f model.Frequency, shard, maxShards int, batchSize int) ([]*model.Source, error)
	MarkSourceRun(ctx context.Context, id int64, lastErr string) error
	MarkSourceBroken(ctx context.Context, id int64, reason string) error

	// Snapshots

	// PutSnapshot inserts a draft snapshot unless a snapshot with the same
	// content_hash already exists (the hash is unique across all sources), in
	// which case it returns the existing row and inserted=false.
	PutSnapshot(ctx context.Context, s *model.Snapshot) (row *model.Snapshot, inserted bool, err error)
	// SnapshotExistsByHash reports whether a snapshot with this content
	// hash already exists, so a caller can skip an expensive capture step
	// (a screenshot) before learning a PutSnapshot would be a no-op.
	SnapshotExistsByHash(ctx context.Context, hash string) (bool, error)
	GetSnapshot(ctx context.Context, id int64) (*model.Snapshot, error)
	LatestProcessedSnapshot(ctx context.Context, sourceID int64) (*model.Snapshot, error)
	OldestDraftSnapshotPerSource(ctx context.Context, limit int) ([]*model.Snapshot, error)
	UpdateSnapshotStatus(ctx context.Context, id int64, status model.SnapshotStatus, lastErr string) error

	// DiffHtml

	// CreateDiffHtml inserts a DiffHtml unless new_snapshot_id already has
	// one, in which case it returns the existing row and inserted=false.
	CreateDiffHtml(ctx context.Context, d *model.DiffHtml) (row *model.DiffHtml, inserted bool, err error)
	GetDiffHtml(ctx context.Context, id int64) (*model.DiffHtml, error)
	UpdateDiffHtmlStatus(ctx context.Context, id int64, status model.DiffHtmlStatus, lastErr string) error
	ProcessedDiffHtmlWithoutContent(ctx context.Context, limit int) ([]*model.DiffHtml, error)

	// DiffContent

	// CreateDiffContent inserts a DiffContent unless new_snapshot_id already
	// has one, in which case it returns the existing row and inserted=false.
	CreateDiffContent(ctx context.Context, c *model.DiffContent) (row *model.DiffContent, inserted bool, err error)
	GetDiffContentByNewSnapshot(ctx context.Context, newSnapshotID int64) (*model.DiffContent, error)
	PendingDiffContent(ctx context.Context, limit int) ([]*model.DiffContent, error)
	PendingDiffContentCreatedBetween(ctx context.Context, start, end time.Time, limit int) ([]*model.DiffContent, error)

	// WebUpdate

	// CreateWebUpdate inserts a WebUpdate unless one with the same Hash
	// already exists for ClientID, in which case it returns the existing
	// row and inserted=false (the index job is idempotent on re-run).
	CreateWebUpdate(ctx context.Context, w *model.WebUpdate) (row *model.WebUpdate, inserted bool, err error)
	GetWebUpdate(ctx context.Context, id int64) (*model.WebUpdate, error)
	ListWebUpdatesForClient(ctx context.Context, clientID int, since time.Time, limit int) ([]*model.WebUpdate, error)
	UpdateWebUpdateStatus(ctx context.Context, id int64, status model.WebUpdateStatus) error

	// ChangeLogForWebUpdate returns prior WebUpdates for target's source
	// with pub_date <= target's, excluding target, newest first.
	ChangeLogForWebUpdate(ctx context.Context, target *model.WebUpdate, limit int) ([]*model.WebUpdate, error)

	// Archival

	KeepSnapshotIDs(ctx context.Context) (map[int64]bool, error)
	ArchivableDiffContent(ctx context.Context, cutoff time.Time, maxItems int) ([]*model.DiffContent, error)

	// DeleteDiffContentCascade deletes d's DiffContent and related DiffHtml
	// row, plus any of its referenced snapshots not in keep. Snapshots still
	// referenced elsewhere are returned in blocked rather than failing the
	// whole cascade, so the caller can requeue them for a later pass.
	DeleteDiffContentCascade(ctx context.Context, d *model.DiffContent, keep map[int64]bool) (blocked []int64, err error)

	Close() error
}
