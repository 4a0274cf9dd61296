// Package archive implements the archival job (C10): retention by age and
// item cap, with a KEEP set protecting snapshots a source's two most
// recent processed captures or a published DiffContent still reference.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/raysh454/moku-wst/internal/interfaces"
	"github.com/raysh454/moku-wst/internal/model"
)

const (
	defaultDurationMonths = 9
	defaultMaxItems       = 200
)

// Options configures a Run.
type Options struct {
	// DurationMonths is the retention window; DiffContent rows created
	// before now - DurationMonths become archivable.
	DurationMonths int
	MaxItems       int
	// DryRun computes and reports what would be archived without deleting
	// anything.
	DryRun bool
}

// Service runs the archival job against a Store and BlobStore.
type Service struct {
	Store  interfaces.Store
	Blobs  interfaces.BlobStore
	Logger interfaces.Logger
}

// Result summarizes one archival run.
type Result struct {
	Candidates       int
	Archived         int
	BlockedSnapshots int
	Errors           int
}

// Run selects archivable DiffContent rows and deletes each (and its
// unreferenced snapshots) inside a transaction, per row.
func (s *Service) Run(ctx context.Context, opts Options) (Result, error) {
	durationMonths := opts.DurationMonths
	if durationMonths <= 0 {
		durationMonths = defaultDurationMonths
	}
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	cutoff := time.Now().AddDate(0, -durationMonths, 0)

	var res Result
	keep, err := s.Store.KeepSnapshotIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("archive: keep snapshot ids: %w", err)
	}

	candidates, err := s.Store.ArchivableDiffContent(ctx, cutoff, maxItems)
	if err != nil {
		return res, fmt.Errorf("archive: archivable diff_content: %w", err)
	}
	res.Candidates = len(candidates)

	if opts.DryRun {
		if s.Logger != nil {
			s.Logger.Info("archive: dry run", interfaces.Field{Key: "candidates", Value: len(candidates)})
		}
		return res, nil
	}

	for _, dc := range candidates {
		if err := s.archiveOne(ctx, dc, keep); err != nil {
			res.Errors++
			if s.Logger != nil {
				s.Logger.Error("archive: failed", interfaces.Field{Key: "diff_content_id", Value: dc.ID}, interfaces.Field{Key: "error", Value: err.Error()})
			}
			continue
		}
		res.Archived++
	}
	return res, nil
}

// archiveOne deletes dc's diff images, then its row and its related
// DiffHtml and unreferenced snapshots, via the store's cascade. Blob
// deletion happens first, per §4.10's ordering, and its failure is
// logged but non-fatal (§4.1's contract).
func (s *Service) archiveOne(ctx context.Context, dc *model.DiffContent, keep map[int64]bool) error {
	for _, key := range []string{dc.OldDiffImageKey, dc.NewDiffImageKey} {
		if key == "" {
			continue
		}
		if err := s.Blobs.Delete(key); err != nil && s.Logger != nil {
			s.Logger.Warn("archive: blob delete failed", interfaces.Field{Key: "key", Value: key}, interfaces.Field{Key: "error", Value: err.Error()})
		}
	}

	blocked, err := s.Store.DeleteDiffContentCascade(ctx, dc, keep)
	if err != nil {
		return fmt.Errorf("archive: delete cascade for diff_content %d: %w", dc.ID, err)
	}
	if len(blocked) > 0 && s.Logger != nil {
		s.Logger.Info("archive: snapshots blocked by foreign-key conflict, retried next run",
			interfaces.Field{Key: "diff_content_id", Value: dc.ID},
			interfaces.Field{Key: "blocked_snapshot_ids", Value: blocked})
	}
	return nil
}
