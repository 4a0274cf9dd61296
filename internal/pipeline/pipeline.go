// Package pipeline orchestrates the state machines between Snapshot,
// DiffHtml, and DiffContent (C9): process-snapshots turns draft Snapshots
// into processed DiffHtml rows via the tree-diff matcher, and render-diffs
// turns processed DiffHtml rows into DiffContent rows.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/raysh454/moku-wst/internal/diffhtml/summary"
	"github.com/raysh454/moku-wst/internal/diffhtml/treediff"
	"github.com/raysh454/moku-wst/internal/interfaces"
	"github.com/raysh454/moku-wst/internal/model"
)

const (
	defaultMatchTimeout = 300 * time.Second
	defaultRunBudget    = 5 * time.Minute
)

// Matcher runs process-snapshots: it turns the single oldest draft
// Snapshot per source into a processed (or failed/diff_timeout) DiffHtml
// row.
type Matcher struct {
	Store        interfaces.Store
	Blobs        interfaces.BlobStore
	Logger       interfaces.Logger
	MatchTimeout time.Duration
	RunBudget    time.Duration
	MatchOpts    treediff.Options
}

// Result summarizes one process-snapshots run.
type Result struct {
	Selected int
	Matched  int
	Timeouts int
	Failed   int
}

// MatchOptions configures one process-snapshots run.
type MatchOptions struct {
	BatchSize int
	// SourceIDs, if non-empty, restricts the run to drafts belonging to
	// one of these sources; an empty set means every due source.
	SourceIDs []int64
}

// Run selects up to opts.BatchSize oldest-draft-per-source Snapshots,
// optionally restricted to opts.SourceIDs, and turns each into a DiffHtml
// row.
func (m *Matcher) Run(ctx context.Context, opts MatchOptions) (Result, error) {
	budget := m.RunBudget
	if budget <= 0 {
		budget = defaultRunBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var res Result
	drafts, err := m.Store.OldestDraftSnapshotPerSource(ctx, opts.BatchSize)
	if err != nil {
		return res, fmt.Errorf("pipeline: select drafts: %w", err)
	}
	drafts = filterBySource(drafts, opts.SourceIDs)
	res.Selected = len(drafts)

	for _, snap := range drafts {
		switch err := m.processOne(ctx, snap); {
		case err == nil:
			res.Matched++
		case err == treediff.ErrTimeout:
			res.Timeouts++
		default:
			res.Failed++
			if m.Logger != nil {
				m.Logger.Error("process-snapshots: source failed",
					interfaces.Field{Key: "source_id", Value: snap.SourceID},
					interfaces.Field{Key: "snapshot_id", Value: snap.ID},
					interfaces.Field{Key: "error", Value: err.Error()})
			}
		}
	}
	return res, nil
}

func (m *Matcher) processOne(ctx context.Context, snap *model.Snapshot) error {
	newHTML, err := m.Blobs.Get(snap.RawHTML)
	if err != nil {
		_ = m.Store.UpdateSnapshotStatus(ctx, snap.ID, model.SnapshotFailed, err.Error())
		return err
	}

	prev, err := m.Store.LatestProcessedSnapshot(ctx, snap.SourceID)
	if err != nil {
		_ = m.Store.UpdateSnapshotStatus(ctx, snap.ID, model.SnapshotFailed, err.Error())
		return err
	}

	var d *model.DiffHtml
	if prev == nil {
		d, err = m.firstFetch(snap, string(newHTML))
	} else {
		var oldHTML []byte
		oldHTML, err = m.Blobs.Get(prev.RawHTML)
		if err == nil {
			d, err = m.diffAgainst(ctx, snap, prev.ID, string(oldHTML), string(newHTML))
		}
	}
	if err != nil {
		status := model.SnapshotFailed
		if err == treediff.ErrTimeout {
			status = model.SnapshotDiffTimeout
		}
		_ = m.Store.UpdateSnapshotStatus(ctx, snap.ID, status, err.Error())
		return err
	}

	if d.Added.Empty() && d.Removed.Empty() {
		// A first fetch, or a pure move (§4.7's last rule stripped every
		// entry common to both sides): no DiffHtml is created at all.
		return m.Store.UpdateSnapshotStatus(ctx, snap.ID, model.SnapshotProcessed, "")
	}

	if _, _, err := m.Store.CreateDiffHtml(ctx, d); err != nil {
		_ = m.Store.UpdateSnapshotStatus(ctx, snap.ID, model.SnapshotFailed, err.Error())
		return fmt.Errorf("pipeline: create diff_html: %w", err)
	}
	return m.Store.UpdateSnapshotStatus(ctx, snap.ID, model.SnapshotProcessed, "")
}

// firstFetch builds a DiffHtml for a source's very first snapshot: there is
// nothing to compare against and there is no old side. The page is parsed
// but not annotated, so summary.Added finds no inserted nodes and the
// summary is empty; processOne therefore marks the snapshot processed
// without creating a DiffHtml.
func (m *Matcher) firstFetch(snap *model.Snapshot, newHTML string) (*model.DiffHtml, error) {
	root, err := treediff.Parse(newHTML)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse first-fetch html: %w", err)
	}
	return &model.DiffHtml{
		NewSnapshotID: snap.ID,
		NewDiffHTML:   newHTML,
		Added:         summary.Added(root),
		Status:        model.DiffHtmlProcessed,
	}, nil
}

func (m *Matcher) diffAgainst(ctx context.Context, snap *model.Snapshot, oldSnapshotID int64, oldHTML, newHTML string) (*model.DiffHtml, error) {
	timeout := m.MatchTimeout
	if timeout <= 0 {
		timeout = defaultMatchTimeout
	}
	matchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	left, err := treediff.Parse(oldHTML)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse old html: %w", err)
	}
	right, err := treediff.Parse(newHTML)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse new html: %w", err)
	}

	opts := m.MatchOpts
	if opts.F == 0 {
		opts = treediff.DefaultOptions()
	}
	match, err := treediff.MatchTrees(matchCtx, left, right, opts)
	if err != nil {
		if err == treediff.ErrTimeout {
			return nil, treediff.ErrTimeout
		}
		return nil, fmt.Errorf("pipeline: match trees: %w", err)
	}

	oldRendered, newRendered, err := treediff.RenderViews(matchCtx, match)
	if err != nil {
		if err == treediff.ErrTimeout {
			return nil, treediff.ErrTimeout
		}
		return nil, fmt.Errorf("pipeline: render views: %w", err)
	}
	oldView, newView, err := treediff.BuildViews(matchCtx, match)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build views for summary: %w", err)
	}

	added, removed := summary.Added(newView), summary.Removed(oldView)
	summary.StripCommon(&added, &removed)

	return &model.DiffHtml{
		OldSnapshotID: &oldSnapshotID,
		OldDiffHTML:   oldRendered,
		Removed:       removed,
		NewSnapshotID: snap.ID,
		NewDiffHTML:   newRendered,
		Added:         added,
		Status:        model.DiffHtmlProcessed,
	}, nil
}

// filterBySource keeps only the snapshots whose SourceID appears in ids;
// an empty ids leaves drafts untouched.
func filterBySource(drafts []*model.Snapshot, ids []int64) []*model.Snapshot {
	if len(ids) == 0 {
		return drafts
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	kept := drafts[:0]
	for _, snap := range drafts {
		if _, ok := want[snap.SourceID]; ok {
			kept = append(kept, snap)
		}
	}
	return kept
}
