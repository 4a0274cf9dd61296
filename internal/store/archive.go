package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/raysh454/moku-wst/internal/model"
)

// KeepSnapshotIDs returns the KEEP set: the two most recent processed
// snapshots per source, union any snapshot referenced by a published
// DiffContent. Archival never deletes a snapshot in this set.
func (s *Store) KeepSnapshotIDs(ctx context.Context) (map[int64]bool, error) {
	keep := map[int64]bool{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s1.id FROM snapshots s1
		WHERE s1.status = ?
		  AND s1.id IN (
		      SELECT s2.id FROM snapshots s2
		      WHERE s2.source_id = s1.source_id AND s2.status = ?
		      ORDER BY s2.created_on DESC, s2.id DESC LIMIT 2
		  )`, model.SnapshotProcessed, model.SnapshotProcessed)
	if err != nil {
		return nil, fmt.Errorf("store: keep recent snapshots: %w", err)
	}
	if err := collectIDs(rows, keep); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT new_snapshot_id FROM diff_content WHERE status = ?
		UNION
		SELECT old_snapshot_id FROM diff_content WHERE status = ? AND old_snapshot_id IS NOT NULL`,
		model.DiffContentPublished, model.DiffContentPublished)
	if err != nil {
		return nil, fmt.Errorf("store: keep published diff_content snapshots: %w", err)
	}
	if err := collectIDs(rows, keep); err != nil {
		return nil, err
	}

	return keep, nil
}

func collectIDs(rows *sql.Rows, into map[int64]bool) error {
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("store: scan id: %w", err)
		}
		into[id] = true
	}
	return rows.Err()
}

// ArchivableDiffContent returns pending/rejected DiffContent rows older than
// cutoff, oldest first, limited to maxItems — the archival worker's
// candidate set for a single run.
func (s *Store) ArchivableDiffContent(ctx context.Context, cutoff time.Time, maxItems int) ([]*model.DiffContent, error) {
	rows, err := s.db.QueryContext(ctx, diffContentSelect+`
		WHERE status IN (?, ?) AND created_on < ?
		ORDER BY created_on ASC
		LIMIT ?`, model.DiffContentPending, model.DiffContentRejected, cutoff, maxItems)
	if err != nil {
		return nil, fmt.Errorf("store: archivable diff_content: %w", err)
	}
	defer rows.Close()

	var out []*model.DiffContent
	for rows.Next() {
		d, err := scanDiffContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDiffContentCascade deletes d's DiffContent row, its related
// DiffHtml row (matched on new_snapshot_id), and any of its referenced
// snapshots not present in keep — all inside one transaction. Object-store
// blob deletion (diff images, raw screenshots) is the caller's
// responsibility before calling this, per §4.10's ordering ("delete its
// diff images" precedes the row deletes).
//
// A snapshot still referenced by another DiffContent row fails its row
// delete with a foreign-key-constraint error; that snapshot's id is
// returned in blocked so the caller can requeue it for a later pass instead
// of treating the whole cascade as failed.
func (s *Store) DeleteDiffContentCascade(ctx context.Context, d *model.DiffContent, keep map[int64]bool) (blocked []int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: archive begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM diff_content WHERE id = ?`, d.ID); err != nil {
		return nil, fmt.Errorf("store: archive delete diff_content %d: %w", d.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM diff_html WHERE new_snapshot_id = ?`, d.NewSnapshotID); err != nil {
		return nil, fmt.Errorf("store: archive delete diff_html for snapshot %d: %w", d.NewSnapshotID, err)
	}

	candidates := []int64{d.NewSnapshotID}
	if d.OldSnapshotID != nil {
		candidates = append(candidates, *d.OldSnapshotID)
	}
	for _, id := range candidates {
		if keep[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id); err != nil {
			blocked = append(blocked, id)
			continue
		}
	}

	if len(blocked) > 0 {
		// Still referenced by another DiffContent: commit the diff_content/
		// diff_html deletion, leave the snapshot for a later run.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("store: archive commit with blocked snapshots: %w", err)
		}
		return blocked, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: archive commit: %w", err)
	}
	return nil, nil
}
