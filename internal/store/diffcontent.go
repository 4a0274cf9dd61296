package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/moku-wst/internal/model"
)

// CreateDiffContent inserts a new DiffContent row, idempotent on
// new_snapshot_id exactly like CreateDiffHtml.
func (s *Store) CreateDiffContent(ctx context.Context, d *model.DiffContent) (row *model.DiffContent, inserted bool, err error) {
	addedT, err := marshalSummary(d.Added)
	if err != nil {
		return nil, false, err
	}
	removedT, err := marshalSummary(d.Removed)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO diff_content (old_snapshot_id, old_diff_html, old_diff_image_key,
		                           new_snapshot_id, new_diff_html, new_diff_image_key,
		                           status, added_t, added_i, added_l, removed_t, removed_i, removed_l,
		                           created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (new_snapshot_id) DO NOTHING`,
		d.OldSnapshotID, d.OldDiffHTML, d.OldDiffImageKey,
		d.NewSnapshotID, d.NewDiffHTML, d.NewDiffImageKey,
		model.DiffContentPending, addedT[0], addedT[1], addedT[2], removedT[0], removedT[1], removedT[2],
		now, now)
	if err != nil {
		return nil, false, fmt.Errorf("store: create diff_content: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("store: create diff_content rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.GetDiffContentByNewSnapshot(ctx, d.NewSnapshotID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("store: create diff_content last insert id: %w", err)
	}
	got, err := s.diffContentByID(ctx, id)
	return got, true, err
}

func (s *Store) GetDiffContentByNewSnapshot(ctx context.Context, newSnapshotID int64) (*model.DiffContent, error) {
	row := s.db.QueryRowContext(ctx, diffContentSelect+` WHERE new_snapshot_id = ?`, newSnapshotID)
	return scanDiffContent(row)
}

func (s *Store) diffContentByID(ctx context.Context, id int64) (*model.DiffContent, error) {
	row := s.db.QueryRowContext(ctx, diffContentSelect+` WHERE id = ?`, id)
	return scanDiffContent(row)
}

// PendingDiffContent returns pending DiffContent rows for curation, oldest
// first.
func (s *Store) PendingDiffContent(ctx context.Context, limit int) ([]*model.DiffContent, error) {
	rows, err := s.db.QueryContext(ctx, diffContentSelect+`
		WHERE status = ? ORDER BY created_on ASC LIMIT ?`, model.DiffContentPending, limit)
	if err != nil {
		return nil, fmt.Errorf("store: pending diff_content: %w", err)
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

// PendingDiffContentCreatedBetween returns pending DiffContent rows created
// in [start, end), oldest first — the feed-builder's windowed selection for
// the index-web-updates job.
func (s *Store) PendingDiffContentCreatedBetween(ctx context.Context, start, end time.Time, limit int) ([]*model.DiffContent, error) {
	rows, err := s.db.QueryContext(ctx, diffContentSelect+`
		WHERE status = ? AND created_on >= ? AND created_on < ?
		ORDER BY created_on ASC LIMIT ?`, model.DiffContentPending, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("store: pending diff_content created between: %w", err)
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

const diffContentCols = `id, old_snapshot_id, old_diff_html, old_diff_image_key,
	new_snapshot_id, new_diff_html, new_diff_image_key,
	status, added_t, added_i, added_l, removed_t, removed_i, removed_l,
	created_on, updated_on`
const diffContentSelect = `SELECT ` + diffContentCols + ` FROM diff_content`

func scanDiffContent(row scannable) (*model.DiffContent, error) {
	var d model.DiffContent
	var oldSnapshotID sql.NullInt64
	var addedT, addedI, addedL, removedT, removedI, removedL string

	if err := row.Scan(
		&d.ID, &oldSnapshotID, &d.OldDiffHTML, &d.OldDiffImageKey,
		&d.NewSnapshotID, &d.NewDiffHTML, &d.NewDiffImageKey,
		&d.Status, &addedT, &addedI, &addedL, &removedT, &removedI, &removedL,
		&d.CreatedOn, &d.UpdatedOn,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan diff_content: %w", err)
	}
	if oldSnapshotID.Valid {
		d.OldSnapshotID = &oldSnapshotID.Int64
	}

	var err error
	if d.Added, err = unmarshalSummary(addedT, addedI, addedL); err != nil {
		return nil, err
	}
	if d.Removed, err = unmarshalSummary(removedT, removedI, removedL); err != nil {
		return nil, err
	}
	return &d, nil
}
