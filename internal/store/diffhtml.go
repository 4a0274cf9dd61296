package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/moku-wst/internal/model"
)

// CreateDiffHtml inserts a new DiffHtml row. new_snapshot_id is unique, and
// old_snapshot_id is unique among non-null values (a partial index enforces
// the latter, since a first-fetch DiffHtml has no old snapshot). A conflict
// on new_snapshot_id is treated as idempotent success: the existing row is
// returned. A conflict on old_snapshot_id is not covered by the upsert and
// is returned as an error.
func (s *Store) CreateDiffHtml(ctx context.Context, d *model.DiffHtml) (row *model.DiffHtml, inserted bool, err error) {
	removedT, err := marshalSummary(d.Removed)
	if err != nil {
		return nil, false, err
	}
	addedT, err := marshalSummary(d.Added)
	if err != nil {
		return nil, false, err
	}

	status := d.Status
	if status == "" {
		status = model.DiffHtmlDraft
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO diff_html (old_snapshot_id, old_diff_html, removed_t, removed_i, removed_l,
		                        new_snapshot_id, new_diff_html, added_t, added_i, added_l,
		                        status, last_error, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (new_snapshot_id) DO NOTHING`,
		d.OldSnapshotID, d.OldDiffHTML, removedT[0], removedT[1], removedT[2],
		d.NewSnapshotID, d.NewDiffHTML, addedT[0], addedT[1], addedT[2],
		status, d.LastError, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("store: create diff_html: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("store: create diff_html rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.diffHtmlByNewSnapshot(ctx, d.NewSnapshotID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("store: create diff_html last insert id: %w", err)
	}
	got, err := s.diffHtmlByID(ctx, id)
	return got, true, err
}

func (s *Store) UpdateDiffHtmlStatus(ctx context.Context, id int64, status model.DiffHtmlStatus, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE diff_html SET status = ?, last_error = ?, updated_on = ? WHERE id = ?`,
		status, lastErr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update diff_html status %d: %w", id, err)
	}
	return nil
}

// ProcessedDiffHtmlWithoutContent returns processed DiffHtml rows with no
// corresponding DiffContent row yet, the renderer's (C8) work queue.
func (s *Store) ProcessedDiffHtmlWithoutContent(ctx context.Context, limit int) ([]*model.DiffHtml, error) {
	rows, err := s.db.QueryContext(ctx, diffHtmlSelect+`
		WHERE dh.status = ?
		  AND NOT EXISTS (SELECT 1 FROM diff_content dc WHERE dc.new_snapshot_id = dh.new_snapshot_id)
		ORDER BY dh.created_on ASC
		LIMIT ?`, model.DiffHtmlProcessed, limit)
	if err != nil {
		return nil, fmt.Errorf("store: processed diff_html without content: %w", err)
	}
	defer rows.Close()

	var out []*model.DiffHtml
	for rows.Next() {
		d, err := scanDiffHtml(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) diffHtmlByNewSnapshot(ctx context.Context, newSnapshotID int64) (*model.DiffHtml, error) {
	row := s.db.QueryRowContext(ctx, diffHtmlSelect+` WHERE dh.new_snapshot_id = ?`, newSnapshotID)
	return scanDiffHtml(row)
}

// GetDiffHtml returns a DiffHtml row by id, used by the internal
// diff-render HTTP endpoint to serve a side's annotated HTML.
func (s *Store) GetDiffHtml(ctx context.Context, id int64) (*model.DiffHtml, error) {
	return s.diffHtmlByID(ctx, id)
}

func (s *Store) diffHtmlByID(ctx context.Context, id int64) (*model.DiffHtml, error) {
	row := s.db.QueryRowContext(ctx, diffHtmlSelect+` WHERE dh.id = ?`, id)
	return scanDiffHtml(row)
}

const diffHtmlCols = `dh.id, dh.old_snapshot_id, dh.old_diff_html, dh.removed_t, dh.removed_i, dh.removed_l,
	dh.new_snapshot_id, dh.new_diff_html, dh.added_t, dh.added_i, dh.added_l,
	dh.status, dh.last_error, dh.created_on, dh.updated_on`
const diffHtmlSelect = `SELECT ` + diffHtmlCols + ` FROM diff_html dh`

func scanDiffHtml(row scannable) (*model.DiffHtml, error) {
	var d model.DiffHtml
	var oldSnapshotID sql.NullInt64
	var removedT, removedI, removedL, addedT, addedI, addedL string

	if err := row.Scan(
		&d.ID, &oldSnapshotID, &d.OldDiffHTML, &removedT, &removedI, &removedL,
		&d.NewSnapshotID, &d.NewDiffHTML, &addedT, &addedI, &addedL,
		&d.Status, &d.LastError, &d.CreatedOn, &d.UpdatedOn,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan diff_html: %w", err)
	}
	if oldSnapshotID.Valid {
		d.OldSnapshotID = &oldSnapshotID.Int64
	}

	var err error
	if d.Removed, err = unmarshalSummary(removedT, removedI, removedL); err != nil {
		return nil, err
	}
	if d.Added, err = unmarshalSummary(addedT, addedI, addedL); err != nil {
		return nil, err
	}
	return &d, nil
}

// marshalSummary returns the JSON-encoded [T, I, L] buckets in column order.
func marshalSummary(sum model.DiffSummary) ([3]string, error) {
	var out [3]string
	for i, bucket := range [][]string{sum.T, sum.I, sum.L} {
		if bucket == nil {
			bucket = []string{}
		}
		b, err := json.Marshal(bucket)
		if err != nil {
			return out, fmt.Errorf("store: marshal diff summary: %w", err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func unmarshalSummary(t, i, l string) (model.DiffSummary, error) {
	var sum model.DiffSummary
	if err := json.Unmarshal([]byte(t), &sum.T); err != nil {
		return sum, fmt.Errorf("store: decode summary T: %w", err)
	}
	if err := json.Unmarshal([]byte(i), &sum.I); err != nil {
		return sum, fmt.Errorf("store: decode summary I: %w", err)
	}
	if err := json.Unmarshal([]byte(l), &sum.L); err != nil {
		return sum, fmt.Errorf("store: decode summary L: %w", err)
	}
	return sum, nil
}
