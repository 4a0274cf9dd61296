package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/moku-wst/internal/model"
)

// PutSnapshot inserts a draft snapshot. content_hash is unique globally, not
// per source: if a row with the same fingerprint already exists anywhere —
// the page is unchanged, or two sources happen to render identical
// normalized HTML — the existing row is returned with inserted=false rather
// than erroring, per the "page unchanged" contract.
func (s *Store) PutSnapshot(ctx context.Context, snap *model.Snapshot) (*model.Snapshot, bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (source_id, status, content_hash, raw_html_blob_key,
		                        raw_screenshot_key, last_error, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_hash) DO NOTHING`,
		snap.SourceID, model.SnapshotDraft, snap.ContentHash, snap.RawHTML,
		snap.RawScreenshotKey, snap.LastError, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("store: put snapshot: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("store: put snapshot rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.snapshotByHash(ctx, snap.ContentHash)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("store: put snapshot last insert id: %w", err)
	}
	return s.snapshotByID(ctx, id)
}

// SnapshotExistsByHash reports whether a snapshot with this content hash
// has already been captured, letting the fetch scheduler skip the
// screenshot step entirely for an unchanged page.
func (s *Store) SnapshotExistsByHash(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM snapshots WHERE content_hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: snapshot exists by hash: %w", err)
	}
	return n > 0, nil
}

func (s *Store) snapshotByHash(ctx context.Context, hash string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, snapshotSelect+` WHERE content_hash = ?`, hash)
	return scanSnapshot(row)
}

func (s *Store) snapshotByID(ctx context.Context, id int64) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, snapshotSelect+` WHERE id = ?`, id)
	return scanSnapshot(row)
}

// GetSnapshot returns a Snapshot by id, used by the feed builder to map a
// DiffContent's new_snapshot_id back to its source.
func (s *Store) GetSnapshot(ctx context.Context, id int64) (*model.Snapshot, error) {
	return s.snapshotByID(ctx, id)
}

// LatestProcessedSnapshot returns the most recently created processed
// snapshot for sourceID, or nil if none exists (a first fetch).
func (s *Store) LatestProcessedSnapshot(ctx context.Context, sourceID int64) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		snapshotSelect+` WHERE source_id = ? AND status = ? ORDER BY created_on DESC LIMIT 1`,
		sourceID, model.SnapshotProcessed)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

// OldestDraftSnapshotPerSource returns, for each source with at least one
// draft snapshot, its single oldest draft — the SQLite-compatible
// correlated-subquery analog of Postgres's SELECT DISTINCT ON, since
// modernc.org/sqlite does not support that extension.
func (s *Store) OldestDraftSnapshotPerSource(ctx context.Context, limit int) ([]*model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotCols+` FROM snapshots s1
		WHERE s1.status = ?
		  AND s1.id = (
		      SELECT s2.id FROM snapshots s2
		      WHERE s2.source_id = s1.source_id AND s2.status = ?
		      ORDER BY s2.created_on ASC, s2.id ASC LIMIT 1
		  )
		ORDER BY s1.created_on ASC
		LIMIT ?`, model.SnapshotDraft, model.SnapshotDraft, limit)
	if err != nil {
		return nil, fmt.Errorf("store: oldest draft snapshot per source: %w", err)
	}
	defer rows.Close()

	var out []*model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSnapshotStatus(ctx context.Context, id int64, status model.SnapshotStatus, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE snapshots SET status = ?, last_error = ?, updated_on = ? WHERE id = ?`,
		status, lastErr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update snapshot status %d: %w", id, err)
	}
	return nil
}

const snapshotCols = `id, source_id, status, content_hash, raw_html_blob_key, raw_screenshot_key, last_error, created_on, updated_on`
const snapshotSelect = `SELECT ` + snapshotCols + ` FROM snapshots`

func scanSnapshot(row scannable) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := row.Scan(
		&snap.ID, &snap.SourceID, &snap.Status, &snap.ContentHash,
		&snap.RawHTML, &snap.RawScreenshotKey, &snap.LastError,
		&snap.CreatedOn, &snap.UpdatedOn,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan snapshot: %w", err)
	}
	return &snap, nil
}
