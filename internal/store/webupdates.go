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

// CreateWebUpdate inserts a WebUpdate, idempotent on (client_id, hash) since
// hash = md5(title + description) is the curator-facing de-duplication key
// for a given client.
func (s *Store) CreateWebUpdate(ctx context.Context, w *model.WebUpdate) (row *model.WebUpdate, inserted bool, err error) {
	tagsJSON, err := marshalTags(w.Tags)
	if err != nil {
		return nil, false, err
	}
	snippet := w.SnippetInfo
	if snippet == nil {
		snippet = json.RawMessage("null")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO web_updates (client_id, web_source_id, diff_content_id, hash, status,
		                          title, description, pub_date, tags, manual_copy_of, snippet_info,
		                          created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, hash) DO NOTHING`,
		w.ClientID, w.WebSourceID, w.DiffContentID, w.Hash, model.WebUpdatePending,
		w.Title, w.Description, w.PubDate, tagsJSON, w.ManualCopyOf, string(snippet),
		now, now)
	if err != nil {
		return nil, false, fmt.Errorf("store: create web_update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("store: create web_update rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.webUpdateByHash(ctx, w.ClientID, w.Hash)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("store: create web_update last insert id: %w", err)
	}
	got, err := s.GetWebUpdate(ctx, id)
	return got, true, err
}

func (s *Store) GetWebUpdate(ctx context.Context, id int64) (*model.WebUpdate, error) {
	row := s.db.QueryRowContext(ctx, webUpdateSelect+` WHERE id = ?`, id)
	return scanWebUpdate(row)
}

func (s *Store) webUpdateByHash(ctx context.Context, clientID int, hash string) (*model.WebUpdate, error) {
	row := s.db.QueryRowContext(ctx, webUpdateSelect+` WHERE client_id = ? AND hash = ?`, clientID, hash)
	return scanWebUpdate(row)
}

// ListWebUpdatesForClient returns WebUpdates for clientID created since the
// given time, newest first, the feed the curator UI and change-log endpoint
// page over.
func (s *Store) ListWebUpdatesForClient(ctx context.Context, clientID int, since time.Time, limit int) ([]*model.WebUpdate, error) {
	rows, err := s.db.QueryContext(ctx, webUpdateSelect+`
		WHERE client_id = ? AND created_on >= ?
		ORDER BY created_on DESC
		LIMIT ?`, clientID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list web_updates for client %d: %w", clientID, err)
	}
	defer rows.Close()

	var out []*model.WebUpdate
	for rows.Next() {
		w, err := scanWebUpdate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ChangeLogForWebUpdate returns prior WebUpdates for target's web_source_id
// with pub_date <= target's, excluding target itself, newest first, capped
// at limit — the body of the human-visible change-log page at
// /tracking/<enc-id>/change-log/.
func (s *Store) ChangeLogForWebUpdate(ctx context.Context, target *model.WebUpdate, limit int) ([]*model.WebUpdate, error) {
	rows, err := s.db.QueryContext(ctx, webUpdateSelect+`
		WHERE web_source_id = ? AND id != ? AND pub_date <= ?
		ORDER BY pub_date DESC
		LIMIT ?`, target.WebSourceID, target.ID, target.PubDate, limit)
	if err != nil {
		return nil, fmt.Errorf("store: change log for web_update %d: %w", target.ID, err)
	}
	defer rows.Close()

	var out []*model.WebUpdate
	for rows.Next() {
		w, err := scanWebUpdate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) UpdateWebUpdateStatus(ctx context.Context, id int64, status model.WebUpdateStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE web_updates SET status = ?, updated_on = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update web_update status %d: %w", id, err)
	}
	return nil
}

const webUpdateCols = `id, client_id, web_source_id, diff_content_id, hash, status,
	title, description, pub_date, tags, manual_copy_of, snippet_info, created_on, updated_on`
const webUpdateSelect = `SELECT ` + webUpdateCols + ` FROM web_updates`

func scanWebUpdate(row scannable) (*model.WebUpdate, error) {
	var w model.WebUpdate
	var tagsJSON, snippetJSON string
	var manualCopyOf sql.NullInt64

	if err := row.Scan(
		&w.ID, &w.ClientID, &w.WebSourceID, &w.DiffContentID, &w.Hash, &w.Status,
		&w.Title, &w.Description, &w.PubDate, &tagsJSON, &manualCopyOf, &snippetJSON,
		&w.CreatedOn, &w.UpdatedOn,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan web_update: %w", err)
	}

	if err := json.Unmarshal([]byte(tagsJSON), &w.Tags); err != nil {
		return nil, fmt.Errorf("store: decode tags: %w", err)
	}
	if manualCopyOf.Valid {
		w.ManualCopyOf = &manualCopyOf.Int64
	}
	if snippetJSON != "null" {
		w.SnippetInfo = json.RawMessage(snippetJSON)
	}
	return &w, nil
}

func marshalTags(tags map[string][]int) (string, error) {
	if tags == nil {
		tags = map[string][]int{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("store: marshal tags: %w", err)
	}
	return string(b), nil
}
