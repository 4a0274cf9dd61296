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

func (s *Store) CreateSource(ctx context.Context, src *model.Source) (*model.Source, error) {
	junkXPaths, err := marshalStrings(src.JunkXPaths)
	if err != nil {
		return nil, err
	}
	acceptXPaths, err := marshalStrings(src.AcceptCookieXPaths)
	if err != nil {
		return nil, err
	}
	bindings, err := marshalBindings(src.ClientBindings)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (url, base_url, domain, state, frequency, junk_xpaths,
		                      accept_cookie_xpaths, screenshot_sleep_ms, network_idle_grace_count,
		                      client_bindings, last_error, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.URL, src.BaseURL, src.Domain, model.SourceActive, src.Frequency, junkXPaths,
		acceptXPaths, src.ScreenshotSleepMS, src.NetworkIdleGraceCount,
		bindings, src.LastError, now, now)
	if err != nil {
		return nil, fmt.Errorf("store: create source: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create source last insert id: %w", err)
	}
	return s.GetSource(ctx, id)
}

func marshalStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", fmt.Errorf("store: marshal string list: %w", err)
	}
	return string(b), nil
}

func marshalBindings(bindings []model.ClientBinding) (string, error) {
	if bindings == nil {
		bindings = []model.ClientBinding{}
	}
	b, err := json.Marshal(bindings)
	if err != nil {
		return "", fmt.Errorf("store: marshal client bindings: %w", err)
	}
	return string(b), nil
}

func (s *Store) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, base_url, domain, state, frequency, junk_xpaths,
		       accept_cookie_xpaths, screenshot_sleep_ms, network_idle_grace_count,
		       client_bindings, last_run, last_error, created_on, updated_on
		FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: source %d: %w", id, sql.ErrNoRows)
	}
	return src, err
}

// DueSources returns up to batchSize active sources of Frequency f whose
// id falls in this worker's shard (id % maxShards == shard) and which are
// either never run or past their DueAt, ordered oldest-due first.
func (s *Store) DueSources(ctx context.Context, f model.Frequency, shard, maxShards, batchSize int) ([]*model.Source, error) {
	cutoff := time.Now().Add(-time.Duration(f.Hours()) * time.Hour)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, base_url, domain, state, frequency, junk_xpaths,
		       accept_cookie_xpaths, screenshot_sleep_ms, network_idle_grace_count,
		       client_bindings, last_run, last_error, created_on, updated_on
		FROM sources
		WHERE state = ? AND frequency = ? AND (id % ?) = ?
		  AND (last_run IS NULL OR last_run <= ?)
		ORDER BY COALESCE(last_run, '0001-01-01') ASC
		LIMIT ?`,
		model.SourceActive, f, maxShards, shard, cutoff, batchSize)
	if err != nil {
		return nil, fmt.Errorf("store: due sources: %w", err)
	}
	defer rows.Close()

	var out []*model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) MarkSourceRun(ctx context.Context, id int64, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET last_run = ?, last_error = ?, updated_on = ? WHERE id = ?`,
		time.Now().UTC(), lastErr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: mark source run %d: %w", id, err)
	}
	return nil
}

func (s *Store) MarkSourceBroken(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET state = ?, last_error = ?, updated_on = ? WHERE id = ?`,
		model.SourceBroken, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: mark source broken %d: %w", id, err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var junkXPathsJSON, acceptXPathsJSON, bindingsJSON string
	var lastRun sql.NullTime

	if err := row.Scan(
		&src.ID, &src.URL, &src.BaseURL, &src.Domain, &src.State, &src.Frequency,
		&junkXPathsJSON, &acceptXPathsJSON, &src.ScreenshotSleepMS, &src.NetworkIdleGraceCount,
		&bindingsJSON, &lastRun, &src.LastError, &src.CreatedOn, &src.UpdatedOn,
	); err != nil {
		return nil, fmt.Errorf("store: scan source: %w", err)
	}

	if err := json.Unmarshal([]byte(junkXPathsJSON), &src.JunkXPaths); err != nil {
		return nil, fmt.Errorf("store: decode junk_xpaths: %w", err)
	}
	if err := json.Unmarshal([]byte(acceptXPathsJSON), &src.AcceptCookieXPaths); err != nil {
		return nil, fmt.Errorf("store: decode accept_cookie_xpaths: %w", err)
	}
	if err := json.Unmarshal([]byte(bindingsJSON), &src.ClientBindings); err != nil {
		return nil, fmt.Errorf("store: decode client_bindings: %w", err)
	}
	if lastRun.Valid {
		src.LastRun = &lastRun.Time
	}
	return &src, nil
}
