// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/raysh454/moku-wst/internal/interfaces"
	"github.com/raysh454/moku-wst/internal/model"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements interfaces.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...interfaces.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...interfaces.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...interfaces.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...interfaces.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...interfaces.Field) interfaces.Logger { return l }

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements interfaces.WebClient.
// By default it returns body "ok:<url>" with status 200.
// Set FailURLs[url] = true to force an error for a specific URL.
type DummyWebClient struct {
	ResponseDelay time.Duration
	FailURLs      map[string]bool
	mu            sync.Mutex
	Requests      []*model.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *model.Request) (*model.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, &errString{"dummy fetch fail for " + req.URL}
	}

	return &model.Response{
		Request:    req,
		Body:       []byte("ok:" + req.URL),
		StatusCode: 200,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*model.Response, error) {
	return d.Do(ctx, &model.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// ─── BlobStore ─────────────────────────────────────────────────────────

// DummyBlobStore implements interfaces.BlobStore in memory.
type DummyBlobStore struct {
	mu       sync.Mutex
	Objects  map[string][]byte
	Deleted  []string
	FailPuts map[string]bool
}

func NewDummyBlobStore() *DummyBlobStore {
	return &DummyBlobStore{Objects: map[string][]byte{}}
}

func (b *DummyBlobStore) Put(key string, data []byte, contentType string, cacheControl string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailPuts != nil && b.FailPuts[key] {
		return &errString{"dummy blobstore put fail for " + key}
	}
	if b.Objects == nil {
		b.Objects = map[string][]byte{}
	}
	b.Objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *DummyBlobStore) Get(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.Objects[key]
	if !ok {
		return nil, &errString{"dummy blobstore: no object at " + key}
	}
	return append([]byte(nil), data...), nil
}

func (b *DummyBlobStore) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.Objects, key)
	b.Deleted = append(b.Deleted, key)
	return nil
}

func (b *DummyBlobStore) URLFor(key string) string {
	return "https://blobs.test/" + key
}

// ─── Notifier ──────────────────────────────────────────────────────────

// DummyNotifier implements interfaces.Notifier, recording every report.
type DummyNotifier struct {
	mu      sync.Mutex
	Reports []interfaces.FetchRunReport
}

func (n *DummyNotifier) Report(report interfaces.FetchRunReport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Reports = append(n.Reports, report)
}

// ─── Store ─────────────────────────────────────────────────────────────

// DummyStore implements interfaces.Store with an in-memory map, for tests
// that need the contract without spinning up a real SQLite database.
type DummyStore struct {
	mu sync.Mutex

	Sources      map[int64]*model.Source
	Snapshots    map[int64]*model.Snapshot
	DiffHtmls    map[int64]*model.DiffHtml
	DiffContents map[int64]*model.DiffContent
	WebUpdates   map[int64]*model.WebUpdate

	nextID int64
}

func NewDummyStore() *DummyStore {
	return &DummyStore{
		Sources:      map[int64]*model.Source{},
		Snapshots:    map[int64]*model.Snapshot{},
		DiffHtmls:    map[int64]*model.DiffHtml{},
		DiffContents: map[int64]*model.DiffContent{},
		WebUpdates:   map[int64]*model.WebUpdate{},
	}
}

func (d *DummyStore) newID() int64 {
	d.nextID++
	return d.nextID
}

func (d *DummyStore) CreateSource(_ context.Context, src *model.Source) (*model.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *src
	cp.ID = d.newID()
	cp.State = model.SourceActive
	d.Sources[cp.ID] = &cp
	return &cp, nil
}

func (d *DummyStore) GetSource(_ context.Context, id int64) (*model.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.Sources[id]
	if !ok {
		return nil, &errString{"source not found"}
	}
	return src, nil
}

func (d *DummyStore) DueSources(_ context.Context, f model.Frequency, shard, maxShards, batchSize int) ([]*model.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*model.Source
	for _, src := range d.Sources {
		if src.State != model.SourceActive || src.Frequency != f {
			continue
		}
		if int(src.ID%int64(maxShards)) != shard {
			continue
		}
		out = append(out, src)
		if len(out) >= batchSize {
			break
		}
	}
	return out, nil
}

func (d *DummyStore) MarkSourceRun(_ context.Context, id int64, lastErr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if src, ok := d.Sources[id]; ok {
		now := time.Now().UTC()
		src.LastRun = &now
		src.LastError = lastErr
	}
	return nil
}

func (d *DummyStore) MarkSourceBroken(_ context.Context, id int64, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if src, ok := d.Sources[id]; ok {
		src.State = model.SourceBroken
		src.LastError = reason
	}
	return nil
}

func (d *DummyStore) PutSnapshot(_ context.Context, snap *model.Snapshot) (*model.Snapshot, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.Snapshots {
		if existing.ContentHash == snap.ContentHash {
			return existing, false, nil
		}
	}
	cp := *snap
	cp.ID = d.newID()
	cp.Status = model.SnapshotDraft
	d.Snapshots[cp.ID] = &cp
	return &cp, true, nil
}

func (d *DummyStore) SnapshotExistsByHash(_ context.Context, hash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.Snapshots {
		if existing.ContentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (d *DummyStore) GetSnapshot(_ context.Context, id int64) (*model.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.Snapshots[id]
	if !ok {
		return nil, &errString{"dummy store: no snapshot " + strconv.FormatInt(id, 10)}
	}
	return s, nil
}

func (d *DummyStore) LatestProcessedSnapshot(_ context.Context, sourceID int64) (*model.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var latest *model.Snapshot
	for _, s := range d.Snapshots {
		if s.SourceID != sourceID || s.Status != model.SnapshotProcessed {
			continue
		}
		if latest == nil || s.CreatedOn.After(latest.CreatedOn) {
			latest = s
		}
	}
	return latest, nil
}

func (d *DummyStore) OldestDraftSnapshotPerSource(_ context.Context, limit int) ([]*model.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bySource := map[int64]*model.Snapshot{}
	for _, s := range d.Snapshots {
		if s.Status != model.SnapshotDraft {
			continue
		}
		cur, ok := bySource[s.SourceID]
		if !ok || s.CreatedOn.Before(cur.CreatedOn) {
			bySource[s.SourceID] = s
		}
	}
	var out []*model.Snapshot
	for _, s := range bySource {
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (d *DummyStore) UpdateSnapshotStatus(_ context.Context, id int64, status model.SnapshotStatus, lastErr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.Snapshots[id]; ok {
		s.Status = status
		s.LastError = lastErr
	}
	return nil
}

func (d *DummyStore) CreateDiffHtml(_ context.Context, dh *model.DiffHtml) (*model.DiffHtml, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.DiffHtmls {
		if existing.NewSnapshotID == dh.NewSnapshotID {
			return existing, false, nil
		}
	}
	cp := *dh
	cp.ID = d.newID()
	if cp.Status == "" {
		cp.Status = model.DiffHtmlDraft
	}
	d.DiffHtmls[cp.ID] = &cp
	return &cp, true, nil
}

func (d *DummyStore) GetDiffHtml(_ context.Context, id int64) (*model.DiffHtml, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dh, ok := d.DiffHtmls[id]
	if !ok {
		return nil, &errString{"dummy store: no diff_html " + strconv.FormatInt(id, 10)}
	}
	return dh, nil
}

func (d *DummyStore) UpdateDiffHtmlStatus(_ context.Context, id int64, status model.DiffHtmlStatus, lastErr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if dh, ok := d.DiffHtmls[id]; ok {
		dh.Status = status
		dh.LastError = lastErr
	}
	return nil
}

func (d *DummyStore) ProcessedDiffHtmlWithoutContent(_ context.Context, limit int) ([]*model.DiffHtml, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*model.DiffHtml
	for _, dh := range d.DiffHtmls {
		if dh.Status != model.DiffHtmlProcessed {
			continue
		}
		hasContent := false
		for _, dc := range d.DiffContents {
			if dc.NewSnapshotID == dh.NewSnapshotID {
				hasContent = true
				break
			}
		}
		if hasContent {
			continue
		}
		out = append(out, dh)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (d *DummyStore) CreateDiffContent(_ context.Context, dc *model.DiffContent) (*model.DiffContent, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.DiffContents {
		if existing.NewSnapshotID == dc.NewSnapshotID {
			return existing, false, nil
		}
	}
	cp := *dc
	cp.ID = d.newID()
	cp.Status = model.DiffContentPending
	d.DiffContents[cp.ID] = &cp
	return &cp, true, nil
}

func (d *DummyStore) GetDiffContentByNewSnapshot(_ context.Context, newSnapshotID int64) (*model.DiffContent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dc := range d.DiffContents {
		if dc.NewSnapshotID == newSnapshotID {
			return dc, nil
		}
	}
	return nil, &errString{"diff_content not found"}
}

func (d *DummyStore) PendingDiffContent(_ context.Context, limit int) ([]*model.DiffContent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*model.DiffContent
	for _, dc := range d.DiffContents {
		if dc.Status != model.DiffContentPending {
			continue
		}
		out = append(out, dc)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (d *DummyStore) PendingDiffContentCreatedBetween(_ context.Context, start, end time.Time, limit int) ([]*model.DiffContent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*model.DiffContent
	for _, dc := range d.DiffContents {
		if dc.Status != model.DiffContentPending {
			continue
		}
		if dc.CreatedOn.Before(start) || !dc.CreatedOn.Before(end) {
			continue
		}
		out = append(out, dc)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (d *DummyStore) CreateWebUpdate(_ context.Context, w *model.WebUpdate) (*model.WebUpdate, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.WebUpdates {
		if existing.ClientID == w.ClientID && existing.Hash == w.Hash {
			return existing, false, nil
		}
	}
	cp := *w
	cp.ID = d.newID()
	cp.Status = model.WebUpdatePending
	d.WebUpdates[cp.ID] = &cp
	return &cp, true, nil
}

func (d *DummyStore) GetWebUpdate(_ context.Context, id int64) (*model.WebUpdate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.WebUpdates[id]
	if !ok {
		return nil, &errString{"web_update not found"}
	}
	return w, nil
}

func (d *DummyStore) ListWebUpdatesForClient(_ context.Context, clientID int, since time.Time, limit int) ([]*model.WebUpdate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*model.WebUpdate
	for _, w := range d.WebUpdates {
		if w.ClientID != clientID || w.CreatedOn.Before(since) {
			continue
		}
		out = append(out, w)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (d *DummyStore) ChangeLogForWebUpdate(_ context.Context, target *model.WebUpdate, limit int) ([]*model.WebUpdate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*model.WebUpdate
	for _, w := range d.WebUpdates {
		if w.WebSourceID != target.WebSourceID || w.ID == target.ID || w.PubDate > target.PubDate {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PubDate > out[j].PubDate })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *DummyStore) UpdateWebUpdateStatus(_ context.Context, id int64, status model.WebUpdateStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.WebUpdates[id]; ok {
		w.Status = status
	}
	return nil
}

func (d *DummyStore) KeepSnapshotIDs(_ context.Context) (map[int64]bool, error) {
	return map[int64]bool{}, nil
}

func (d *DummyStore) ArchivableDiffContent(_ context.Context, cutoff time.Time, maxItems int) ([]*model.DiffContent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*model.DiffContent
	for _, dc := range d.DiffContents {
		if dc.Status != model.DiffContentPending && dc.Status != model.DiffContentRejected {
			continue
		}
		if dc.CreatedOn.After(cutoff) {
			continue
		}
		out = append(out, dc)
		if len(out) >= maxItems {
			break
		}
	}
	return out, nil
}

func (d *DummyStore) DeleteDiffContentCascade(_ context.Context, dc *model.DiffContent, keep map[int64]bool) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.DiffContents, dc.ID)
	for id, dh := range d.DiffHtmls {
		if dh.NewSnapshotID == dc.NewSnapshotID {
			delete(d.DiffHtmls, id)
		}
	}
	if !keep[dc.NewSnapshotID] {
		delete(d.Snapshots, dc.NewSnapshotID)
	}
	if dc.OldSnapshotID != nil && !keep[*dc.OldSnapshotID] {
		delete(d.Snapshots, *dc.OldSnapshotID)
	}
	return nil, nil
}

func (d *DummyStore) Close() error { return nil }

var _ interfaces.Store = (*DummyStore)(nil)

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
