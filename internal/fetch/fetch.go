// Package fetch implements the fetch scheduler (C4): selects due Sources
// for a (frequency, shard) tick, pairs them by registered domain for
// politeness, and runs the eight-step per-source capture sequence against
// the browser pool, persisting a draft Snapshot on change.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/raysh454/moku-wst/internal/blobstore"
	"github.com/raysh454/moku-wst/internal/interfaces"
	"github.com/raysh454/moku-wst/internal/model"
	"github.com/raysh454/moku-wst/internal/normalize"
	"github.com/raysh454/moku-wst/internal/utils"
)

// batchGroup is the maximum number of domain-pair groups fetched
// concurrently within a process (§5's BATCH_GROUP = 2).
const batchGroup = 2

// Browser is the subset of browser.Pool the scheduler drives per source.
type Browser interface {
	Context(ctx context.Context) (context.Context, context.CancelFunc, error)
	Goto(ctx context.Context, url string, timeout time.Duration, graceCount int) error
	AcceptCookies(ctx context.Context, xpaths []string) error
	ClosePopups(ctx context.Context) error
	AutoScroll(ctx context.Context, maxIters int) error
	PrepareForScreenshot(ctx context.Context, sleep time.Duration) error
	CaptureHTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, quality int) ([]byte, error)
}

// ErrDNSUnresolvable is returned by a Browser.Goto implementation (or
// detected from its error text) when the host failed to resolve; it ends
// the retry loop immediately and transitions the Source to broken.
var ErrDNSUnresolvable = errors.New("fetch: dns unresolvable")

const (
	gotoTimeout      = 180 * time.Second
	maxAutoScroll    = 5
	screenshotSleep  = time.Second
	maxRetries       = 3
	defaultRunBudget = time.Hour
)

// Options configures a scheduler Run.
type Options struct {
	Frequency      model.Frequency
	Shard          int
	MaxShards      int
	BatchSize      int
	IDs            []int64
	URLs           []string
	IncludeClients []int
	ExcludeClients []int
}

// Scheduler runs fetch ticks against a Store, BlobStore, Browser and
// Notifier.
type Scheduler struct {
	Store     interfaces.Store
	Blobs     interfaces.BlobStore
	Browser   Browser
	Notifier  interfaces.Notifier
	Logger    interfaces.Logger
	RunBudget time.Duration
}

// Run executes one scheduler tick: selects due sources, pairs them by
// registered domain, fetches each, and reports aggregated errors.
func (s *Scheduler) Run(ctx context.Context, opts Options) (interfaces.FetchRunReport, error) {
	budget := s.RunBudget
	if budget <= 0 {
		budget = defaultRunBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	report := interfaces.FetchRunReport{
		Frequency:      string(opts.Frequency),
		Shard:          opts.Shard,
		ErrorsByPrefix: map[string]int{},
	}

	sources, err := s.selectSources(ctx, opts)
	if err != nil {
		return report, fmt.Errorf("fetch: select sources: %w", err)
	}
	report.SourcesSelected = len(sources)

	groups := pairByDomain(sources)
	sem := semaphore.NewWeighted(batchGroup)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, pair := range groups {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(pair []*model.Source) {
			defer wg.Done()
			defer sem.Release(1)

			// Sources sharing a registered domain run sequentially inside
			// the pair for politeness; unrelated pairs run concurrently,
			// up to batchGroup at a time.
			for _, src := range pair {
				outcome, err := s.fetchOneWithRetry(ctx, src)

				mu.Lock()
				switch {
				case err != nil:
					report.Broken += boolToInt(outcome == outcomeBroken)
					if outcome != outcomeBroken {
						bucketError(report.ErrorsByPrefix, err)
					}
				case outcome == outcomeNoChange:
					report.NoChange++
				case outcome == outcomeCaptured:
					report.Captured++
				}
				mu.Unlock()
			}
		}(pair)
	}
	wg.Wait()

	if len(report.ErrorsByPrefix) > 0 && s.Notifier != nil {
		s.Notifier.Report(report)
	}
	return report, nil
}

type outcome int

const (
	outcomeCaptured outcome = iota
	outcomeNoChange
	outcomeBroken
	outcomeFailed
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func bucketError(buckets map[string]int, err error) {
	msg := err.Error()
	prefix := msg
	if idx := strings.IndexAny(msg, ":\n"); idx > 0 && idx < 60 {
		prefix = msg[:idx]
	} else if len(prefix) > 60 {
		prefix = prefix[:60]
	}
	buckets[prefix]++
}

func (s *Scheduler) selectSources(ctx context.Context, opts Options) ([]*model.Source, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	maxShards := opts.MaxShards
	if maxShards <= 0 {
		maxShards = 1
	}

	due, err := s.Store.DueSources(ctx, opts.Frequency, opts.Shard, maxShards, batchSize)
	if err != nil {
		return nil, err
	}

	idFilter := toInt64Set(opts.IDs)
	urlFilter := toStringSet(opts.URLs)
	includeClients := toIntSet(opts.IncludeClients)
	excludeClients := toIntSet(opts.ExcludeClients)

	out := make([]*model.Source, 0, len(due))
	for _, src := range due {
		if !src.HasActiveClientBinding() {
			continue
		}
		if len(idFilter) > 0 && !idFilter[src.ID] {
			continue
		}
		if len(urlFilter) > 0 && !urlFilter[src.URL] {
			continue
		}
		if len(includeClients) > 0 && !anyClientIn(src.ClientBindings, includeClients) {
			continue
		}
		if len(excludeClients) > 0 && anyClientIn(src.ClientBindings, excludeClients) {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}

func toInt64Set(ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func toStringSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

func toIntSet(ii []int) map[int]bool {
	if len(ii) == 0 {
		return nil
	}
	m := make(map[int]bool, len(ii))
	for _, i := range ii {
		m[i] = true
	}
	return m
}

func anyClientIn(bindings []model.ClientBinding, set map[int]bool) bool {
	for _, b := range bindings {
		if set[b.ClientID] {
			return true
		}
	}
	return false
}

// pairByDomain groups adjacent (in selection order) sources sharing a
// registered domain into pairs run sequentially; unrelated sources stand
// alone in a group of one and may be fetched in parallel by the caller.
// This function itself performs no I/O — it only computes the grouping;
// Run fetches each group's members one at a time, which is always safe
// (sequential is a valid schedule for any pairing) while still expressing
// the politeness grouping spec.md names.
func pairByDomain(sources []*model.Source) [][]*model.Source {
	var groups [][]*model.Source
	i := 0
	for i < len(sources) {
		if i+1 < len(sources) && sameRegisteredDomain(sources[i], sources[i+1]) {
			groups = append(groups, []*model.Source{sources[i], sources[i+1]})
			i += 2
			continue
		}
		groups = append(groups, []*model.Source{sources[i]})
		i++
	}
	return groups
}

func sameRegisteredDomain(a, b *model.Source) bool {
	da, err := utils.RegisteredDomain(a.Domain)
	if err != nil {
		return false
	}
	db, err := utils.RegisteredDomain(b.Domain)
	if err != nil {
		return false
	}
	return da == db && da != ""
}

// fetchOneWithRetry runs the per-source capture sequence, retrying up to
// maxRetries times on transient errors. A DNS-resolution failure marks the
// source broken immediately and ends the retry loop.
func (s *Scheduler) fetchOneWithRetry(ctx context.Context, src *model.Source) (outcome, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, err := s.fetchOne(ctx, src)
		if err == nil {
			_ = s.Store.MarkSourceRun(ctx, src.ID, "")
			return out, nil
		}
		lastErr = err

		if errors.Is(err, ErrDNSUnresolvable) {
			_ = s.Store.MarkSourceBroken(ctx, src.ID, err.Error())
			return outcomeBroken, err
		}
	}
	_ = s.Store.MarkSourceRun(ctx, src.ID, lastErr.Error())
	return outcomeFailed, lastErr
}

// fetchOne runs the eight-step per-source capture sequence once.
func (s *Scheduler) fetchOne(ctx context.Context, src *model.Source) (outcome, error) {
	taskCtx, cancel, err := s.Browser.Context(ctx)
	if err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s: browser context: %w", src.URL, err)
	}
	defer cancel()

	if err := s.Browser.Goto(taskCtx, src.URL, gotoTimeout, src.NetworkIdleGraceCount); err != nil {
		if isDNSFailure(err) {
			return outcomeFailed, fmt.Errorf("%w: %s: %v", ErrDNSUnresolvable, src.URL, err)
		}
		return outcomeFailed, fmt.Errorf("fetch %s: goto: %w", src.URL, err)
	}

	if len(src.AcceptCookieXPaths) > 0 {
		_ = s.Browser.AcceptCookies(taskCtx, src.AcceptCookieXPaths)
	} else {
		_ = s.Browser.ClosePopups(taskCtx)
	}

	if err := s.Browser.AutoScroll(taskCtx, maxAutoScroll); err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s: autoscroll: %w", src.URL, err)
	}
	if err := s.Browser.PrepareForScreenshot(taskCtx, screenshotSleep); err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s: prepare screenshot: %w", src.URL, err)
	}

	rawHTML, err := s.Browser.CaptureHTML(taskCtx)
	if err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s: capture html: %w", src.URL, err)
	}

	fingerprint, err := normalize.Fingerprint(rawHTML)
	if err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s: fingerprint: %w", src.URL, err)
	}

	// Step 6: stop before step 7's screenshot when the fingerprint is
	// unchanged — a page already on record never pays for a capture it
	// would then throw away.
	exists, err := s.Store.SnapshotExistsByHash(ctx, fingerprint)
	if err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s: check existing snapshot: %w", src.URL, err)
	}
	if exists {
		return outcomeNoChange, nil
	}

	shot, err := s.Browser.Screenshot(taskCtx, 100)
	if err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s: screenshot: %w", src.URL, err)
	}

	captureTS := time.Now().UTC()
	htmlKey := fmt.Sprintf("snapshots/%d/%s.html", src.ID, fingerprint)
	shotKey := blobstore.SnapshotImageKey(src.ID, captureTS)
	if err := s.Blobs.Put(htmlKey, []byte(rawHTML), "text/html; charset=utf-8", "public, max-age=2592000"); err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s: put html blob: %w", src.URL, err)
	}
	if err := s.Blobs.Put(shotKey, shot, "image/jpeg", "public, max-age=2592000"); err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s: put screenshot blob: %w", src.URL, err)
	}

	_, inserted, err := s.Store.PutSnapshot(ctx, &model.Snapshot{
		SourceID:         src.ID,
		ContentHash:      fingerprint,
		RawHTML:          htmlKey,
		RawScreenshotKey: shotKey,
	})
	if err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s: put snapshot: %w", src.URL, err)
	}
	if !inserted {
		// A race: another shard inserted the same content hash between our
		// existence check and this insert. The screenshot we just took is
		// simply discarded; PutSnapshot already returned the winning row.
		return outcomeNoChange, nil
	}
	return outcomeCaptured, nil
}

func isDNSFailure(err error) bool {
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "ERR_NAME_NOT_RESOLVED") || strings.Contains(msg, "NO SUCH HOST")
}
