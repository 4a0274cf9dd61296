package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raysh454/moku-wst/internal/model"
	"github.com/raysh454/moku-wst/internal/testutil"
)

// fakeBrowser implements Browser entirely in memory; each URL's HTML comes
// from Pages, or a canned page keyed by the URL itself when absent.
type fakeBrowser struct {
	Pages           map[string]string
	FailDNS         map[string]bool
	FailGoto        map[string]bool
	ScreenshotCalls int
}

func (f *fakeBrowser) Context(ctx context.Context) (context.Context, context.CancelFunc, error) {
	return ctx, func() {}, nil
}

func (f *fakeBrowser) Goto(_ context.Context, url string, _ time.Duration, _ int) error {
	if f.FailDNS != nil && f.FailDNS[url] {
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	if f.FailGoto != nil && f.FailGoto[url] {
		return errors.New("navigation timeout")
	}
	return nil
}

func (f *fakeBrowser) AcceptCookies(context.Context, []string) error     { return nil }
func (f *fakeBrowser) ClosePopups(context.Context) error                { return nil }
func (f *fakeBrowser) AutoScroll(context.Context, int) error            { return nil }
func (f *fakeBrowser) PrepareForScreenshot(context.Context, time.Duration) error { return nil }

func (f *fakeBrowser) CaptureHTML(ctx context.Context) (string, error) {
	return "<html><body>page</body></html>", nil
}

func (f *fakeBrowser) Screenshot(context.Context, int) ([]byte, error) {
	f.ScreenshotCalls++
	return []byte("jpegbytes"), nil
}

func newTestSource(id int64, url, domain string) *model.Source {
	return &model.Source{
		ID:             id,
		URL:            url,
		BaseURL:        "https://" + domain,
		Domain:         domain,
		Frequency:      model.Freq24h,
		ClientBindings: []model.ClientBinding{{ClientID: 1, Active: true}},
	}
}

func TestRunCapturesNewSnapshotForDueSource(t *testing.T) {
	store := testutil.NewDummyStore()
	ctx := context.Background()
	src, err := store.CreateSource(ctx, newTestSource(0, "https://a.example.com/", "a.example.com"))
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	sched := &Scheduler{
		Store:    store,
		Blobs:    testutil.NewDummyBlobStore(),
		Browser:  &fakeBrowser{},
		Notifier: &testutil.DummyNotifier{},
		Logger:   &testutil.DummyLogger{},
	}

	report, err := sched.Run(ctx, Options{Frequency: model.Freq24h, MaxShards: 1, BatchSize: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Captured != 1 {
		t.Fatalf("Captured = %d, want 1", report.Captured)
	}
	if report.SourcesSelected != 1 {
		t.Fatalf("SourcesSelected = %d, want 1", report.SourcesSelected)
	}

	got, err := store.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.LastRun == nil {
		t.Fatal("expected LastRun to be set after a successful fetch")
	}
}

func TestRunIsIdempotentOnUnchangedContent(t *testing.T) {
	store := testutil.NewDummyStore()
	ctx := context.Background()
	_, err := store.CreateSource(ctx, newTestSource(0, "https://b.example.com/", "b.example.com"))
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	sched := &Scheduler{
		Store:   store,
		Blobs:   testutil.NewDummyBlobStore(),
		Browser: &fakeBrowser{},
		Logger:  &testutil.DummyLogger{},
	}
	opts := Options{Frequency: model.Freq24h, MaxShards: 1, BatchSize: 10}

	first, err := sched.Run(ctx, opts)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Captured != 1 {
		t.Fatalf("first Captured = %d, want 1", first.Captured)
	}

	second, err := sched.Run(ctx, opts)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Captured != 0 || second.NoChange != 1 {
		t.Fatalf("second run = %+v, want Captured=0 NoChange=1", second)
	}
}

func TestRunSkipsScreenshotWhenContentUnchanged(t *testing.T) {
	store := testutil.NewDummyStore()
	ctx := context.Background()
	_, err := store.CreateSource(ctx, newTestSource(0, "https://c.example.com/", "c.example.com"))
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	browser := &fakeBrowser{}
	sched := &Scheduler{
		Store:   store,
		Blobs:   testutil.NewDummyBlobStore(),
		Browser: browser,
		Logger:  &testutil.DummyLogger{},
	}
	opts := Options{Frequency: model.Freq24h, MaxShards: 1, BatchSize: 10}

	if _, err := sched.Run(ctx, opts); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if browser.ScreenshotCalls != 1 {
		t.Fatalf("ScreenshotCalls after first run = %d, want 1", browser.ScreenshotCalls)
	}

	if _, err := sched.Run(ctx, opts); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if browser.ScreenshotCalls != 1 {
		t.Fatalf("ScreenshotCalls after second (unchanged) run = %d, want still 1 (screenshot must be skipped before capture)", browser.ScreenshotCalls)
	}
}

func TestRunMarksSourceBrokenOnDNSFailure(t *testing.T) {
	store := testutil.NewDummyStore()
	ctx := context.Background()
	src, err := store.CreateSource(ctx, newTestSource(0, "https://broken.example.com/", "broken.example.com"))
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	sched := &Scheduler{
		Store:    store,
		Blobs:    testutil.NewDummyBlobStore(),
		Browser:  &fakeBrowser{FailDNS: map[string]bool{"https://broken.example.com/": true}},
		Notifier: &testutil.DummyNotifier{},
		Logger:   &testutil.DummyLogger{},
	}

	report, err := sched.Run(ctx, Options{Frequency: model.Freq24h, MaxShards: 1, BatchSize: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Broken != 1 {
		t.Fatalf("Broken = %d, want 1", report.Broken)
	}

	got, err := store.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.State != model.SourceBroken {
		t.Fatalf("State = %q, want broken", got.State)
	}
}

func TestSelectSourcesFiltersByIDsURLsAndClients(t *testing.T) {
	store := testutil.NewDummyStore()
	ctx := context.Background()

	keep := newTestSource(0, "https://keep.example.com/", "keep.example.com")
	keep.ClientBindings = []model.ClientBinding{{ClientID: 1, Active: true}}
	skip := newTestSource(0, "https://skip.example.com/", "skip.example.com")
	skip.ClientBindings = []model.ClientBinding{{ClientID: 2, Active: true}}

	keepSrc, _ := store.CreateSource(ctx, keep)
	_, _ = store.CreateSource(ctx, skip)

	sched := &Scheduler{Store: store}
	sources, err := sched.selectSources(ctx, Options{
		Frequency:      model.Freq24h,
		MaxShards:      1,
		BatchSize:      10,
		IncludeClients: []int{1},
	})
	if err != nil {
		t.Fatalf("selectSources: %v", err)
	}
	if len(sources) != 1 || sources[0].ID != keepSrc.ID {
		t.Fatalf("expected only keep source, got %+v", sources)
	}
}

func TestPairByDomainGroupsSameRegisteredDomain(t *testing.T) {
	a := newTestSource(1, "https://www.example.com/", "www.example.com")
	b := newTestSource(2, "https://blog.example.com/", "blog.example.com")
	c := newTestSource(3, "https://unrelated.test/", "unrelated.test")

	groups := pairByDomain([]*model.Source{a, b, c})
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if len(groups[0]) != 2 {
		t.Fatalf("first group = %d sources, want 2 (same registered domain)", len(groups[0]))
	}
	if len(groups[1]) != 1 {
		t.Fatalf("second group = %d sources, want 1", len(groups[1]))
	}
}

func TestRunNotifiesOnErrors(t *testing.T) {
	store := testutil.NewDummyStore()
	ctx := context.Background()
	_, err := store.CreateSource(ctx, newTestSource(0, "https://flaky.example.com/", "flaky.example.com"))
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	notifier := &testutil.DummyNotifier{}
	sched := &Scheduler{
		Store:    store,
		Blobs:    testutil.NewDummyBlobStore(),
		Browser:  &fakeBrowser{FailGoto: map[string]bool{"https://flaky.example.com/": true}},
		Notifier: notifier,
		Logger:   &testutil.DummyLogger{},
	}

	if _, err := sched.Run(ctx, Options{Frequency: model.Freq24h, MaxShards: 1, BatchSize: 10}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(notifier.Reports) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.Reports))
	}
}
