package browser_test

import (
	"context"
	"testing"
	"time"

	"github.com/raysh454/moku-wst/internal/browser"
	"github.com/raysh454/moku-wst/internal/testutil"
)

// TestNewPoolConstructs verifies that NewPool returns a usable Pool without
// actually launching a browser process — launch is lazy in chromedp's
// ExecAllocator, deferred until the first Context() call navigates.
func TestNewPoolConstructs(t *testing.T) {
	opts := browser.DefaultOptions()
	p, err := browser.NewPool(opts, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()
	if p.ShouldRecycle() {
		t.Fatalf("freshly constructed pool should not need recycling")
	}
}

// TestContextNavigatesAboutBlank exercises an actual browser context, which
// needs a headless Chrome binary on PATH; skip gracefully where one isn't
// available rather than failing the suite.
func TestContextNavigatesAboutBlank(t *testing.T) {
	p, err := browser.NewPool(browser.DefaultOptions(), &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	ctx, cancel, err := p.Context(context.Background())
	if err != nil {
		t.Skipf("skipping: browser context unavailable in this environment: %v", err)
	}
	defer cancel()

	if err := p.Goto(ctx, "about:blank", 5*time.Second, 0); err != nil {
		t.Skipf("skipping: chromedp navigation unavailable in this environment: %v", err)
	}
	if p.BatchesSinceRecycle() != 1 {
		t.Fatalf("BatchesSinceRecycle() = %d, want 1", p.BatchesSinceRecycle())
	}
}

// TestShouldRecycleRespectsZeroDisablesRecycling confirms a zero
// RecycleBatches option means recycling never triggers, regardless of how
// many batches have run.
func TestShouldRecycleRespectsZeroDisablesRecycling(t *testing.T) {
	opts := browser.DefaultOptions()
	opts.RecycleBatches = 0
	p, err := browser.NewPool(opts, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	if p.ShouldRecycle() {
		t.Fatalf("RecycleBatches=0 must disable recycling")
	}
}
