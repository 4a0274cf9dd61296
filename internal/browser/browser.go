// Package browser implements the headless browser pool (C3): one browser
// process vending recyclable contexts and pages for capture and for
// rendering diff HTML.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/raysh454/moku-wst/internal/interfaces"
	"github.com/raysh454/moku-wst/internal/model"
)

// antiFlickerCSS disables animation/transition so a full-page screenshot
// does not catch an in-flight CSS transition.
const antiFlickerCSS = `*, *::before, *::after { animation: none !important; transition: none !important; }`

// genericAcceptSelectors are tried, in order, when a Source has no
// configured AcceptCookieXPaths. Curated from common consent-banner
// button text/classes.
var genericAcceptSelectors = []string{
	`button#onetrust-accept-btn-handler`,
	`button[aria-label="Accept all"]`,
	`button[aria-label="Accept cookies"]`,
	`#accept-cookies`,
	`.cookie-accept`,
	`.cc-accept`,
}

// genericCloseSelectors are clicked, in order, up to maxPopupIterations
// times, to dismiss stacked overlays (newsletter modals, app-install
// banners, cookie walls without a configured xpath).
var genericCloseSelectors = []string{
	`button[aria-label="Close"]`,
	`.modal-close`,
	`.close-button`,
	`[data-dismiss="modal"]`,
}

const maxPopupIterations = 5

// Pool is a chromedp-backed browser pool. It counts Context() calls
// against RecycleBatches (see ShouldRecycle) but never recycles contexts
// or the browser process itself; pages are always closed by the caller
// after a single source's work is done.
type Pool struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu              sync.Mutex
	closed          bool
	batchesSinceNew int
	recycleBatches  int

	viewportW, viewportH int64

	logger interfaces.Logger
}

// Options configures a Pool.
type Options struct {
	Headless       bool
	ViewportWidth  int64
	ViewportHeight int64
	RecycleBatches int // Context() calls after which ShouldRecycle reports true; 0 makes it always false
}

func DefaultOptions() Options {
	return Options{
		Headless:       true,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		RecycleBatches: 50,
	}
}

// NewPool launches a single browser process via an ExecAllocator and
// returns a Pool that vends contexts against it.
func NewPool(opts Options, logger interfaces.Logger) (*Pool, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", opts.Headless))
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &Pool{
		allocCtx:       allocCtx,
		allocCancel:    allocCancel,
		recycleBatches: opts.RecycleBatches,
		viewportW:      opts.ViewportWidth,
		viewportH:      opts.ViewportHeight,
		logger:         logger,
	}, nil
}

// Close tears down the browser process.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.allocCancel()
	return nil
}

// Context vends a browser context (carrying the pool's default viewport)
// for a single source's work. Callers must call the returned cancel func
// when done with the page.
func (p *Pool) Context(ctx context.Context) (context.Context, context.CancelFunc, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, fmt.Errorf("browser pool closed")
	}
	p.batchesSinceNew++
	p.mu.Unlock()

	taskCtx, cancel := chromedp.NewContext(p.allocCtx)
	if err := chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.EmulateViewport(p.viewportW, p.viewportH),
	); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("starting browser context: %w", err)
	}

	return chromedp.WithLogger(taskCtx, func(string, ...interface{}) {}), cancel, nil
}

// waitNetworkIdle returns a channel that closes once network request
// activity has been quiet for idleAfter, tolerating up to graceCount
// in-flight requests (Source.NetworkIdleGraceCount) before considering the
// page non-idle.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration, graceCount int) chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMu sync.Mutex
	var once sync.Once

	armTimer := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, func() {
			if int(atomic.LoadInt32(&activeReqs)) <= graceCount {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if int(atomic.AddInt32(&activeReqs, -1)) <= graceCount {
				armTimer()
			}
		}
	})

	// In case the page never issues a single request, still arm once.
	armTimer()
	return idleChan
}

// Goto navigates to url with a "dom content loaded" wait condition,
// waiting for network idle (minus graceCount) before returning.
func (p *Pool) Goto(ctx context.Context, url string, timeout time.Duration, graceCount int) error {
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	idleChan := waitNetworkIdle(ctx, 2*time.Second, graceCount)

	if err := chromedp.Run(taskCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}

	select {
	case <-idleChan:
	case <-taskCtx.Done():
		return fmt.Errorf("waiting for network idle on %s: %w", url, taskCtx.Err())
	}
	return nil
}

// AcceptCookies tries each configured XPath in order; if none are
// configured (or none match) it falls back to clicking the first visible
// element matching a curated accept-text selector list.
func (p *Pool) AcceptCookies(ctx context.Context, xpaths []string) error {
	for _, xp := range xpaths {
		var ok bool
		_ = chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(
			`(function(){var r=document.evaluate(%q,document,null,XPathResult.FIRST_ORDERED_NODE_TYPE,null).singleNodeValue; if(r){r.click(); return true;} return false;})()`,
			xp), &ok))
		if ok {
			return nil
		}
	}
	for _, sel := range genericAcceptSelectors {
		var ok bool
		_ = chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(
			`(function(){var e=Array.prototype.find.call(document.querySelectorAll(%q),function(x){return x.getClientRects().length>0;}); if(e){e.click(); return true;} return false;})()`,
			sel), &ok))
		if ok {
			return nil
		}
	}
	return nil
}

// ClosePopups iteratively closes up to maxPopupIterations stacked
// dismissible overlays by clicking visible close-controls.
func (p *Pool) ClosePopups(ctx context.Context) error {
	for i := 0; i < maxPopupIterations; i++ {
		closedAny := false
		for _, sel := range genericCloseSelectors {
			var ok bool
			_ = chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(
				`(function(){var e=Array.prototype.find.call(document.querySelectorAll(%q),function(x){return x.getClientRects().length>0;}); if(e){e.click(); return true;} return false;})()`,
				sel), &ok))
			closedAny = closedAny || ok
		}
		if !closedAny {
			break
		}
	}
	return nil
}

// AutoScroll scrolls to the bottom of the page until its height stabilizes
// or maxIters is reached.
func (p *Pool) AutoScroll(ctx context.Context, maxIters int) error {
	var lastHeight int64
	for i := 0; i < maxIters; i++ {
		var height int64
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`document.body.scrollHeight`, &height),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		); err != nil {
			return fmt.Errorf("autoscroll: %w", err)
		}
		time.Sleep(250 * time.Millisecond)
		if height == lastHeight {
			break
		}
		lastHeight = height
	}
	return nil
}

// PrepareForScreenshot injects the anti-flicker stylesheet, scrolls to
// top, pauses, and grows the viewport to the document's actual height if
// larger than the pool's default.
func (p *Pool) PrepareForScreenshot(ctx context.Context, sleep time.Duration) error {
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(fmt.Sprintf(`(function(){var s=document.createElement('style'); s.innerHTML=%q; document.head.appendChild(s);})()`, antiFlickerCSS), nil),
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
	); err != nil {
		return fmt.Errorf("prepare for screenshot: %w", err)
	}
	if sleep > 0 {
		time.Sleep(sleep)
	}

	var docHeight int64
	if err := chromedp.Run(ctx, chromedp.Evaluate(`document.documentElement.offsetHeight`, &docHeight)); err != nil {
		return fmt.Errorf("measure document height: %w", err)
	}
	if docHeight > p.viewportH {
		if err := chromedp.Run(ctx, chromedp.EmulateViewport(p.viewportW, docHeight)); err != nil {
			return fmt.Errorf("grow viewport: %w", err)
		}
	}
	return nil
}

// CaptureHTML returns the page's current outerHTML.
func (p *Pool) CaptureHTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("capture html: %w", err)
	}
	return html, nil
}

// Screenshot takes a full-page JPEG screenshot at the given quality
// (0-100).
func (p *Pool) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, quality)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// SetHeaders applies request headers via the Network domain, used to
// carry the renderer's Auth-Key header (§6).
func (p *Pool) SetHeaders(ctx context.Context, headers map[string][]string) error {
	if len(headers) == 0 {
		return nil
	}
	nh := network.Headers{}
	for k, vs := range headers {
		nh[k] = strings.Join(vs, ", ")
	}
	if err := chromedp.Run(ctx, network.SetExtraHTTPHeaders(nh)); err != nil {
		return fmt.Errorf("setting headers: %w", err)
	}
	return nil
}

// BatchesSinceRecycle reports how many Context() calls have happened since
// the pool was created; the pool never resets this count.
func (p *Pool) BatchesSinceRecycle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batchesSinceNew
}

// ShouldRecycle reports whether RecycleBatches has been reached.
func (p *Pool) ShouldRecycle() bool {
	if p.recycleBatches <= 0 {
		return false
	}
	return p.BatchesSinceRecycle() >= p.recycleBatches
}

var _ interfaces.WebClient = (*SimpleClient)(nil)

// SimpleClient adapts a Pool into the plain interfaces.WebClient contract
// (single GET, return the captured HTML) for callers that don't need the
// full capture sequence — e.g. a DNS-resolvability probe before committing
// a full fetch attempt.
type SimpleClient struct {
	Pool *Pool
}

func (c *SimpleClient) Do(ctx context.Context, req *model.Request) (*model.Response, error) {
	return c.Get(ctx, req.URL)
}

func (c *SimpleClient) Get(ctx context.Context, url string) (*model.Response, error) {
	taskCtx, cancel, err := c.Pool.Context(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := c.Pool.Goto(taskCtx, url, 30*time.Second, 0); err != nil {
		return nil, err
	}
	html, err := c.Pool.CaptureHTML(taskCtx)
	if err != nil {
		return nil, err
	}
	return &model.Response{
		Request:    &model.Request{Method: "GET", URL: url},
		Body:       []byte(html),
		StatusCode: 200,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *SimpleClient) Close() error { return c.Pool.Close() }
