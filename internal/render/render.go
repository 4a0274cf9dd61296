// Package render implements the diff renderer (C8): for each processed
// DiffHtml without a DiffContent yet, it drives the browser pool against
// this process's own authenticated internal diff-HTML endpoint to capture
// a full-page screenshot of each side, then persists a DiffContent row.
// A side with no content (a first-fetch DiffHtml has no old side) is
// skipped; a render that fails after retries still persists a degraded
// DiffContent (summary only, no images) rather than losing the change.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/moku-wst/internal/authtoken"
	"github.com/raysh454/moku-wst/internal/blobstore"
	"github.com/raysh454/moku-wst/internal/interfaces"
	"github.com/raysh454/moku-wst/internal/model"
)

// FieldOld and FieldNew are the two opaque per-field tokens the internal
// diff-HTML endpoint's URL carries (§6: "one of two opaque per-field
// tokens"), distinguishing which half of a DiffHtml row to serve.
const (
	FieldOld = "a7f3"
	FieldNew = "b2c9"
)

const (
	maxRenderRetries = 3
	gotoTimeout      = 60 * time.Second
	screenshotSleep  = 500 * time.Millisecond
	defaultRunBudget = 2 * time.Hour
)

// Browser is the subset of browser.Pool the renderer drives per side.
type Browser interface {
	Context(ctx context.Context) (context.Context, context.CancelFunc, error)
	SetHeaders(ctx context.Context, headers map[string][]string) error
	Goto(ctx context.Context, url string, timeout time.Duration, graceCount int) error
	PrepareForScreenshot(ctx context.Context, sleep time.Duration) error
	Screenshot(ctx context.Context, quality int) ([]byte, error)
}

// Renderer runs render-diffs.
type Renderer struct {
	Store     interfaces.Store
	Blobs     interfaces.BlobStore
	Browser   Browser
	Signer    *authtoken.Signer
	Logger    interfaces.Logger
	RunBudget time.Duration

	// InternalBaseURL is this process's own diff-HTML endpoint base, e.g.
	// "http://127.0.0.1:8080" — the renderer authenticates to itself over
	// loopback, never to the public internet.
	InternalBaseURL string
}

// Result summarizes one render-diffs run.
type Result struct {
	Selected int
	Rendered int
	Degraded int
	Failed   int
}

// Run renders up to batchSize processed DiffHtml rows without a
// DiffContent yet.
func (r *Renderer) Run(ctx context.Context, batchSize int) (Result, error) {
	budget := r.RunBudget
	if budget <= 0 {
		budget = defaultRunBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var res Result
	pending, err := r.Store.ProcessedDiffHtmlWithoutContent(ctx, batchSize)
	if err != nil {
		return res, fmt.Errorf("render: select pending diff_html: %w", err)
	}
	res.Selected = len(pending)

	for _, d := range pending {
		dc, degraded, err := r.renderOne(ctx, d)
		if err != nil {
			res.Failed++
			_ = r.Store.UpdateDiffHtmlStatus(ctx, d.ID, model.DiffHtmlFailed, err.Error())
			if r.Logger != nil {
				r.Logger.Error("render-diffs: render failed",
					interfaces.Field{Key: "diff_html_id", Value: d.ID},
					interfaces.Field{Key: "error", Value: err.Error()})
			}
			continue
		}
		if _, _, err := r.Store.CreateDiffContent(ctx, dc); err != nil {
			res.Failed++
			if r.Logger != nil {
				r.Logger.Error("render-diffs: create diff_content failed",
					interfaces.Field{Key: "diff_html_id", Value: d.ID},
					interfaces.Field{Key: "error", Value: err.Error()})
			}
			continue
		}
		if degraded {
			res.Degraded++
		} else {
			res.Rendered++
		}
	}
	return res, nil
}

// renderOne captures both sides of d (skipping a side that doesn't
// exist), falling back to a degraded record when capture fails but the
// change summary is non-empty.
func (r *Renderer) renderOne(ctx context.Context, d *model.DiffHtml) (*model.DiffContent, bool, error) {
	dc := &model.DiffContent{
		OldSnapshotID: d.OldSnapshotID,
		OldDiffHTML:   d.OldDiffHTML,
		NewSnapshotID: d.NewSnapshotID,
		NewDiffHTML:   d.NewDiffHTML,
		Status:        model.DiffContentPending,
		Added:         d.Added,
		Removed:       d.Removed,
	}

	var captureErr error
	if d.OldSnapshotID != nil {
		key, err := r.captureSide(ctx, d.ID, FieldOld)
		if err != nil {
			captureErr = err
		} else {
			dc.OldDiffImageKey = key
		}
	}
	if captureErr == nil {
		key, err := r.captureSide(ctx, d.ID, FieldNew)
		if err != nil {
			captureErr = err
		} else {
			dc.NewDiffImageKey = key
		}
	}

	if captureErr != nil {
		if d.Added.Empty() && d.Removed.Empty() {
			return nil, false, fmt.Errorf("render: capture failed with no summary to degrade to: %w", captureErr)
		}
		dc.OldDiffImageKey = ""
		dc.NewDiffImageKey = ""
		return dc, true, nil
	}
	return dc, false, nil
}

// captureSide retries the authenticated Goto+screenshot sequence up to
// maxRenderRetries times before giving up.
func (r *Renderer) captureSide(ctx context.Context, diffHtmlID int64, field string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxRenderRetries; attempt++ {
		key, err := r.captureSideOnce(ctx, diffHtmlID, field)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (r *Renderer) captureSideOnce(ctx context.Context, diffHtmlID int64, field string) (string, error) {
	taskCtx, cancel, err := r.Browser.Context(ctx)
	if err != nil {
		return "", fmt.Errorf("render: browser context: %w", err)
	}
	defer cancel()

	encID, err := r.Signer.EncryptID(diffHtmlID)
	if err != nil {
		return "", fmt.Errorf("render: encrypt id: %w", err)
	}
	token, err := r.Signer.MintDeadlineToken(time.Now(), authtoken.DefaultValidity)
	if err != nil {
		return "", fmt.Errorf("render: mint token: %w", err)
	}

	if err := r.Browser.SetHeaders(taskCtx, map[string][]string{"WST-Auth-Key": {token}}); err != nil {
		return "", fmt.Errorf("render: set auth header: %w", err)
	}

	url := fmt.Sprintf("%s/internal/diff-html/%s/%s/", r.InternalBaseURL, encID, field)
	if err := r.Browser.Goto(taskCtx, url, gotoTimeout, 1); err != nil {
		return "", fmt.Errorf("render: goto %s: %w", url, err)
	}
	if err := r.Browser.PrepareForScreenshot(taskCtx, screenshotSleep); err != nil {
		return "", fmt.Errorf("render: prepare screenshot: %w", err)
	}
	shot, err := r.Browser.Screenshot(taskCtx, 90)
	if err != nil {
		return "", fmt.Errorf("render: screenshot: %w", err)
	}

	side := "new"
	if field == FieldOld {
		side = "old"
	}
	// A uuid, not a capture timestamp, keys each capture: a retried
	// attempt within the same second must never collide with the one
	// it's replacing. diffHtmlID stands in for diff_content_id here since
	// no DiffContent row exists yet at capture time (see DESIGN.md).
	key := blobstore.DiffSideImageKey(side, diffHtmlID, uuid.New().String())
	if err := r.Blobs.Put(key, shot, "image/jpeg", "public, max-age=2592000"); err != nil {
		return "", fmt.Errorf("render: put diff image: %w", err)
	}
	return key, nil
}
