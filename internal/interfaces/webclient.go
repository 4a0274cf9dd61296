package interfaces

import (
	"context"

	"github.com/raysh454/moku-wst/internal/model"
)

// WebClient performs a single request/response exchange against a URL. The
// chromedp-backed browser pool (internal/browser) and a plain net/http
// client both implement it; the renderer and a plain HEAD/GET probe can
// share callers that only need this much.
type WebClient interface {
	Do(ctx context.Context, req *model.Request) (*model.Response, error)
	Get(ctx context.Context, url string) (*model.Response, error)
	Close() error
}
