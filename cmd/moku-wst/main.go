// Command moku-wst dispatches the five pipeline jobs (fetch,
// process-snapshots, render-diffs, index-web-updates, archive) plus an
// admin `serve` mode exposing the diff-render and change-log HTTP surface,
// wiring the storage, blob, browser, and auth components from environment
// configuration.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/moku-wst/internal/archive"
	"github.com/raysh454/moku-wst/internal/authtoken"
	"github.com/raysh454/moku-wst/internal/blobstore"
	"github.com/raysh454/moku-wst/internal/browser"
	"github.com/raysh454/moku-wst/internal/cli"
	"github.com/raysh454/moku-wst/internal/config"
	"github.com/raysh454/moku-wst/internal/diffhtml/treediff"
	"github.com/raysh454/moku-wst/internal/fetch"
	"github.com/raysh454/moku-wst/internal/interfaces"
	"github.com/raysh454/moku-wst/internal/lease"
	"github.com/raysh454/moku-wst/internal/logging"
	"github.com/raysh454/moku-wst/internal/model"
	"github.com/raysh454/moku-wst/internal/notify"
	"github.com/raysh454/moku-wst/internal/pipeline"
	"github.com/raysh454/moku-wst/internal/render"
	"github.com/raysh454/moku-wst/internal/store"
	"github.com/raysh454/moku-wst/internal/webapi"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: moku-wst <fetch|process-snapshots|render-diffs|index-web-updates|archive|serve> [flags]")
	}
	job := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.NewStdoutLogger(job)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	switch job {
	case "fetch":
		runErr = runFetch(ctx, cfg, logger, args)
	case "process-snapshots":
		runErr = runProcessSnapshots(ctx, cfg, logger, args)
	case "render-diffs":
		runErr = runRenderDiffs(ctx, cfg, logger, args)
	case "index-web-updates":
		runErr = runIndexWebUpdates(ctx, cfg, logger, args)
	case "archive":
		runErr = runArchive(ctx, cfg, logger, args)
	case "serve":
		runErr = runServe(ctx, cfg, logger, args)
	default:
		log.Fatalf("unknown job %q", job)
	}
	if runErr != nil {
		log.Fatalf("%s: %v", job, runErr)
	}
}

// openStore, openBlobs, openBrowser, and openSigner are shared by every
// job: each CLI invocation is its own OS process (§5), so there is no
// cross-job connection pooling to manage beyond a single run's lifetime.

func openStore(ctx context.Context, cfg *config.Config, logger interfaces.Logger) (*store.Store, error) {
	return store.Open(ctx, cfg.DBPath, logger)
}

func openBlobs(cfg *config.Config, logger interfaces.Logger) (*blobstore.FSStore, error) {
	return blobstore.NewFSStore(cfg.BlobRoot, logger)
}

func openBrowser(cfg *config.Config, logger interfaces.Logger) (*browser.Pool, error) {
	return browser.NewPool(cfg.Browser, logger)
}

func openSigner(cfg *config.Config) (*authtoken.Signer, error) {
	return authtoken.NewSigner(cfg.AuthTokenKey)
}

// acquireLease takes the advisory lease for (job, frequency, shard); a
// false ok is not an error, it means another process already holds the
// tick and this run should exit quietly (§9).
func acquireLease(cfg *config.Config, job, frequency string, shard int) (*lease.Lease, bool, error) {
	l, err := lease.New(cfg.LeaseDir, lease.KeyFor(job, frequency, shard))
	if err != nil {
		return nil, false, err
	}
	ok, err := l.TryAcquire()
	if err != nil {
		return nil, false, err
	}
	return l, ok, nil
}

func runFetch(ctx context.Context, cfg *config.Config, logger interfaces.Logger, args []string) error {
	parsed, err := cli.ParseFetchArgs(args)
	if err != nil {
		return err
	}

	l, ok, err := acquireLease(cfg, "fetch", parsed.Frequency, parsed.Shard)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("fetch: lease held by another process, skipping tick")
		return nil
	}
	defer l.Release()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	blobs, err := openBlobs(cfg, logger)
	if err != nil {
		return err
	}
	br, err := openBrowser(cfg, logger)
	if err != nil {
		return err
	}
	defer br.Close()

	sched := &fetch.Scheduler{
		Store:     st,
		Blobs:     blobs,
		Browser:   br,
		Notifier:  &notify.LogNotifier{Logger: logger},
		Logger:    logger,
		RunBudget: cfg.FetchRunBudget,
	}
	report, err := sched.Run(ctx, fetch.Options{
		Frequency:      model.Frequency(parsed.Frequency),
		Shard:          parsed.Shard,
		MaxShards:      parsed.MaxShards,
		BatchSize:      parsed.BatchSize,
		IDs:            parsed.IDs,
		URLs:           parsed.URLs,
		IncludeClients: parsed.IncludeClients,
		ExcludeClients: parsed.ExcludeClients,
	})
	if err != nil {
		return err
	}
	logger.Info("fetch: run complete",
		interfaces.Field{Key: "selected", Value: report.SourcesSelected},
		interfaces.Field{Key: "captured", Value: report.Captured},
		interfaces.Field{Key: "no_change", Value: report.NoChange},
		interfaces.Field{Key: "broken", Value: report.Broken})
	webapi.Publish(webapi.JobEvent{Job: "fetch", Message: "run complete"})
	return nil
}

func runProcessSnapshots(ctx context.Context, cfg *config.Config, logger interfaces.Logger, args []string) error {
	parsed, err := cli.ParseProcessSnapshotsArgs(args)
	if err != nil {
		return err
	}

	l, ok, err := acquireLease(cfg, "process-snapshots", "", parsed.Shard)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("process-snapshots: lease held by another process, skipping tick")
		return nil
	}
	defer l.Release()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	blobs, err := openBlobs(cfg, logger)
	if err != nil {
		return err
	}

	m := &pipeline.Matcher{
		Store:        st,
		Blobs:        blobs,
		Logger:       logger,
		MatchTimeout: cfg.MatchTimeout,
		RunBudget:    cfg.MatchRunBudget,
		MatchOpts: treediff.Options{
			F:         parsed.Threshold,
			FastMatch: true,
			RatioMode: parsed.RatioMode,
		},
	}
	res, err := m.Run(ctx, pipeline.MatchOptions{BatchSize: parsed.BatchSize, SourceIDs: parsed.SourceIDs})
	if err != nil {
		return err
	}
	logger.Info("process-snapshots: run complete",
		interfaces.Field{Key: "selected", Value: res.Selected},
		interfaces.Field{Key: "matched", Value: res.Matched},
		interfaces.Field{Key: "timeouts", Value: res.Timeouts},
		interfaces.Field{Key: "failed", Value: res.Failed})
	webapi.Publish(webapi.JobEvent{Job: "process-snapshots", Message: "run complete"})
	return nil
}

func runRenderDiffs(ctx context.Context, cfg *config.Config, logger interfaces.Logger, args []string) error {
	parsed, err := cli.ParseRenderDiffsArgs(args)
	if err != nil {
		return err
	}

	l, ok, err := acquireLease(cfg, "render-diffs", "", parsed.Shard)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("render-diffs: lease held by another process, skipping tick")
		return nil
	}
	defer l.Release()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	blobs, err := openBlobs(cfg, logger)
	if err != nil {
		return err
	}
	br, err := openBrowser(cfg, logger)
	if err != nil {
		return err
	}
	defer br.Close()
	signer, err := openSigner(cfg)
	if err != nil {
		return err
	}

	budget := time.Duration(parsed.DurationHours) * time.Hour
	if budget <= 0 {
		budget = cfg.RenderRunBudget
	}

	r := &render.Renderer{
		Store:           st,
		Blobs:           blobs,
		Browser:         br,
		Signer:          signer,
		Logger:          logger,
		RunBudget:       budget,
		InternalBaseURL: cfg.InternalBaseURL,
	}
	res, err := r.Run(ctx, parsed.BatchSize)
	if err != nil {
		return err
	}
	logger.Info("render-diffs: run complete",
		interfaces.Field{Key: "selected", Value: res.Selected},
		interfaces.Field{Key: "rendered", Value: res.Rendered},
		interfaces.Field{Key: "degraded", Value: res.Degraded},
		interfaces.Field{Key: "failed", Value: res.Failed})
	return nil
}

func runIndexWebUpdates(ctx context.Context, cfg *config.Config, logger interfaces.Logger, args []string) error {
	parsed, err := cli.ParseIndexWebUpdatesArgs(args)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	switch {
	case parsed.Start != nil:
		start = *parsed.Start
		if parsed.End != nil {
			end = *parsed.End
		}
	case parsed.Days > 0:
		start = end.AddDate(0, 0, -parsed.Days)
	case parsed.Minutes > 0:
		start = end.Add(-time.Duration(parsed.Minutes) * time.Minute)
	}

	ix := &pipeline.Indexer{Store: st, Logger: logger}
	res, err := ix.Run(ctx, pipeline.IndexOptions{Start: start, End: end, Clients: parsed.Clients})
	if err != nil {
		return err
	}
	logger.Info("index-web-updates: run complete",
		interfaces.Field{Key: "candidates", Value: res.Candidates},
		interfaces.Field{Key: "created", Value: res.Created},
		interfaces.Field{Key: "skipped", Value: res.Skipped})
	return nil
}

func runArchive(ctx context.Context, cfg *config.Config, logger interfaces.Logger, args []string) error {
	parsed, err := cli.ParseArchiveArgs(args)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	blobs, err := openBlobs(cfg, logger)
	if err != nil {
		return err
	}

	svc := &archive.Service{Store: st, Blobs: blobs, Logger: logger}
	res, err := svc.Run(ctx, archive.Options{
		DurationMonths: parsed.Duration,
		MaxItems:       parsed.Max,
		DryRun:         !parsed.Delete,
	})
	if err != nil {
		return err
	}
	logger.Info("archive: run complete",
		interfaces.Field{Key: "candidates", Value: res.Candidates},
		interfaces.Field{Key: "archived", Value: res.Archived},
		interfaces.Field{Key: "errors", Value: res.Errors})
	return nil
}

// runServe starts the admin HTTP surface (the internal diff-render
// endpoint and the public change-log page) and blocks until ctx is
// canceled, then drains in-flight requests with a bounded grace period —
// the teacher's main.go graceful-shutdown pattern, generalized from a
// fixed host/port pair to config-driven listen address.
func runServe(ctx context.Context, cfg *config.Config, logger interfaces.Logger, args []string) error {
	host := cfg.ListenAddr
	if len(args) >= 1 && args[0] != "" {
		host = args[0]
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	signer, err := openSigner(cfg)
	if err != nil {
		return err
	}

	srv := webapi.New(st, signer, logger)
	httpServer := srv.HTTPServer(host)

	idleConnsClosed := make(chan struct{})
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("serve: shutdown error", interfaces.Field{Key: "error", Value: err.Error()})
		}
		close(idleConnsClosed)
	}()

	logger.Info("serve: listening", interfaces.Field{Key: "addr", Value: host})
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	<-idleConnsClosed
	return nil
}
