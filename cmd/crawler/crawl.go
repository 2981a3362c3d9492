package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/VoodooChild99/oss-fuzz-crawler/internal/downloader"
	crawlerhttp "github.com/VoodooChild99/oss-fuzz-crawler/internal/http"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/layout"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/manifest"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/progress"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/reconcile"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/store"
)

// crawl mirrors every target of the configured manifest. Per-target
// failures are reported but do not fail the run.
func (a *app) crawl(ctx context.Context) error {
	cfg := a.cfg

	// Values were checked by Validate.
	policy, _ := reconcile.ParsePolicy(cfg.Policy)
	scheme, _ := layout.ParseScheme(cfg.Scheme)
	mode, _ := progress.ParseMode(cfg.Progress)

	m, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.Directory)
	if err != nil {
		return &storageError{err}
	}
	defer st.Close()

	httpOpts := crawlerhttp.DefaultOptions()
	httpOpts.Timeout = cfg.Timeout
	httpOpts.RetryAttempts = cfg.Retry.Attempts()
	httpOpts.RetryBackoff = cfg.Retry.Backoff
	httpOpts.RetryMaxBackoff = cfg.Retry.MaxBackoff
	httpOpts.ChunkSize = cfg.ChunkSize
	httpOpts.RateLimit = cfg.RateLimit
	httpOpts.Progress = progress.New(mode, a.stderr)
	httpOpts.Logger = a.logger
	client := crawlerhttp.NewClient(httpOpts)
	defer client.Close()

	l := layout.Layout{
		BaseURL:      cfg.BaseURL,
		BucketSuffix: cfg.BucketSuffix,
		Scheme:       scheme,
	}
	rec := reconcile.New(client, st, l, reconcile.Options{
		Policy:       policy,
		SkipCheck:    cfg.SkipCheck,
		SkipExisting: cfg.SkipExisting,
	}, a.logger)

	runner := downloader.New(rec, st, downloader.Options{
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}, a.logger)

	a.logger.Debug("resolved configuration",
		zap.String("directory", cfg.Directory),
		zap.String("policy", string(policy)),
		zap.String("scheme", string(scheme)),
		zap.Int("max_retries", httpOpts.RetryAttempts),
		zap.Int64("rate_limit", cfg.RateLimit))

	fmt.Fprintf(a.stderr, "[crawler] Mirroring %d targets from %d projects into %s\n",
		m.TargetCount(), len(m.Projects), cfg.Directory)

	summary, err := runner.Run(ctx, m)
	if errors.Is(err, context.Canceled) {
		return err
	}
	printSummary(a.stderr, summary)
	return err
}

func printSummary(w io.Writer, s *downloader.Summary) {
	fmt.Fprintf(w, "[crawler] Done: %d downloaded, %d updated, %d unchanged, %d kept, %d failed\n",
		s.Downloaded, s.Updated, s.SkippedUnchanged, s.SkippedExisting, len(s.Failed))
	for _, f := range s.Failed {
		fmt.Fprintf(w, "[crawler]   %s/%s: %v\n", f.Project, f.Target, f.Err)
	}
}
