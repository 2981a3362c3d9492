// Package reconcile decides, per target, whether a corpus archive has to
// be fetched and how the result replaces the local copy.
//
// Two policies exist and exactly one is used per run:
//
//   - PolicyHash always downloads the archive into memory and compares its
//     SHA-256 with the stored copy, rewriting only when they differ. With
//     SkipCheck an existing copy is kept without downloading anything,
//     which is faster but never notices a changed remote corpus.
//   - PolicyExists streams the archive straight into the store, replacing
//     whatever is there. With SkipExisting an existing copy is kept.
//
// A failed transfer never touches the stored copy.
package reconcile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"go.uber.org/zap"

	crawlerhttp "github.com/VoodooChild99/oss-fuzz-crawler/internal/http"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/layout"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/store"
)

// Policy selects how staleness is detected.
type Policy string

const (
	PolicyHash   Policy = "hash"
	PolicyExists Policy = "exists"
)

// ParsePolicy parses a policy name. The empty string selects PolicyHash.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyHash:
		return PolicyHash, nil
	case PolicyExists:
		return PolicyExists, nil
	default:
		return "", fmt.Errorf("reconcile: unknown policy %q (want %q or %q)", s, PolicyHash, PolicyExists)
	}
}

// Outcome is the result of reconciling one target.
type Outcome int

const (
	Failed Outcome = iota
	Downloaded
	Updated
	SkippedExisting
	SkippedUnchanged
)

func (o Outcome) String() string {
	switch o {
	case Downloaded:
		return "downloaded"
	case Updated:
		return "updated"
	case SkippedExisting:
		return "skipped_existing"
	case SkippedUnchanged:
		return "skipped_unchanged"
	default:
		return "failed"
	}
}

// Fetcher retrieves remote archives.
type Fetcher interface {
	Fetch(ctx context.Context, url, label string) ([]byte, error)
	FetchTo(ctx context.Context, url, label string, dst crawlerhttp.Destination) (int64, error)
}

// Options configures a Reconciler.
type Options struct {
	Policy Policy

	// SkipCheck keeps an existing archive without downloading it.
	// PolicyHash only.
	SkipCheck bool

	// SkipExisting keeps an existing archive without downloading it.
	// PolicyExists only.
	SkipExisting bool
}

// Reconciler brings one stored archive in line with the remote copy.
type Reconciler struct {
	fetcher Fetcher
	store   *store.Store
	layout  layout.Layout
	opts    Options
	logger  *zap.Logger
}

// New creates a Reconciler. A nil logger discards log output.
func New(fetcher Fetcher, st *store.Store, l layout.Layout, opts Options, logger *zap.Logger) *Reconciler {
	if opts.Policy == "" {
		opts.Policy = PolicyHash
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		fetcher: fetcher,
		store:   st,
		layout:  l,
		opts:    opts,
		logger:  logger,
	}
}

// Reconcile processes one target. A non-nil error always comes with
// Failed; if ctx was cancelled the error is the context's.
func (r *Reconciler) Reconcile(ctx context.Context, project, target string) (Outcome, error) {
	key := r.layout.Key(project, target)
	url := r.layout.URL(project, target)
	label := r.layout.Label(project, target)

	var (
		outcome Outcome
		err     error
	)
	switch r.opts.Policy {
	case PolicyExists:
		outcome, err = r.reconcileExists(ctx, key, url, label)
	default:
		outcome, err = r.reconcileHash(ctx, key, url, label)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		outcome = Failed
	}

	r.report(project, label, key, outcome, err)
	return outcome, err
}

func (r *Reconciler) reconcileHash(ctx context.Context, key, url, label string) (Outcome, error) {
	if r.opts.SkipCheck {
		exists, err := r.store.Exists(ctx, key)
		if err != nil {
			return Failed, err
		}
		if exists {
			return SkippedExisting, nil
		}
	}

	data, err := r.fetcher.Fetch(ctx, url, label)
	if err != nil {
		return Failed, err
	}

	outcome := Updated
	old, err := r.store.Digest(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotExist):
		outcome = Downloaded
	case err != nil:
		return Failed, err
	default:
		sum := sha256.Sum256(data)
		if bytes.Equal(old, sum[:]) {
			return SkippedUnchanged, nil
		}
	}

	if err := r.store.Write(ctx, key, data); err != nil {
		return Failed, err
	}
	return outcome, nil
}

func (r *Reconciler) reconcileExists(ctx context.Context, key, url, label string) (Outcome, error) {
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return Failed, err
	}
	if exists && r.opts.SkipExisting {
		return SkippedExisting, nil
	}

	if _, err := r.fetcher.FetchTo(ctx, url, label, r.store.Object(key)); err != nil {
		return Failed, err
	}

	if exists {
		return Updated, nil
	}
	return Downloaded, nil
}

func (r *Reconciler) report(project, label, key string, outcome Outcome, err error) {
	log := r.logger.With(zap.String("project", project), zap.String("target", label))

	switch outcome {
	case Downloaded:
		log.Info("downloaded corpus", zap.String("key", key))
	case Updated:
		log.Info("updated corpus", zap.String("key", key))
	case SkippedExisting:
		log.Info("skipping corpus: already exists", zap.String("key", key))
	case SkippedUnchanged:
		log.Info("skipping corpus: unchanged", zap.String("key", key))
	default:
		var (
			se *crawlerhttp.StatusError
			te *crawlerhttp.TransportError
		)
		switch {
		case errors.Is(err, context.Canceled):
			log.Warn("download interrupted")
		case errors.As(err, &se):
			log.Error("failed to download corpus",
				zap.Int("status", se.StatusCode),
				zap.ByteString("body", se.Body))
		case errors.As(err, &te):
			log.Error("max retries exceeded when downloading corpus",
				zap.Int("attempts", te.Attempts),
				zap.Error(te.Err))
		default:
			log.Error("failed to reconcile corpus", zap.Error(err))
		}
	}
}
