package downloader

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/VoodooChild99/oss-fuzz-crawler/internal/manifest"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/reconcile"
)

// Reconciler brings a single target up to date.
type Reconciler interface {
	Reconcile(ctx context.Context, project, target string) (reconcile.Outcome, error)
}

// DirMaker prepares the per-project location of artifacts.
type DirMaker interface {
	EnsureDir(project string) error
}

// Options configures the runner.
type Options struct {
	// MaxConsecutiveFailures is the number of targets in a row that may
	// fail before the run is abandoned. Set to 0 to disable (default).
	MaxConsecutiveFailures int
}

// FailedTarget records a target that could not be mirrored.
type FailedTarget struct {
	Project string
	Target  string
	Err     error
}

// Summary counts the outcomes of a run.
type Summary struct {
	Downloaded       int
	Updated          int
	SkippedExisting  int
	SkippedUnchanged int
	Failed           []FailedTarget
}

// Total returns the number of targets processed.
func (s *Summary) Total() int {
	return s.Downloaded + s.Updated + s.SkippedExisting + s.SkippedUnchanged + len(s.Failed)
}

func (s *Summary) add(project, target string, outcome reconcile.Outcome, err error) {
	switch outcome {
	case reconcile.Downloaded:
		s.Downloaded++
	case reconcile.Updated:
		s.Updated++
	case reconcile.SkippedExisting:
		s.SkippedExisting++
	case reconcile.SkippedUnchanged:
		s.SkippedUnchanged++
	default:
		s.Failed = append(s.Failed, FailedTarget{Project: project, Target: target, Err: err})
	}
}

// DirError is returned when a project directory cannot be prepared.
type DirError struct {
	Project string
	Err     error
}

func (e *DirError) Error() string {
	return fmt.Sprintf("prepare project %s: %v", e.Project, e.Err)
}

func (e *DirError) Unwrap() error { return e.Err }

// ConsecutiveFailuresError is returned when too many targets in a row
// failed. Use errors.As to extract it and inspect Failed for details.
type ConsecutiveFailuresError struct {
	ConsecutiveFailures int
	Failed              []FailedTarget
}

func (e *ConsecutiveFailuresError) Error() string {
	return fmt.Sprintf("giving up: %d consecutive targets failed", e.ConsecutiveFailures)
}

// Runner mirrors every target of a manifest.
type Runner struct {
	reconciler Reconciler
	dirs       DirMaker
	opts       Options
	logger     *zap.Logger
}

// New creates a Runner. A nil logger discards log output.
func New(reconciler Reconciler, dirs DirMaker, opts Options, logger *zap.Logger) *Runner {
	if opts.MaxConsecutiveFailures < 0 {
		opts.MaxConsecutiveFailures = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		reconciler: reconciler,
		dirs:       dirs,
		opts:       opts,
		logger:     logger,
	}
}

// Run processes m in order. The returned Summary is never nil, even when
// the run stops early.
func (r *Runner) Run(ctx context.Context, m *manifest.Manifest) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	r.logger.Info("starting crawl",
		zap.Int("projects", len(m.Projects)),
		zap.Int("targets", m.TargetCount()))

	consecutive := 0
	var streak []FailedTarget

	for _, p := range m.Projects {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if err := r.dirs.EnsureDir(p.Name); err != nil {
			r.logger.Error("failed to prepare project directory",
				zap.String("project", p.Name), zap.Error(err))
			return summary, &DirError{Project: p.Name, Err: err}
		}

		for _, target := range p.Targets {
			if err := ctx.Err(); err != nil {
				return summary, err
			}

			outcome, err := r.reconciler.Reconcile(ctx, p.Name, target)
			if err != nil && ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.add(p.Name, target, outcome, err)

			if outcome != reconcile.Failed {
				consecutive = 0
				streak = streak[:0]
				continue
			}

			consecutive++
			streak = append(streak, FailedTarget{Project: p.Name, Target: target, Err: err})
			if r.opts.MaxConsecutiveFailures > 0 && consecutive >= r.opts.MaxConsecutiveFailures {
				r.logger.Error("too many consecutive failures, stopping",
					zap.Int("failures", consecutive))
				return summary, &ConsecutiveFailuresError{
					ConsecutiveFailures: consecutive,
					Failed:              append([]FailedTarget(nil), streak...),
				}
			}
		}
	}

	r.logger.Info("crawl finished",
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped_existing", summary.SkippedExisting),
		zap.Int("skipped_unchanged", summary.SkippedUnchanged),
		zap.Int("failed", len(summary.Failed)),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))

	return summary, nil
}
