package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tally/internal/collector"
	"tally/internal/config"
	"tally/internal/linker"
	"tally/internal/logging"
	"tally/internal/services"
)

// ErrRunInProgress reports that another run holds the lock.
var ErrRunInProgress = errors.New("another tally run is in progress")

// NewRunID returns a fresh identifier for one invocation's log lines.
func NewRunID() string {
	return uuid.NewString()
}

// RunLock is a held run lock.
type RunLock struct {
	lock *flock.Flock
}

// AcquireRunLock takes the lock at path without blocking.
func AcquireRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return &RunLock{lock: lock}, nil
}

// Release drops the lock.
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// RunOptions selects the optional stages of a full run.
type RunOptions struct {
	// CreateTransactions synthesizes ledger rows for receipts with no match.
	CreateTransactions bool
}

// RunSummary aggregates the stage summaries of one run.
type RunSummary struct {
	RunID    string
	Collect  collector.Summary
	Parse    Summary
	Link     linker.Summary
	Duration time.Duration
}

// Runner sequences collect, parse and link.
type Runner struct {
	cfg       *config.Config
	collector *collector.Collector
	processor *Processor
	linker    *linker.Linker
	logger    *slog.Logger
}

// NewRunner wires a full run.
func NewRunner(cfg *config.Config, c *collector.Collector, p *Processor, l *linker.Linker, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		collector: c,
		processor: p,
		linker:    l,
		logger:    logging.NewComponentLogger(logger, "run"),
	}
}

// Collect fetches every configured source. A source whose listing fails is
// logged and the others still run; the first such error is returned.
func (r *Runner) Collect(ctx context.Context) (collector.Summary, error) {
	var total collector.Summary
	var firstErr error
	for _, profile := range r.cfg.Sources {
		summary, err := r.collector.Collect(ctx, profile)
		total.Add(summary)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "source collection failed", "collect_failed",
				logging.String("label", profile.Label),
				logging.String(logging.FieldVendor, profile.Vendor),
				logging.String(logging.FieldErrorHint, "check gmail credentials with tally doctor"),
				logging.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("collect %s: %w", profile.Label, err)
			}
		}
	}
	return total, firstErr
}

// Run takes the run lock and executes every stage in order. A failed
// collection does not stop parsing of documents already stored.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	lock, err := AcquireRunLock(r.cfg.LockPath())
	if err != nil {
		return RunSummary{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.logger.Warn("release run lock failed",
				logging.String(logging.FieldEventType, "lock_release_failed"),
				logging.String(logging.FieldErrorHint, "remove "+r.cfg.LockPath()+" if no run is active"),
				logging.Error(err),
			)
		}
	}()

	summary := RunSummary{RunID: NewRunID()}
	if existing, ok := services.RunIDFromContext(ctx); ok {
		summary.RunID = existing
	}
	ctx = services.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, r.logger)
	started := time.Now()
	logger.Info("run started", logging.String(logging.FieldEventType, "run_start"))

	collected, collectErr := r.Collect(ctx)
	summary.Collect = collected
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}

	parsed, err := r.processor.ProcessPending(ctx)
	summary.Parse = parsed
	if err != nil {
		return summary, fmt.Errorf("parse: %w", err)
	}

	var linked linker.Summary
	if opts.CreateTransactions {
		linked, err = r.linker.CreateForUnlinked(ctx)
	} else {
		linked, err = r.linker.LinkUnlinked(ctx)
	}
	summary.Link = linked
	if err != nil {
		return summary, fmt.Errorf("link: %w", err)
	}

	summary.Duration = time.Since(started)
	logger.Info("run complete",
		logging.Int("documents_saved", collected.DocumentsSaved),
		logging.Int("parsed", parsed.Considered),
		logging.Int("success", parsed.Succeeded),
		logging.Int("needs_review", parsed.NeedsReview),
		logging.Int("linked", linked.Matched+linked.Created+linked.Reused),
		logging.Duration("duration", summary.Duration),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	return summary, collectErr
}
