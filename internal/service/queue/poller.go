package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

type PollerOptions struct {
	WorkerName        string
	BatchSize         int
	BackfillLimit     int
	StuckTimeout      time.Duration
	DefaultLeadWindow time.Duration
}

func DefaultPollerOptions() PollerOptions {
	return PollerOptions{
		WorkerName:        "publish-queue",
		BatchSize:         20,
		BackfillLimit:     100,
		StuckTimeout:      15 * time.Minute,
		DefaultLeadWindow: 5 * time.Minute,
	}
}

// RunOptions are the per-invocation trigger parameters.
type RunOptions struct {
	LeadWindow time.Duration
	Source     string
}

// Poller runs one pass of the publish queue per invocation. It holds no state
// between passes, so any number of instances may run side by side.
type Poller struct {
	store     Store
	recovery  *Recovery
	lifecycle *Lifecycle
	opts      PollerOptions
	logger    *zap.Logger
	now       func() time.Time
}

func NewPoller(store Store, lifecycle *Lifecycle, opts PollerOptions, logger *zap.Logger) *Poller {
	defaults := DefaultPollerOptions()
	if opts.WorkerName == "" {
		opts.WorkerName = defaults.WorkerName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.BackfillLimit <= 0 {
		opts.BackfillLimit = defaults.BackfillLimit
	}
	if opts.StuckTimeout <= 0 {
		opts.StuckTimeout = defaults.StuckTimeout
	}
	if opts.DefaultLeadWindow <= 0 {
		opts.DefaultLeadWindow = defaults.DefaultLeadWindow
	}

	return &Poller{
		store:     store,
		recovery:  NewRecovery(store, logger),
		lifecycle: lifecycle,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *Poller) WithClock(now func() time.Time) *Poller {
	p.now = now
	return p
}

// Run records a heartbeat, recovers stuck jobs, backfills missing jobs and
// then processes due jobs one at a time. It returns the number of jobs this
// invocation claimed.
func (p *Poller) Run(ctx context.Context, opts RunOptions) (int, error) {
	lead := opts.LeadWindow
	if lead <= 0 {
		lead = p.opts.DefaultLeadWindow
	}
	source := opts.Source
	if source == "" {
		source = "manual"
	}

	now := p.now()
	logger := p.logger.With(zap.String("worker", p.opts.WorkerName), zap.String("source", source))

	if err := p.store.RecordHeartbeat(ctx, p.opts.WorkerName, source, now); err != nil {
		p.report(logger, fmt.Errorf("failed to record heartbeat: %w", err))
	}

	if _, err := p.recovery.RecoverStuck(ctx, now, p.opts.StuckTimeout); err != nil {
		p.report(logger, err)
	}

	dueBy := now.Add(lead)
	if created, err := p.recovery.Backfill(ctx, dueBy, p.opts.BackfillLimit); err != nil {
		p.report(logger, err)
	} else if created > 0 {
		logger.Info("Backfill created jobs", zap.Int("count", created))
	}

	jobs, err := p.store.DueJobs(ctx, dueBy, p.opts.BatchSize)
	if err != nil {
		err = fmt.Errorf("failed to load due jobs: %w", err)
		p.report(logger, err)
		return 0, err
	}

	processed := 0
	outcomes := make(map[Outcome]int)
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			logger.Warn("Publish queue pass interrupted", zap.Error(err))
			break
		}

		outcome, err := p.lifecycle.Process(ctx, job.ID)
		if err != nil {
			logger.Error("Failed to process job", zap.String("job_id", job.ID), zap.Error(err))
		}
		if outcome == OutcomeSkipped {
			continue
		}
		processed++
		outcomes[outcome]++
	}

	logger.Info("Publish queue pass finished",
		zap.Int("due", len(jobs)),
		zap.Int("processed", processed),
		zap.Int("succeeded", outcomes[OutcomeSucceeded]),
		zap.Int("retried", outcomes[OutcomeRetried]),
		zap.Int("failed", outcomes[OutcomeFailed]),
		zap.Duration("lead_window", lead))

	return processed, nil
}

func (p *Poller) report(logger *zap.Logger, err error) {
	logger.Error("Publish queue pass error", zap.Error(err))
	sentry.CaptureException(err)
}
