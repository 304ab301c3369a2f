package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/models"
	"github.com/ifuryst/herald/internal/service/alert"
	"github.com/ifuryst/herald/internal/service/media"
	"github.com/ifuryst/herald/internal/service/notify"
	"github.com/ifuryst/herald/internal/service/publisher"
)

// Outcome is what a single Process call did with a job.
type Outcome int

const (
	// OutcomeSkipped means another invocation holds the job.
	OutcomeSkipped Outcome = iota
	OutcomeSucceeded
	OutcomeRetried
	OutcomeFailed
	// OutcomeAbandoned means a datastore read failed after locking. The job
	// stays in_progress until stuck-job recovery requeues it.
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRetried:
		return "retried"
	case OutcomeFailed:
		return "failed"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "skipped"
	}
}

// Publishers looks up the publisher for a platform.
type Publishers interface {
	Get(platform string) (publisher.Publisher, error)
}

// MediaResolver turns media ids into platform-fetchable URLs.
type MediaResolver interface {
	Resolve(ctx context.Context, mediaIDs []string, placement models.Placement) ([]publisher.Media, error)
}

type LifecycleOptions struct {
	StoryGrace        time.Duration
	MaxVariantRetries int
	ShortRetryDelay   time.Duration
	MaxAttempts       int
	Backoff           Backoff
}

func DefaultLifecycleOptions() LifecycleOptions {
	return LifecycleOptions{
		StoryGrace:        5 * time.Minute,
		MaxVariantRetries: 3,
		ShortRetryDelay:   30 * time.Second,
		MaxAttempts:       3,
		Backoff:           DefaultBackoff,
	}
}

// Lifecycle owns the publish job state machine:
// queued -> in_progress -> succeeded | queued (retry) | failed.
type Lifecycle struct {
	store      Store
	publishers Publishers
	media      MediaResolver
	notifier   *notify.Notifier
	alerter    alert.Alerter
	opts       LifecycleOptions
	logger     *zap.Logger
	now        func() time.Time
}

func NewLifecycle(
	store Store,
	publishers Publishers,
	resolver MediaResolver,
	notifier *notify.Notifier,
	alerter alert.Alerter,
	opts LifecycleOptions,
	logger *zap.Logger,
) *Lifecycle {
	if alerter == nil {
		alerter = alert.Nop{}
	}
	return &Lifecycle{
		store:      store,
		publishers: publishers,
		media:      resolver,
		notifier:   notifier,
		alerter:    alerter,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the time source, mainly for tests.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

type run struct {
	job    *models.PublishJob
	item   *models.ContentItem
	logger *zap.Logger
}

func (r *run) platform() string {
	if r.item == nil {
		return ""
	}
	return r.item.Platform
}

// Process claims and runs one job. Losing the lock race is not an error.
func (l *Lifecycle) Process(ctx context.Context, jobID string) (Outcome, error) {
	job, locked, err := l.store.LockJob(ctx, jobID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to lock job %s: %w", jobID, err)
	}
	if !locked {
		l.logger.Debug("Job already claimed", zap.String("job_id", jobID))
		return OutcomeSkipped, nil
	}

	r := &run{
		job: job,
		logger: l.logger.With(
			zap.String("job_id", job.ID),
			zap.String("content_item_id", job.ContentItemID),
			zap.String("placement", string(job.Placement)),
			zap.Int("attempt", job.Attempt),
		),
	}

	item, err := l.store.GetContentItem(ctx, job.ContentItemID)
	if err != nil {
		return l.abandon(r, "load content item", err)
	}
	if item == nil {
		return l.fail(ctx, r, "content missing"), nil
	}
	r.item = item
	r.logger = r.logger.With(zap.String("platform", item.Platform))

	return l.publish(ctx, r)
}

func (l *Lifecycle) publish(ctx context.Context, r *run) (Outcome, error) {
	now := l.now()
	item := r.item

	if r.job.IsStory() && now.Sub(item.ScheduledFor) > l.opts.StoryGrace {
		return l.fail(ctx, r, fmt.Sprintf("story missed its scheduled time %s by more than %s",
			item.ScheduledFor.UTC().Format(time.RFC3339), l.opts.StoryGrace)), nil
	}

	variant, err := l.loadVariant(ctx, r.job)
	if err != nil {
		return l.abandon(r, "load content variant", err)
	}
	if variant == nil {
		if r.job.ShortRetries < l.opts.MaxVariantRetries {
			return l.deferShort(ctx, r, "content variant not available yet"), nil
		}
		return l.fail(ctx, r, "content variant missing"), nil
	}

	if !r.job.IsStory() && !variant.HasBody() {
		return l.fail(ctx, r, "feed post requires copy"), nil
	}

	conn, err := l.store.GetConnection(ctx, item.AccountID, item.Platform)
	if err != nil {
		return l.abandon(r, "load connection", err)
	}
	if conn == nil {
		return l.fail(ctx, r, fmt.Sprintf("no %s connection for account", publisher.DisplayName(item.Platform))), nil
	}
	if reason := conn.Unusable(now); reason != "" {
		l.flagConnection(ctx, r, conn, reason)
		return l.fail(ctx, r, reason), nil
	}

	metadata, err := publisher.ResolveMetadata(item.Platform, conn.Metadata)
	if err != nil {
		l.flagConnection(ctx, r, conn, err.Error())
		l.sendAlert(ctx, r, "connection metadata missing", err.Error())
		return l.fail(ctx, r, err.Error()), nil
	}

	pub, err := l.publishers.Get(item.Platform)
	if err != nil {
		l.sendAlert(ctx, r, "publisher not configured", err.Error())
		return l.fail(ctx, r, err.Error()), nil
	}

	l.setContentStatus(ctx, r, models.ContentStatusPublishing)

	resolved, err := l.media.Resolve(ctx, variant.MediaIDs, r.job.Placement)
	if err != nil {
		var notReady *media.DerivativeNotReadyError
		switch {
		case errors.As(err, &notReady):
			if r.job.ShortRetries < l.opts.MaxVariantRetries {
				return l.deferShort(ctx, r, err.Error()), nil
			}
			l.sendAlert(ctx, r, "media not ready", err.Error())
			return l.fail(ctx, r, err.Error()), nil
		case errors.Is(err, media.ErrMediaNotFound), errors.Is(err, media.ErrSignURL):
			l.sendAlert(ctx, r, "media unavailable", err.Error())
			return l.fail(ctx, r, err.Error()), nil
		default:
			return l.handleFailure(ctx, r, conn, err), nil
		}
	}

	req := publisher.Request{
		Body:          variant.Body,
		Media:         resolved,
		ScheduledFor:  item.ScheduledFor,
		CampaignName:  item.CampaignName,
		PromptContext: json.RawMessage(item.PromptContext),
		Placement:     r.job.Placement,
		Auth: publisher.Auth{
			AccessToken:  conn.AccessToken,
			RefreshToken: conn.RefreshToken,
			ExpiresAt:    conn.ExpiresAt,
		},
		Metadata: metadata,
	}

	r.logger.Info("Publishing content", zap.Int("media_count", len(resolved)))

	result, err := pub.Publish(ctx, req)
	if err == nil && result == nil {
		err = publisher.NewError(publisher.KindTransient, item.Platform, "publish", "publisher returned no result")
	}
	if err != nil {
		return l.handleFailure(ctx, r, conn, err), nil
	}

	return l.succeed(ctx, r, result), nil
}

func (l *Lifecycle) loadVariant(ctx context.Context, job *models.PublishJob) (*models.ContentVariant, error) {
	if job.VariantID != nil && *job.VariantID != "" {
		variant, err := l.store.GetVariant(ctx, *job.VariantID)
		if err != nil || variant != nil {
			return variant, err
		}
	}
	return l.store.LatestVariant(ctx, job.ContentItemID)
}

// handleFailure applies the retry policy to a publish error and alerts on
// every failed attempt. Auth errors are never retried. Transient errors on
// feed posts back off until MaxAttempts; stories get no generic retry.
func (l *Lifecycle) handleFailure(ctx context.Context, r *run, conn *models.Connection, err error) Outcome {
	kind := publisher.KindOf(err)
	reason := err.Error()
	attempts := r.job.PublishAttempts()

	r.logger.Warn("Publish failed",
		zap.String("kind", kind.String()),
		zap.Int("publish_attempts", attempts),
		zap.Error(err))

	if kind == publisher.KindAuth {
		l.flagConnection(ctx, r, conn, reason)
	}

	if kind == publisher.KindTransient && !r.job.IsStory() && attempts < l.opts.MaxAttempts {
		l.sendAlert(ctx, r, "publish failed, will retry", reason)
		return l.retry(ctx, r, l.opts.Backoff.Delay(attempts), reason)
	}

	l.sendAlert(ctx, r, "publish failed", reason)
	return l.fail(ctx, r, reason)
}

func (l *Lifecycle) succeed(ctx context.Context, r *run, result *publisher.Result) Outcome {
	raw, err := json.Marshal(result)
	if err != nil {
		r.logger.Warn("Failed to encode provider response", zap.Error(err))
		raw = nil
	}

	ok, err := l.store.CompleteJob(ctx, r.job.ID, raw)
	if err != nil {
		l.reportWriteError(r, "complete job", err)
	} else if !ok {
		r.logger.Warn("Job was no longer in progress when completing")
	}

	l.setContentStatus(ctx, r, models.ContentStatusPosted)

	r.logger.Info("Content published", zap.String("external_id", result.ExternalID))
	l.notifier.Notify(ctx, r.item.AccountID, category(r.job.Placement, eventSuccess),
		fmt.Sprintf("Published to %s: %s", publisher.DisplayName(r.platform()), result.Preview),
		notify.WithJob(r.job.ID),
		notify.WithContentItem(r.item.ID),
		notify.WithPlatform(r.platform()),
		notify.WithMetadata(map[string]any{"external_id": result.ExternalID}),
	)

	return OutcomeSucceeded
}

func (l *Lifecycle) retry(ctx context.Context, r *run, delay time.Duration, reason string) Outcome {
	return l.requeue(ctx, r, delay, reason, false)
}

// deferShort requeues after the short fixed delay used while authoring or
// media processing catches up. It does not count as a publish attempt.
func (l *Lifecycle) deferShort(ctx context.Context, r *run, reason string) Outcome {
	return l.requeue(ctx, r, l.opts.ShortRetryDelay, reason, true)
}

func (l *Lifecycle) requeue(ctx context.Context, r *run, delay time.Duration, reason string, short bool) Outcome {
	next := l.now().Add(delay)

	var ok bool
	var err error
	if short {
		ok, err = l.store.DeferJob(ctx, r.job.ID, next, reason)
	} else {
		ok, err = l.store.RescheduleJob(ctx, r.job.ID, next, reason)
	}
	if err != nil {
		l.reportWriteError(r, "reschedule job", err)
		return OutcomeRetried
	}
	if !ok {
		r.logger.Warn("Job was no longer in progress when rescheduling")
		return OutcomeRetried
	}

	r.logger.Info("Job rescheduled",
		zap.Time("next_attempt_at", next),
		zap.Bool("short", short),
		zap.String("reason", reason))

	l.setContentStatus(ctx, r, models.ContentStatusScheduled)
	l.notifier.Notify(ctx, r.item.AccountID, category(r.job.Placement, eventRetry),
		fmt.Sprintf("%s post will retry at %s: %s", publisher.DisplayName(r.platform()), next.UTC().Format(time.RFC3339), reason),
		notify.WithJob(r.job.ID),
		notify.WithContentItem(r.item.ID),
		notify.WithPlatform(r.platform()),
	)

	return OutcomeRetried
}

func (l *Lifecycle) fail(ctx context.Context, r *run, reason string) Outcome {
	ok, err := l.store.FailJob(ctx, r.job.ID, reason)
	if err != nil {
		l.reportWriteError(r, "fail job", err)
		return OutcomeFailed
	}
	if !ok {
		r.logger.Warn("Job was no longer in progress when failing")
		return OutcomeFailed
	}

	r.logger.Warn("Job failed", zap.String("reason", reason))

	if r.item == nil {
		return OutcomeFailed
	}

	l.setContentStatus(ctx, r, models.ContentStatusFailed)
	l.notifier.Notify(ctx, r.item.AccountID, category(r.job.Placement, eventFailed),
		fmt.Sprintf("%s post failed: %s", publisher.DisplayName(r.platform()), reason),
		notify.WithJob(r.job.ID),
		notify.WithContentItem(r.item.ID),
		notify.WithPlatform(r.platform()),
	)

	return OutcomeFailed
}

func (l *Lifecycle) abandon(r *run, op string, err error) (Outcome, error) {
	err = fmt.Errorf("failed to %s: %w", op, err)
	r.logger.Error("Job abandoned", zap.Error(err))
	sentry.CaptureException(err)
	return OutcomeAbandoned, err
}

func (l *Lifecycle) flagConnection(ctx context.Context, r *run, conn *models.Connection, reason string) {
	if conn.Status != models.ConnectionStatusNeedsAction {
		if err := l.store.MarkConnectionNeedsAction(ctx, conn.ID, reason); err != nil {
			l.reportWriteError(r, "flag connection", err)
		} else {
			conn.Status = models.ConnectionStatusNeedsAction
			conn.StatusReason = reason
		}
	}

	r.logger.Warn("Connection needs action",
		zap.String("connection_id", conn.ID),
		zap.String("reason", reason))

	l.notifier.Notify(ctx, r.item.AccountID, models.CategoryConnectionNeedsAction,
		fmt.Sprintf("%s connection needs attention: %s", publisher.DisplayName(conn.Provider), reason),
		notify.WithJob(r.job.ID),
		notify.WithPlatform(conn.Provider),
		notify.WithMetadata(map[string]any{"connection_id": conn.ID}),
	)
}

func (l *Lifecycle) sendAlert(ctx context.Context, r *run, subject, reason string) {
	msg := alert.Message{
		Subject: fmt.Sprintf("[herald] %s %s", publisher.DisplayName(r.platform()), subject),
		Body: fmt.Sprintf("Job: %s\nContent item: %s\nPlatform: %s\nPlacement: %s\nAttempt: %d\n\n%s\n",
			r.job.ID, r.job.ContentItemID, r.platform(), r.job.Placement, r.job.Attempt, reason),
		Tag: "publish-queue",
	}

	if err := l.alerter.Alert(ctx, msg); err != nil {
		r.logger.Warn("Failed to send alert email", zap.Error(err))
	}
}

func (l *Lifecycle) setContentStatus(ctx context.Context, r *run, status models.ContentStatus) {
	if err := l.store.SetContentStatus(ctx, r.item.ID, status); err != nil {
		l.reportWriteError(r, "update content status to "+string(status), err)
		return
	}
	r.item.Status = status
}

func (l *Lifecycle) reportWriteError(r *run, op string, err error) {
	err = fmt.Errorf("failed to %s: %w", op, err)
	r.logger.Error("Datastore write failed", zap.Error(err))
	sentry.CaptureException(err)
}

const (
	eventSuccess = "success"
	eventRetry   = "retry"
	eventFailed  = "failed"
)

func category(placement models.Placement, event string) string {
	story := placement == models.PlacementStory
	switch event {
	case eventSuccess:
		if story {
			return models.CategoryStoryPublishSuccess
		}
		return models.CategoryPublishSuccess
	case eventRetry:
		if story {
			return models.CategoryStoryPublishRetry
		}
		return models.CategoryPublishRetry
	default:
		if story {
			return models.CategoryStoryPublishFailed
		}
		return models.CategoryPublishFailed
	}
}
