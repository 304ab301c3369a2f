package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/models"
)

const stuckJobReason = "job was reset after exceeding the in-progress timeout"

// Recovery keeps the job table consistent with due content: it requeues
// jobs abandoned mid-flight and creates jobs for due content that has none.
type Recovery struct {
	store  Store
	logger *zap.Logger
}

func NewRecovery(store Store, logger *zap.Logger) *Recovery {
	return &Recovery{
		store:  store,
		logger: logger,
	}
}

// RecoverStuck requeues in_progress jobs whose last update is older than timeout.
func (r *Recovery) RecoverStuck(ctx context.Context, now time.Time, timeout time.Duration) (int64, error) {
	recovered, err := r.store.RecoverStuckJobs(ctx, now.Add(-timeout), stuckJobReason)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stuck jobs: %w", err)
	}

	if recovered > 0 {
		r.logger.Warn("Recovered stuck jobs",
			zap.Int64("count", recovered),
			zap.Duration("timeout", timeout))
	}
	return recovered, nil
}

// Backfill creates a queued job for every due content item that lacks one.
// The unique content_item_id constraint makes concurrent backfills safe.
func (r *Recovery) Backfill(ctx context.Context, dueBy time.Time, limit int) (int, error) {
	items, err := r.store.FindBackfillCandidates(ctx, dueBy, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to find backfill candidates: %w", err)
	}

	created := 0
	for i := range items {
		item := &items[i]

		variant, err := r.store.LatestVariant(ctx, item.ID)
		if err != nil {
			r.logger.Error("Failed to load variant for backfill",
				zap.String("content_item_id", item.ID),
				zap.Error(err))
			continue
		}

		nextAttemptAt := item.ScheduledFor
		job := &models.PublishJob{
			ID:            uuid.NewString(),
			ContentItemID: item.ID,
			Status:        models.JobStatusQueued,
			NextAttemptAt: &nextAttemptAt,
			Placement:     item.Placement,
		}
		if job.Placement == "" {
			job.Placement = models.PlacementFeed
		}
		if variant != nil {
			job.VariantID = &variant.ID
		}

		inserted, err := r.store.CreateJobIfAbsent(ctx, job)
		if err != nil {
			r.logger.Error("Failed to create backfill job",
				zap.String("content_item_id", item.ID),
				zap.Error(err))
			continue
		}
		if inserted {
			created++
			r.logger.Info("Backfilled publish job",
				zap.String("job_id", job.ID),
				zap.String("content_item_id", item.ID),
				zap.Time("scheduled_for", item.ScheduledFor))
		}
	}

	return created, nil
}
