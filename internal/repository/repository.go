package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/herald/internal/models"
)

// Repository is the gorm-backed datastore of the publish queue. Job writes
// are conditional updates so that no row is blindly overwritten.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewRepository(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for updated_at values.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

func (r *Repository) RecordHeartbeat(ctx context.Context, name, source string, at time.Time) error {
	heartbeat := &models.WorkerHeartbeat{
		Name:      name,
		LastRunAt: at,
		Source:    source,
		UpdatedAt: r.now(),
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_run_at", "source", "updated_at"}),
	}).Create(heartbeat).Error
}

func (r *Repository) RecoverStuckJobs(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	var recovered int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stuck []models.PublishJob
		if err := tx.Select("id", "content_item_id").
			Where("status = ? AND updated_at < ?", models.JobStatusInProgress, cutoff).
			Find(&stuck).Error; err != nil {
			return err
		}
		if len(stuck) == 0 {
			return nil
		}

		jobIDs := make([]string, 0, len(stuck))
		itemIDs := make([]string, 0, len(stuck))
		for _, job := range stuck {
			jobIDs = append(jobIDs, job.ID)
			itemIDs = append(itemIDs, job.ContentItemID)
		}

		now := r.now()
		res := tx.Model(&models.PublishJob{}).
			Where("id IN ? AND status = ?", jobIDs, models.JobStatusInProgress).
			Updates(map[string]any{
				"status":          models.JobStatusQueued,
				"last_error":      reason,
				"next_attempt_at": now,
				"updated_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		recovered = res.RowsAffected

		return tx.Model(&models.ContentItem{}).
			Where("id IN ? AND status = ?", itemIDs, models.ContentStatusPublishing).
			Update("status", models.ContentStatusScheduled).Error
	})
	if err != nil {
		return 0, err
	}

	return recovered, nil
}

func (r *Repository) FindBackfillCandidates(ctx context.Context, dueBy time.Time, limit int) ([]models.ContentItem, error) {
	var items []models.ContentItem
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.ContentStatus{models.ContentStatusScheduled, models.ContentStatusQueued}).
		Where("scheduled_for <= ?", dueBy).
		Where("NOT EXISTS (SELECT 1 FROM publish_jobs WHERE publish_jobs.content_item_id = content_items.id)").
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *Repository) CreateJobIfAbsent(ctx context.Context, job *models.PublishJob) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_item_id"}},
		DoNothing: true,
	}).Create(job)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) DueJobs(ctx context.Context, dueBy time.Time, limit int) ([]models.PublishJob, error) {
	var jobs []models.PublishJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.JobStatusQueued, dueBy).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *Repository) LockJob(ctx context.Context, id string) (*models.PublishJob, bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PublishJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusQueued).
		Updates(map[string]any{
			"status":     models.JobStatusInProgress,
			"attempt":    gorm.Expr("attempt + 1"),
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	var job models.PublishJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, false, fmt.Errorf("failed to reload locked job: %w", err)
	}
	return &job, true, nil
}

func (r *Repository) finishJob(ctx context.Context, id string, values map[string]any) (bool, error) {
	values["updated_at"] = r.now()

	res := r.db.WithContext(ctx).Model(&models.PublishJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusInProgress).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) CompleteJob(ctx context.Context, id string, providerResponse []byte) (bool, error) {
	return r.finishJob(ctx, id, map[string]any{
		"status":            models.JobStatusSucceeded,
		"provider_response": datatypes.JSON(providerResponse),
		"last_error":        nil,
		"next_attempt_at":   nil,
	})
}

func (r *Repository) RescheduleJob(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) (bool, error) {
	return r.finishJob(ctx, id, map[string]any{
		"status":          models.JobStatusQueued,
		"next_attempt_at": nextAttemptAt,
		"last_error":      lastError,
	})
}

func (r *Repository) DeferJob(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) (bool, error) {
	return r.finishJob(ctx, id, map[string]any{
		"status":          models.JobStatusQueued,
		"next_attempt_at": nextAttemptAt,
		"last_error":      lastError,
		"short_retries":   gorm.Expr("short_retries + 1"),
	})
}

func (r *Repository) FailJob(ctx context.Context, id string, lastError string) (bool, error) {
	return r.finishJob(ctx, id, map[string]any{
		"status":          models.JobStatusFailed,
		"next_attempt_at": nil,
		"last_error":      lastError,
	})
}

func (r *Repository) GetContentItem(ctx context.Context, id string) (*models.ContentItem, error) {
	var item models.ContentItem
	return first(r.db.WithContext(ctx).Where("id = ?", id), &item)
}

func (r *Repository) SetContentStatus(ctx context.Context, id string, status models.ContentStatus) error {
	return r.db.WithContext(ctx).Model(&models.ContentItem{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *Repository) GetVariant(ctx context.Context, id string) (*models.ContentVariant, error) {
	var variant models.ContentVariant
	return first(r.db.WithContext(ctx).Where("id = ?", id), &variant)
}

func (r *Repository) LatestVariant(ctx context.Context, contentItemID string) (*models.ContentVariant, error) {
	var variant models.ContentVariant
	return first(r.db.WithContext(ctx).
		Where("content_item_id = ?", contentItemID).
		Order("updated_at DESC"), &variant)
}

func (r *Repository) GetConnection(ctx context.Context, accountID, provider string) (*models.Connection, error) {
	var conn models.Connection
	return first(r.db.WithContext(ctx).
		Where("account_id = ? AND provider = ?", accountID, provider), &conn)
}

func (r *Repository) MarkConnectionNeedsAction(ctx context.Context, id, reason string) error {
	return r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.ConnectionStatusNeedsAction,
			"status_reason": reason,
			"updated_at":    r.now(),
		}).Error
}

func (r *Repository) GetMediaAssets(ctx context.Context, ids []string) ([]models.MediaAsset, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var assets []models.MediaAsset
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&assets).Error
	return assets, err
}

func (r *Repository) CreateNotification(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// first loads a single row, mapping "not found" to (nil, nil).
func first[T any](query *gorm.DB, dest *T) (*T, error) {
	if err := query.Take(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dest, nil
}
