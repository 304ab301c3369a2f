package queue

import (
	"context"
	"time"

	"github.com/ifuryst/herald/internal/models"
	"github.com/ifuryst/herald/internal/service/media"
	"github.com/ifuryst/herald/internal/service/notify"
)

// Store is the datastore contract of the publish queue. Lookups return
// (nil, nil) when the row does not exist. Every job write is a conditional
// update keyed by id and current status; the bool result reports whether a
// row matched.
type Store interface {
	media.AssetLoader
	notify.Writer

	RecordHeartbeat(ctx context.Context, name, source string, at time.Time) error

	// RecoverStuckJobs requeues in_progress jobs not updated since cutoff and
	// moves their content back from publishing to scheduled.
	RecoverStuckJobs(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	// FindBackfillCandidates lists live scheduled or queued content due by
	// dueBy that has no job yet.
	FindBackfillCandidates(ctx context.Context, dueBy time.Time, limit int) ([]models.ContentItem, error)
	// CreateJobIfAbsent inserts job unless its content item already has one.
	CreateJobIfAbsent(ctx context.Context, job *models.PublishJob) (bool, error)
	// DueJobs lists queued jobs with next_attempt_at <= dueBy, earliest first.
	DueJobs(ctx context.Context, dueBy time.Time, limit int) ([]models.PublishJob, error)

	// LockJob moves a queued job to in_progress and increments its attempt.
	LockJob(ctx context.Context, id string) (*models.PublishJob, bool, error)
	CompleteJob(ctx context.Context, id string, providerResponse []byte) (bool, error)
	RescheduleJob(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) (bool, error)
	// DeferJob requeues like RescheduleJob and also counts a short retry.
	DeferJob(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) (bool, error)
	FailJob(ctx context.Context, id string, lastError string) (bool, error)

	GetContentItem(ctx context.Context, id string) (*models.ContentItem, error)
	SetContentStatus(ctx context.Context, id string, status models.ContentStatus) error
	GetVariant(ctx context.Context, id string) (*models.ContentVariant, error)
	LatestVariant(ctx context.Context, contentItemID string) (*models.ContentVariant, error)

	GetConnection(ctx context.Context, accountID, provider string) (*models.Connection, error)
	MarkConnectionNeedsAction(ctx context.Context, id, reason string) error
}
