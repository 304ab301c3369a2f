package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ifuryst/herald/internal/models"
)

// Writer persists notification rows.
type Writer interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Notifier records operational events for dashboards. Write failures are
// logged and never returned: a missing notification must not change the
// outcome of a job.
type Notifier struct {
	writer Writer
	logger *zap.Logger
}

func NewNotifier(writer Writer, logger *zap.Logger) *Notifier {
	return &Notifier{
		writer: writer,
		logger: logger,
	}
}

// Option adds context to a notification.
type Option func(*models.Notification)

func WithJob(jobID string) Option {
	return func(n *models.Notification) {
		n.Metadata["job_id"] = jobID
	}
}

func WithContentItem(contentItemID string) Option {
	return func(n *models.Notification) {
		n.Metadata["content_item_id"] = contentItemID
	}
}

func WithPlatform(platform string) Option {
	return func(n *models.Notification) {
		n.Metadata["platform"] = platform
	}
}

func WithMetadata(metadata map[string]any) Option {
	return func(n *models.Notification) {
		for k, v := range metadata {
			n.Metadata[k] = v
		}
	}
}

func (n *Notifier) Notify(ctx context.Context, accountID, category, message string, options ...Option) {
	notification := &models.Notification{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Category:  category,
		Message:   message,
		Metadata:  datatypes.JSONMap{},
	}

	for _, option := range options {
		option(notification)
	}

	if err := n.writer.CreateNotification(ctx, notification); err != nil {
		n.logger.Error("Failed to record notification",
			zap.String("account_id", accountID),
			zap.String("category", category),
			zap.Error(err))
	}
}
