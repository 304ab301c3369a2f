package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CategoryPublishSuccess        = "publish_success"
	CategoryPublishRetry          = "publish_retry"
	CategoryPublishFailed         = "publish_failed"
	CategoryStoryPublishSuccess   = "story_publish_success"
	CategoryStoryPublishRetry     = "story_publish_retry"
	CategoryStoryPublishFailed    = "story_publish_failed"
	CategoryConnectionNeedsAction = "connection_needs_action"
)

// Notification is an append-only operational event shown on dashboards.
type Notification struct {
	ID        string            `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID string            `gorm:"type:uuid;not null;index" json:"account_id"`
	Category  string            `gorm:"size:50;not null;index" json:"category"`
	Message   string            `gorm:"type:text;not null" json:"message"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}

// WorkerHeartbeat records the last pass of a worker for liveness checks.
type WorkerHeartbeat struct {
	Name      string    `gorm:"size:100;primaryKey" json:"name"`
	LastRunAt time.Time `gorm:"not null" json:"last_run_at"`
	Source    string    `gorm:"size:100" json:"source"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
