package models

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

type Placement string

const (
	PlacementFeed  Placement = "feed"
	PlacementStory Placement = "story"
)

// PublishJob tracks delivery attempts for a single content item. Rows are
// never deleted so they double as the audit trail.
type PublishJob struct {
	ID               string         `gorm:"type:uuid;primaryKey" json:"id"`
	ContentItemID    string         `gorm:"type:uuid;not null;uniqueIndex" json:"content_item_id"`
	VariantID        *string        `gorm:"type:uuid" json:"variant_id"`
	Status           JobStatus      `gorm:"size:20;not null;index:idx_publish_jobs_due,priority:1" json:"status"`
	Attempt          int            `gorm:"not null;default:0" json:"attempt"`
	ShortRetries     int            `gorm:"not null;default:0" json:"short_retries"`
	NextAttemptAt    *time.Time     `gorm:"index:idx_publish_jobs_due,priority:2" json:"next_attempt_at"`
	Placement        Placement      `gorm:"size:20;not null" json:"placement"`
	LastError        *string        `gorm:"type:text" json:"last_error"`
	ProviderResponse datatypes.JSON `gorm:"type:jsonb" json:"provider_response"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (j *PublishJob) IsStory() bool {
	return j.Placement == PlacementStory
}

// PublishAttempts is the number of attempts that reached a publisher call
// path, excluding short deferrals for missing variants or derivatives.
func (j *PublishJob) PublishAttempts() int {
	return j.Attempt - j.ShortRetries
}
