package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ContentStatus string

const (
	ContentStatusDraft      ContentStatus = "draft"
	ContentStatusScheduled  ContentStatus = "scheduled"
	ContentStatusQueued     ContentStatus = "queued"
	ContentStatusPublishing ContentStatus = "publishing"
	ContentStatusPosted     ContentStatus = "posted"
	ContentStatusFailed     ContentStatus = "failed"
)

// ContentItem is a post scheduled for a single platform and placement. Rows
// are authored elsewhere; the worker only moves Status.
type ContentItem struct {
	ID            string         `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID     string         `gorm:"type:uuid;not null;index" json:"account_id"`
	Platform      string         `gorm:"size:50;not null" json:"platform"`
	Placement     Placement      `gorm:"size:20;not null;default:'feed'" json:"placement"`
	ScheduledFor  time.Time      `gorm:"not null;index" json:"scheduled_for"`
	PromptContext datatypes.JSON `gorm:"type:jsonb" json:"prompt_context"`
	Status        ContentStatus  `gorm:"size:20;not null;default:'draft';index" json:"status"`
	CampaignName  string         `gorm:"size:255" json:"campaign_name"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// ContentVariant holds the copy and media for a content item. An item may
// have several variants; the most recently updated one wins.
type ContentVariant struct {
	ID            string         `gorm:"type:uuid;primaryKey" json:"id"`
	ContentItemID string         `gorm:"type:uuid;not null;index" json:"content_item_id"`
	Body          string         `gorm:"type:text" json:"body"`
	MediaIDs      pq.StringArray `gorm:"type:text[]" json:"media_ids"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (v *ContentVariant) HasBody() bool {
	return strings.TrimSpace(v.Body) != ""
}
