package models

import (
	"time"

	"gorm.io/datatypes"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

type MediaAsset struct {
	ID              string            `gorm:"type:uuid;primaryKey" json:"id"`
	StoragePath     string            `gorm:"type:text;not null" json:"storage_path"`
	MediaType       MediaType         `gorm:"size:20;not null" json:"media_type"`
	MimeType        string            `gorm:"size:100" json:"mime_type"`
	DerivedVariants datatypes.JSONMap `gorm:"type:jsonb" json:"derived_variants"`
	ProcessedStatus string            `gorm:"size:50" json:"processed_status"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// DerivedPath returns the rendition path stored for placement, if any.
func (a *MediaAsset) DerivedPath(placement Placement) string {
	if a.DerivedVariants == nil {
		return ""
	}
	path, _ := a.DerivedVariants[string(placement)].(string)
	return path
}
