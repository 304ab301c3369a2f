package models

import (
	"time"

	"gorm.io/datatypes"
)

type ConnectionStatus string

const (
	ConnectionStatusActive      ConnectionStatus = "active"
	ConnectionStatusExpiring    ConnectionStatus = "expiring"
	ConnectionStatusNeedsAction ConnectionStatus = "needs_action"
)

// Connection is an account's credential record for one provider. Once the
// worker flags it needs_action only a reconnect or refresh flow clears it.
type Connection struct {
	ID           string            `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID    string            `gorm:"type:uuid;not null;uniqueIndex:idx_connections_account_provider" json:"account_id"`
	Provider     string            `gorm:"size:50;not null;uniqueIndex:idx_connections_account_provider" json:"provider"`
	Status       ConnectionStatus  `gorm:"size:20;not null;default:'active'" json:"status"`
	StatusReason string            `gorm:"type:text" json:"status_reason"`
	AccessToken  string            `gorm:"type:text" json:"-"`
	RefreshToken string            `gorm:"type:text" json:"-"`
	ExpiresAt    *time.Time        `json:"expires_at"`
	DisplayName  string            `gorm:"size:255" json:"display_name"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// Unusable reports why the connection cannot be used at now, or "" if it can.
func (c *Connection) Unusable(now time.Time) string {
	switch {
	case c.Status == ConnectionStatusNeedsAction:
		return "connection requires reconnection"
	case c.AccessToken == "":
		return "connection is missing an access token"
	case c.ExpiresAt != nil && !c.ExpiresAt.After(now):
		return "connection access token has expired"
	}
	return ""
}
