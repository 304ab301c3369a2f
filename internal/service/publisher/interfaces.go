package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ifuryst/herald/internal/models"
)

const (
	PlatformFacebook       = "facebook"
	PlatformInstagram      = "instagram"
	PlatformGoogleBusiness = "google_business"
)

// Media is an asset resolved to a URL the platform can fetch.
type Media struct {
	ID       string           `json:"id"`
	URL      string           `json:"url"`
	Type     models.MediaType `json:"type"`
	MimeType string           `json:"mime_type"`
}

// Auth carries the connection credentials for one publish call.
type Auth struct {
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Request is the platform-neutral publish payload.
type Request struct {
	Body          string           `json:"body"`
	Media         []Media          `json:"media"`
	ScheduledFor  time.Time        `json:"scheduled_for"`
	CampaignName  string           `json:"campaign_name"`
	PromptContext json.RawMessage  `json:"prompt_context,omitempty"`
	Placement     models.Placement `json:"placement"`
	Auth          Auth             `json:"-"`
	Metadata      Metadata         `json:"metadata"`
}

func (r Request) IsStory() bool {
	return r.Placement == models.PlacementStory
}

// Result is the normalized outcome of a successful publish.
type Result struct {
	Platform    string          `json:"platform"`
	ExternalID  string          `json:"external_id"`
	Preview     string          `json:"preview"`
	PublishedAt time.Time       `json:"published_at"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Publisher delivers a request to one external platform. Failures are
// returned as *Error so callers can tell auth, transient and permanent apart.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, req Request) (*Result, error)
}
