package gbp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/models"
	"github.com/ifuryst/herald/internal/service/publisher"
	"github.com/ifuryst/herald/pkg/util"
)

// MaxSummaryLength is the longest local post summary the API accepts.
const MaxSummaryLength = 1500

type Config struct {
	BaseURL       string
	RatePerSecond int
	LanguageCode  string
}

// GBPPublisher creates "What's new" local posts on a Google Business Profile location.
type GBPPublisher struct {
	logger       *zap.Logger
	api          *publisher.APIClient
	baseURL      string
	languageCode string
	now          func() time.Time
}

type localPostMedia struct {
	MediaFormat string `json:"mediaFormat"`
	SourceURL   string `json:"sourceUrl"`
}

type localPostRequest struct {
	LanguageCode string           `json:"languageCode"`
	Summary      string           `json:"summary"`
	TopicType    string           `json:"topicType"`
	Media        []localPostMedia `json:"media,omitempty"`
}

type localPostResponse struct {
	Name       string `json:"name"`
	SearchURL  string `json:"searchUrl"`
	State      string `json:"state"`
	CreateTime string `json:"createTime"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func NewGBPPublisher(cfg Config, logger *zap.Logger) *GBPPublisher {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}

	return &GBPPublisher{
		logger:       logger,
		api:          publisher.NewAPIClient(publisher.PlatformGoogleBusiness, cfg.RatePerSecond, logger),
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		languageCode: cfg.LanguageCode,
		now:          time.Now,
	}
}

func (p *GBPPublisher) Platform() string {
	return publisher.PlatformGoogleBusiness
}

func (p *GBPPublisher) Publish(ctx context.Context, req publisher.Request) (*publisher.Result, error) {
	location := req.Metadata.LocationID
	if !strings.HasPrefix(location, "accounts/") || !strings.Contains(location, "/locations/") {
		return nil, publisher.NewError(publisher.KindPermanent, p.Platform(), "validate",
			fmt.Sprintf("location %q is not an accounts/{account}/locations/{location} name", location))
	}

	payload := localPostRequest{
		LanguageCode: p.languageCode,
		Summary:      util.Truncate(req.Body, MaxSummaryLength),
		TopicType:    "STANDARD",
	}
	for _, m := range req.Media {
		if m.Type != models.MediaTypeImage {
			continue
		}
		payload.Media = append(payload.Media, localPostMedia{MediaFormat: "PHOTO", SourceURL: m.URL})
	}

	endpoint := fmt.Sprintf("%s/v4/%s/localPosts", p.baseURL, location)
	headers := map[string]string{
		"Authorization": "Bearer " + req.Auth.AccessToken,
	}

	resp, err := p.api.Do(ctx, http.MethodPost, endpoint, headers, payload)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, p.parseError(resp)
	}

	var post localPostResponse
	if err := p.api.Decode(resp, &post); err != nil {
		return nil, err
	}

	p.logger.Info("Google Business local post created",
		zap.String("location", location),
		zap.String("post", post.Name),
		zap.Int("media_count", len(payload.Media)))

	return &publisher.Result{
		Platform:    p.Platform(),
		ExternalID:  post.Name,
		Preview:     util.Preview(payload.Summary, 80),
		PublishedAt: p.now(),
		Raw:         json.RawMessage(resp.Body),
	}, nil
}

func (p *GBPPublisher) parseError(resp *publisher.APIResponse) error {
	pe := &publisher.Error{
		Kind:       publisher.KindForStatus(resp.StatusCode),
		Platform:   p.Platform(),
		Op:         "create local post",
		StatusCode: resp.StatusCode,
	}

	var envelope apiErrorResponse
	if err := json.Unmarshal(resp.Body, &envelope); err == nil && envelope.Error.Message != "" {
		pe.Message = envelope.Error.Message
		pe.Type = envelope.Error.Status
		pe.Code = envelope.Error.Code
		switch envelope.Error.Status {
		case "UNAUTHENTICATED", "PERMISSION_DENIED":
			pe.Kind = publisher.KindAuth
		case "RESOURCE_EXHAUSTED", "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL":
			pe.Kind = publisher.KindTransient
		}
	} else {
		pe.Message = util.Preview(string(resp.Body), 300)
	}

	return pe
}
