package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/models"
	"github.com/ifuryst/herald/internal/service/publisher"
	"github.com/ifuryst/herald/pkg/util"
)

// Container processing states reported by the Graph API
const (
	statusFinished  = "FINISHED"
	statusError     = "ERROR"
	statusExpired   = "EXPIRED"
	statusPublished = "PUBLISHED"
)

type Config struct {
	BaseURL       string
	APIVersion    string
	RatePerSecond int
	PollInterval  time.Duration
	PollAttempts  int
}

// InstagramPublisher publishes single-image posts and stories through the
// Instagram Graph API content publishing flow: create container, wait for
// it to finish processing, publish.
type InstagramPublisher struct {
	logger       *zap.Logger
	api          *publisher.APIClient
	baseURL      string
	pollInterval time.Duration
	pollAttempts int
	now          func() time.Time
}

type graphErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type idResponse struct {
	ID string `json:"id"`
}

type containerStatusResponse struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

func NewInstagramPublisher(cfg Config, logger *zap.Logger) *InstagramPublisher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 10
	}

	return &InstagramPublisher{
		logger:       logger,
		api:          publisher.NewAPIClient(publisher.PlatformInstagram, cfg.RatePerSecond, logger),
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/") + "/" + cfg.APIVersion,
		pollInterval: cfg.PollInterval,
		pollAttempts: cfg.PollAttempts,
		now:          time.Now,
	}
}

func (p *InstagramPublisher) Platform() string {
	return publisher.PlatformInstagram
}

func (p *InstagramPublisher) Publish(ctx context.Context, req publisher.Request) (*publisher.Result, error) {
	businessID := req.Metadata.BusinessID
	if businessID == "" {
		return nil, publisher.NewError(publisher.KindPermanent, p.Platform(), "validate", "missing business id")
	}

	if len(req.Media) != 1 || req.Media[0].Type != models.MediaTypeImage {
		return nil, publisher.NewError(publisher.KindPermanent, p.Platform(), "validate",
			"Instagram requires exactly one image")
	}

	containerID, err := p.createContainer(ctx, businessID, req)
	if err != nil {
		return nil, err
	}

	if err := p.waitForContainer(ctx, containerID, req.Auth.AccessToken); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("creation_id", containerID)

	resp, err := p.call(ctx, http.MethodPost, "publish container",
		fmt.Sprintf("%s/%s/media_publish", p.baseURL, businessID), req.Auth.AccessToken, params)
	if err != nil {
		return nil, err
	}

	var published idResponse
	if err := p.api.Decode(resp, &published); err != nil {
		return nil, err
	}

	p.logger.Info("Instagram media published",
		zap.String("business_id", businessID),
		zap.String("container_id", containerID),
		zap.String("media_id", published.ID),
		zap.String("placement", string(req.Placement)))

	preview := req.Body
	if req.IsStory() {
		preview = "Story image"
	}

	return &publisher.Result{
		Platform:    p.Platform(),
		ExternalID:  published.ID,
		Preview:     util.Preview(preview, 80),
		PublishedAt: p.now(),
		Raw:         json.RawMessage(resp.Body),
	}, nil
}

func (p *InstagramPublisher) createContainer(ctx context.Context, businessID string, req publisher.Request) (string, error) {
	params := url.Values{}
	params.Set("image_url", req.Media[0].URL)
	if req.IsStory() {
		params.Set("media_type", "STORIES")
	} else if req.Body != "" {
		params.Set("caption", req.Body)
	}

	resp, err := p.call(ctx, http.MethodPost, "create container",
		fmt.Sprintf("%s/%s/media", p.baseURL, businessID), req.Auth.AccessToken, params)
	if err != nil {
		return "", err
	}

	var container idResponse
	if err := p.api.Decode(resp, &container); err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", publisher.NewError(publisher.KindTransient, p.Platform(), "create container", "response did not include a container id")
	}

	return container.ID, nil
}

// waitForContainer polls the container status with a fixed delay. Running
// out of attempts is a permanent error rather than an open-ended wait.
func (p *InstagramPublisher) waitForContainer(ctx context.Context, containerID, token string) error {
	params := url.Values{}
	params.Set("fields", "status_code,status")

	for attempt := 1; attempt <= p.pollAttempts; attempt++ {
		resp, err := p.call(ctx, http.MethodGet, "check container status",
			fmt.Sprintf("%s/%s", p.baseURL, containerID), token, params)
		if err != nil {
			return err
		}

		var status containerStatusResponse
		if err := p.api.Decode(resp, &status); err != nil {
			return err
		}

		switch status.StatusCode {
		case statusFinished, statusPublished:
			return nil
		case statusError, statusExpired:
			msg := fmt.Sprintf("media container %s is in %s state", containerID, status.StatusCode)
			if status.Status != "" {
				msg += ": " + status.Status
			}
			return publisher.NewError(publisher.KindPermanent, p.Platform(), "check container status", msg)
		}

		p.logger.Debug("Instagram container not ready",
			zap.String("container_id", containerID),
			zap.String("status_code", status.StatusCode),
			zap.Int("attempt", attempt))

		if attempt == p.pollAttempts {
			break
		}

		timer := time.NewTimer(p.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &publisher.Error{Kind: publisher.KindTransient, Platform: p.Platform(), Op: "check container status", Err: ctx.Err()}
		case <-timer.C:
		}
	}

	return publisher.NewError(publisher.KindPermanent, p.Platform(), "check container status",
		fmt.Sprintf("media container %s not ready after %d attempts", containerID, p.pollAttempts))
}

func (p *InstagramPublisher) call(ctx context.Context, method, op, endpoint, token string, params url.Values) (*publisher.APIResponse, error) {
	headers := map[string]string{"Authorization": "Bearer " + token}

	resp, err := p.api.DoForm(ctx, method, endpoint, headers, params)
	if err != nil {
		return nil, err
	}
	if resp.OK() {
		return resp, nil
	}

	pe := &publisher.Error{
		Kind:       publisher.KindForStatus(resp.StatusCode),
		Platform:   p.Platform(),
		Op:         op,
		StatusCode: resp.StatusCode,
	}

	var envelope graphErrorResponse
	if err := json.Unmarshal(resp.Body, &envelope); err == nil && envelope.Error.Message != "" {
		pe.Message = envelope.Error.Message
		pe.Type = envelope.Error.Type
		pe.Code = envelope.Error.Code
		if envelope.Error.Code == 190 || (envelope.Error.Type == "OAuthException" && envelope.Error.Code != 4 && envelope.Error.Code != 9) {
			pe.Kind = publisher.KindAuth
		}
	} else {
		pe.Message = util.Preview(string(resp.Body), 300)
	}

	return nil, pe
}
