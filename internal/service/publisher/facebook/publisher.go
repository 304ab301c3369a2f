package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/service/publisher"
	"github.com/ifuryst/herald/pkg/util"
)

// Config points the publisher at the Graph API.
type Config struct {
	BaseURL       string
	APIVersion    string
	RatePerSecond int
}

// FacebookPublisher posts to Facebook Pages through the Graph API.
type FacebookPublisher struct {
	logger  *zap.Logger
	api     *publisher.APIClient
	baseURL string
	now     func() time.Time
}

// Graph API error envelope
type graphErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

type graphPostResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type photoStoryResponse struct {
	Success bool   `json:"success"`
	PostID  string `json:"post_id"`
}

func NewFacebookPublisher(cfg Config, logger *zap.Logger) *FacebookPublisher {
	return &FacebookPublisher{
		logger:  logger,
		api:     publisher.NewAPIClient(publisher.PlatformFacebook, cfg.RatePerSecond, logger),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/") + "/" + cfg.APIVersion,
		now:     time.Now,
	}
}

func (p *FacebookPublisher) Platform() string {
	return publisher.PlatformFacebook
}

func (p *FacebookPublisher) Publish(ctx context.Context, req publisher.Request) (*publisher.Result, error) {
	pageID := req.Metadata.PageID
	if pageID == "" {
		return nil, publisher.NewError(publisher.KindPermanent, p.Platform(), "validate", "missing page id")
	}

	if req.IsStory() {
		return p.publishStory(ctx, pageID, req)
	}

	if len(req.Media) > 0 {
		return p.publishPhoto(ctx, pageID, req)
	}

	return p.publishText(ctx, pageID, req)
}

func (p *FacebookPublisher) publishText(ctx context.Context, pageID string, req publisher.Request) (*publisher.Result, error) {
	params := url.Values{}
	params.Set("message", req.Body)

	resp, err := p.post(ctx, "publish feed post", fmt.Sprintf("%s/%s/feed", p.baseURL, pageID), req.Auth.AccessToken, params)
	if err != nil {
		return nil, err
	}

	var post graphPostResponse
	if err := p.api.Decode(resp, &post); err != nil {
		return nil, err
	}

	return p.result(post.ID, req.Body, resp.Body), nil
}

func (p *FacebookPublisher) publishPhoto(ctx context.Context, pageID string, req publisher.Request) (*publisher.Result, error) {
	params := url.Values{}
	params.Set("url", req.Media[0].URL)
	if req.Body != "" {
		params.Set("caption", req.Body)
	}

	resp, err := p.post(ctx, "publish photo post", fmt.Sprintf("%s/%s/photos", p.baseURL, pageID), req.Auth.AccessToken, params)
	if err != nil {
		return nil, err
	}

	var post graphPostResponse
	if err := p.api.Decode(resp, &post); err != nil {
		return nil, err
	}

	id := post.PostID
	if id == "" {
		id = post.ID
	}

	return p.result(id, req.Body, resp.Body), nil
}

// publishStory uploads the image unpublished and then attaches it as a
// page photo story.
func (p *FacebookPublisher) publishStory(ctx context.Context, pageID string, req publisher.Request) (*publisher.Result, error) {
	if len(req.Media) != 1 {
		return nil, publisher.NewError(publisher.KindPermanent, p.Platform(), "validate",
			fmt.Sprintf("story requires exactly one image, got %d", len(req.Media)))
	}

	upload := url.Values{}
	upload.Set("url", req.Media[0].URL)
	upload.Set("published", "false")

	resp, err := p.post(ctx, "upload story photo", fmt.Sprintf("%s/%s/photos", p.baseURL, pageID), req.Auth.AccessToken, upload)
	if err != nil {
		return nil, err
	}

	var photo graphPostResponse
	if err := p.api.Decode(resp, &photo); err != nil {
		return nil, err
	}
	if photo.ID == "" {
		return nil, publisher.NewError(publisher.KindTransient, p.Platform(), "upload story photo", "response did not include a photo id")
	}

	story := url.Values{}
	story.Set("photo_id", photo.ID)

	resp, err = p.post(ctx, "publish photo story", fmt.Sprintf("%s/%s/photo_stories", p.baseURL, pageID), req.Auth.AccessToken, story)
	if err != nil {
		return nil, err
	}

	var published photoStoryResponse
	if err := p.api.Decode(resp, &published); err != nil {
		return nil, err
	}

	id := published.PostID
	if id == "" {
		id = photo.ID
	}

	p.logger.Info("Facebook story published",
		zap.String("page_id", pageID),
		zap.String("post_id", id))

	return p.result(id, "Story image", resp.Body), nil
}

func (p *FacebookPublisher) post(ctx context.Context, op, endpoint, token string, params url.Values) (*publisher.APIResponse, error) {
	resp, err := p.api.DoForm(ctx, http.MethodPost, endpoint, bearer(token), params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, p.parseError(op, resp)
	}
	return resp, nil
}

// parseError turns a non-2xx Graph response into a classified error.
func (p *FacebookPublisher) parseError(op string, resp *publisher.APIResponse) error {
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
		if isAuthError(envelope.Error.Type, envelope.Error.Code) {
			pe.Kind = publisher.KindAuth
		} else if isThrottled(envelope.Error.Code) {
			pe.Kind = publisher.KindTransient
		}
	} else {
		pe.Message = util.Preview(string(resp.Body), 300)
	}

	return pe
}

// https://developers.facebook.com/docs/graph-api/guides/error-handling
func isAuthError(errType string, code int) bool {
	if errType == "OAuthException" && code != 4 && code != 17 && code != 32 {
		return true
	}
	switch {
	case code == 102, code == 190, code == 10:
		return true
	case code >= 200 && code <= 299:
		return true
	}
	return false
}

func isThrottled(code int) bool {
	switch code {
	case 1, 2, 4, 17, 32, 341, 613:
		return true
	}
	return false
}

func (p *FacebookPublisher) result(id, body string, raw []byte) *publisher.Result {
	return &publisher.Result{
		Platform:    p.Platform(),
		ExternalID:  id,
		Preview:     util.Preview(body, 80),
		PublishedAt: p.now(),
		Raw:         json.RawMessage(raw),
	}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
