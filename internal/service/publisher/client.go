package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// APIClient is the JSON-over-HTTP plumbing shared by the platform publishers.
type APIClient struct {
	platform string
	client   *http.Client
	limiter  ratelimit.Limiter
	logger   *zap.Logger
}

// APIResponse is a raw provider response.
type APIResponse struct {
	StatusCode int
	Body       []byte
}

func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func NewAPIClient(platform string, ratePerSecond int, logger *zap.Logger) *APIClient {
	limiter := ratelimit.NewUnlimited()
	if ratePerSecond > 0 {
		limiter = ratelimit.New(ratePerSecond)
	}

	return &APIClient{
		platform: platform,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// WithHTTPClient swaps the underlying client, mainly for tests.
func (c *APIClient) WithHTTPClient(client *http.Client) *APIClient {
	c.client = client
	return c
}

// Do sends payload as JSON (or no body when nil) and returns the raw response.
// Transport failures come back as transient *Error values.
func (c *APIClient) Do(ctx context.Context, method, endpoint string, headers map[string]string, payload any) (*APIResponse, error) {
	var body io.Reader
	contentType := ""
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: KindPermanent, Platform: c.platform, Op: "encode request", Err: err}
		}
		body = bytes.NewReader(jsonData)
		contentType = "application/json"
	}

	return c.send(ctx, method, endpoint, headers, contentType, body)
}

// DoForm sends params form-encoded in the body, or in the query string for
// GET requests. Credentials belong in headers, never in params.
func (c *APIClient) DoForm(ctx context.Context, method, endpoint string, headers map[string]string, params url.Values) (*APIResponse, error) {
	if method == http.MethodGet {
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
		return c.send(ctx, method, endpoint, headers, "", nil)
	}

	return c.send(ctx, method, endpoint, headers, "application/x-www-form-urlencoded", strings.NewReader(params.Encode()))
}

func (c *APIClient) send(ctx context.Context, method, endpoint string, headers map[string]string, contentType string, body io.Reader) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &Error{Kind: KindPermanent, Platform: c.platform, Op: "build request", Err: redact(err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.limiter.Take()

	resp, err := c.client.Do(req)
	if err != nil {
		err = redact(err)
		c.logger.Warn("Platform request failed",
			zap.String("platform", c.platform),
			zap.String("method", method),
			zap.Error(err))
		return nil, &Error{Kind: KindTransient, Platform: c.platform, Op: "send request", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Platform: c.platform, Op: "read response", Err: err}
	}

	c.logger.Debug("Platform API response",
		zap.String("platform", c.platform),
		zap.String("method", method),
		zap.Int("status_code", resp.StatusCode))

	return &APIResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

// redact drops the query string from URL errors so request parameters never
// reach error text, job rows or alert emails.
func redact(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}

	target := urlErr.URL
	if u, perr := url.Parse(target); perr == nil {
		u.RawQuery = ""
		u.User = nil
		target = u.String()
	} else if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}

	return fmt.Errorf("%s %q: %w", urlErr.Op, target, urlErr.Err)
}

// Decode unmarshals a successful response body into out.
func (c *APIClient) Decode(resp *APIResponse, out any) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &Error{
			Kind:       KindTransient,
			Platform:   c.platform,
			Op:         "decode response",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to parse response: %w", err),
		}
	}
	return nil
}
