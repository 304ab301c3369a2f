package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"
	"go.uber.org/zap"
)

var ErrFailedToSend = errors.New("failed to send alert email")

// Message is one operational alert.
type Message struct {
	Subject string
	Body    string
	Tag     string
}

// Alerter delivers operational alerts. Delivery is best-effort.
type Alerter interface {
	Alert(ctx context.Context, msg Message) error
}

type Config struct {
	PostmarkServerToken  string
	PostmarkAccountToken string
	From                 string
	To                   string
}

func (c Config) Enabled() bool {
	return c.PostmarkServerToken != "" && c.From != "" && c.To != ""
}

// New returns a Postmark alerter, or a no-op alerter when email is not configured.
func New(cfg Config, logger *zap.Logger, opts ...Option) Alerter {
	if !cfg.Enabled() {
		logger.Info("Alert email not configured, alerts disabled")
		return Nop{}
	}
	return NewPostmarkAlerter(cfg, logger, opts...)
}

type Option func(*postmark.Client)

// WithBaseURL points the Postmark client at another API host.
func WithBaseURL(url string) Option {
	return func(c *postmark.Client) {
		c.BaseURL = strings.TrimSuffix(url, "/")
	}
}

type PostmarkAlerter struct {
	client *postmark.Client
	from   string
	to     string
	logger *zap.Logger
}

func NewPostmarkAlerter(cfg Config, logger *zap.Logger, opts ...Option) *PostmarkAlerter {
	client := postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
	for _, opt := range opts {
		opt(client)
	}

	return &PostmarkAlerter{
		client: client,
		from:   cfg.From,
		to:     cfg.To,
		logger: logger,
	}
}

func (a *PostmarkAlerter) Alert(ctx context.Context, msg Message) error {
	resp, err := a.client.SendEmail(ctx, postmark.Email{
		From:     a.from,
		To:       a.to,
		Subject:  msg.Subject,
		Tag:      msg.Tag,
		TextBody: msg.Body,
	})
	if err != nil {
		return errors.Join(ErrFailedToSend, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSend, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}

	a.logger.Info("Alert email sent",
		zap.String("subject", msg.Subject),
		zap.String("message_id", resp.MessageID))
	return nil
}

type Nop struct{}

func (Nop) Alert(context.Context, Message) error {
	return nil
}
