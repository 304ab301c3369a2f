package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/herald/internal/config"
	"github.com/ifuryst/herald/internal/repository"
	"github.com/ifuryst/herald/internal/service/alert"
	"github.com/ifuryst/herald/internal/service/media"
	"github.com/ifuryst/herald/internal/service/notify"
	"github.com/ifuryst/herald/internal/service/publisher"
	"github.com/ifuryst/herald/internal/service/publisher/facebook"
	"github.com/ifuryst/herald/internal/service/publisher/gbp"
	"github.com/ifuryst/herald/internal/service/publisher/instagram"
	"github.com/ifuryst/herald/internal/service/queue"
)

// NewPublishQueue assembles the publish queue poller from configuration.
func NewPublishQueue(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*queue.Poller, error) {
	repo := repository.NewRepository(db, logger)

	registry, err := NewPublisherRegistry(&cfg.Publishers, logger)
	if err != nil {
		return nil, err
	}

	signer, err := media.NewS3Signer(ctx, media.S3Config{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		ForcePathStyle:  cfg.Storage.ForcePathStyle,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media signer: %w", err)
	}
	resolver := media.NewResolver(repo, signer, config.MustDuration(cfg.Storage.SignedURLTTL), logger)

	alerter := alert.New(alert.Config{
		PostmarkServerToken:  cfg.Alert.PostmarkServerToken,
		PostmarkAccountToken: cfg.Alert.PostmarkAccountToken,
		From:                 cfg.Alert.From,
		To:                   cfg.Alert.To,
	}, logger)

	backoff, err := cfg.Queue.BackoffTable()
	if err != nil {
		return nil, err
	}

	lifecycle := queue.NewLifecycle(
		repo,
		registry,
		resolver,
		notify.NewNotifier(repo, logger),
		alerter,
		queue.LifecycleOptions{
			StoryGrace:        config.MustDuration(cfg.Queue.StoryGrace),
			MaxVariantRetries: cfg.Queue.MaxVariantRetries,
			ShortRetryDelay:   config.MustDuration(cfg.Queue.ShortRetryDelay),
			MaxAttempts:       cfg.Queue.MaxAttempts,
			Backoff:           backoff,
		},
		logger,
	)

	return queue.NewPoller(repo, lifecycle, queue.PollerOptions{
		WorkerName:        cfg.Queue.WorkerName,
		BatchSize:         cfg.Queue.BatchSize,
		StuckTimeout:      config.MustDuration(cfg.Queue.StuckTimeout),
		DefaultLeadWindow: config.MustDuration(cfg.Queue.LeadWindow),
	}, logger), nil
}

// NewPublisherRegistry registers one publisher per supported platform.
func NewPublisherRegistry(cfg *config.PublishersConfig, logger *zap.Logger) (*publisher.Registry, error) {
	registry := publisher.NewRegistry(logger)

	publishers := []publisher.Publisher{
		facebook.NewFacebookPublisher(facebook.Config{
			BaseURL:       cfg.Facebook.BaseURL,
			APIVersion:    cfg.Facebook.APIVersion,
			RatePerSecond: cfg.Facebook.RatePerSecond,
		}, logger),
		instagram.NewInstagramPublisher(instagram.Config{
			BaseURL:       cfg.Instagram.BaseURL,
			APIVersion:    cfg.Instagram.APIVersion,
			RatePerSecond: cfg.Instagram.RatePerSecond,
			PollInterval:  config.MustDuration(cfg.Instagram.PollInterval),
			PollAttempts:  cfg.Instagram.PollAttempts,
		}, logger),
		gbp.NewGBPPublisher(gbp.Config{
			BaseURL:       cfg.GoogleBusiness.BaseURL,
			RatePerSecond: cfg.GoogleBusiness.RatePerSecond,
			LanguageCode:  cfg.GoogleBusiness.LanguageCode,
		}, logger),
	}

	for _, p := range publishers {
		if err := registry.Register(p); err != nil {
			return nil, fmt.Errorf("failed to register %s publisher: %w", p.Platform(), err)
		}
	}

	return registry, nil
}
