package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/config"
	"github.com/ifuryst/herald/internal/service/queue"
)

// QueueRunner runs one publish queue pass.
type QueueRunner interface {
	Run(ctx context.Context, opts queue.RunOptions) (int, error)
}

// Scheduler is the optional in-process trigger for the publish queue. It is
// one more caller of the same pass the HTTP endpoint runs.
type Scheduler struct {
	config     *config.SchedulerConfig
	leadWindow time.Duration
	logger     *zap.Logger
	runner     QueueRunner
	ticker     *time.Ticker
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewScheduler(cfg *config.SchedulerConfig, leadWindow time.Duration, logger *zap.Logger, runner QueueRunner) *Scheduler {
	return &Scheduler{
		config:     cfg,
		leadWindow: leadWindow,
		logger:     logger,
		runner:     runner,
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.Interval)
	if err != nil {
		s.logger.Error("Invalid scheduler interval", zap.String("interval", s.config.Interval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting scheduler", zap.String("interval", s.config.Interval))

	s.ticker = time.NewTicker(interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runPass(ctx)

		for {
			select {
			case <-s.ticker.C:
				s.runPass(ctx)
			case <-s.stopCh:
				s.logger.Info("Scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Scheduler context cancelled")
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runPass(ctx context.Context) {
	start := time.Now()
	processed, err := s.runner.Run(ctx, queue.RunOptions{
		LeadWindow: s.leadWindow,
		Source:     s.config.Source,
	})
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("Scheduled publish pass failed",
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}

	s.logger.Info("Scheduled publish pass completed",
		zap.Int("processed", processed),
		zap.Duration("duration", duration))
}
