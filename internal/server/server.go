package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/herald/internal/config"
	"github.com/ifuryst/herald/internal/service"
	"github.com/ifuryst/herald/internal/service/queue"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Queue     service.QueueRunner
	Scheduler *service.Scheduler
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	poller, err := service.NewPublishQueue(ctx, cfg, db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize publish queue: %w", err)
	}

	srv := New(cfg, logger, poller)
	srv.DB = db
	return srv, nil
}

// New builds the HTTP server around an already assembled queue runner.
func New(cfg *config.Config, logger *zap.Logger, runner service.QueueRunner) *Server {
	gin.SetMode(cfg.Server.Mode)

	srv := &Server{
		Config:    cfg,
		Router:    gin.New(),
		Logger:    logger,
		Queue:     runner,
		Scheduler: service.NewScheduler(&cfg.Scheduler, config.MustDuration(cfg.Queue.LeadWindow), logger, runner),
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	s.Router.Use(gin.Recovery())

	s.Router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.Logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	})
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	api := s.Router.Group("/api/v1")
	{
		publishQueue := api.Group("/publish-queue")
		publishQueue.Use(TriggerAuthMiddleware(s.Config.Server.TriggerSecret, s.Logger))
		{
			publishQueue.POST("/run", s.handleRunPublishQueue)
		}
	}
}

type runRequest struct {
	LeadWindowMinutes *int   `json:"lead_window_minutes"`
	Source            string `json:"source"`
}

func (s *Server) handleRunPublishQueue(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
			return
		}
	}

	lead := config.MustDuration(s.Config.Queue.LeadWindow)
	if req.LeadWindowMinutes != nil {
		if *req.LeadWindowMinutes < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "lead_window_minutes must not be negative"})
			return
		}
		lead = time.Duration(*req.LeadWindowMinutes) * time.Minute
	}

	source := req.Source
	if source == "" {
		source = "http"
	}

	// A client disconnect must not cancel a job that already holds its lock.
	ctx := context.WithoutCancel(c.Request.Context())

	processed, err := s.Queue.Run(ctx, queue.RunOptions{LeadWindow: lead, Source: source})
	if err != nil {
		s.Logger.Error("Publish queue run failed", zap.String("source", source), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "processed": processed})
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.Scheduler.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
