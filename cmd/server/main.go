package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/config"
	"github.com/ifuryst/herald/internal/server"
	"github.com/ifuryst/herald/internal/service"
	"github.com/ifuryst/herald/internal/service/queue"
	"github.com/ifuryst/herald/pkg/logger"
)

var (
	configPath string
	leadWindow time.Duration
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "herald",
	Short: "Herald - scheduled social publishing worker",
	Long:  `Herald publishes scheduled content items to Facebook, Instagram and Google Business Profile, with locking, retries and failure reporting.`,
	RunE:  runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP trigger endpoint and optional in-process scheduler",
	RunE:  runServer,
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single publish queue pass and exit",
	RunE:  runOnce,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Herald %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")
	runOnceCmd.Flags().DurationVar(&leadWindow, "lead-window", 0, "lead window override (defaults to queue.lead_window)")
	rootCmd.AddCommand(serveCmd, runOnceCmd, migrateCmd, versionCmd)
}

// bootstrap loads configuration and sets up logging and error reporting.
func bootstrap() (*config.Config, *zap.Logger, func(), error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     version,
		}); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	cleanup := func() {
		sentry.Flush(2 * time.Second)
		_ = appLogger.Sync()
	}

	return cfg, appLogger, cleanup, nil
}

func runServer(*cobra.Command, []string) error {
	cfg, appLogger, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	appLogger.Info("Starting Herald server", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.NewServer(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go func() {
		if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, appLogger, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return err
	}

	poller, err := service.NewPublishQueue(ctx, cfg, db, appLogger)
	if err != nil {
		return err
	}

	processed, err := poller.Run(ctx, queue.RunOptions{LeadWindow: leadWindow, Source: "cli"})
	if err != nil {
		return err
	}

	appLogger.Info("Publish queue pass finished", zap.Int("processed", processed))
	return nil
}

func runMigrate(*cobra.Command, []string) error {
	cfg, appLogger, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	cfg.Database.AutoMigrate = false
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return err
	}

	if err := service.Migrate(db); err != nil {
		return err
	}

	appLogger.Info("Database schema is up to date")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
