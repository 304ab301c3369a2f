package config

import (
	"fmt"
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/herald/pkg/logger"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logger     logger.Config    `yaml:"logger"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Queue      QueueConfig      `yaml:"queue"`
	Storage    StorageConfig    `yaml:"storage"`
	Publishers PublishersConfig `yaml:"publishers"`
	Alert      AlertConfig      `yaml:"alert"`
	Sentry     SentryConfig     `yaml:"sentry"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// TriggerSecret guards the run endpoint with a bearer token when set.
	TriggerSecret string `yaml:"trigger_secret"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
	// AutoMigrate runs schema migration when the server starts.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// SchedulerConfig drives the optional in-process trigger. External cron
// callers hit the HTTP endpoint instead.
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
	Source   string `yaml:"source"`
}

type QueueConfig struct {
	WorkerName        string   `yaml:"worker_name"`
	LeadWindow        string   `yaml:"lead_window"`
	BatchSize         int      `yaml:"batch_size"`
	StuckTimeout      string   `yaml:"stuck_timeout"`
	StoryGrace        string   `yaml:"story_grace"`
	MaxAttempts       int      `yaml:"max_attempts"`
	MaxVariantRetries int      `yaml:"max_variant_retries"`
	ShortRetryDelay   string   `yaml:"short_retry_delay"`
	Backoff           []string `yaml:"backoff"`
}

type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	SignedURLTTL    string `yaml:"signed_url_ttl"`
}

type PublishersConfig struct {
	Facebook       FacebookConfig       `yaml:"facebook"`
	Instagram      InstagramConfig      `yaml:"instagram"`
	GoogleBusiness GoogleBusinessConfig `yaml:"google_business"`
}

type FacebookConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIVersion    string `yaml:"api_version"`
	RatePerSecond int    `yaml:"rate_per_second"`
}

type InstagramConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIVersion    string `yaml:"api_version"`
	RatePerSecond int    `yaml:"rate_per_second"`
	PollInterval  string `yaml:"poll_interval"`
	PollAttempts  int    `yaml:"poll_attempts"`
}

type GoogleBusinessConfig struct {
	BaseURL       string `yaml:"base_url"`
	RatePerSecond int    `yaml:"rate_per_second"`
	LanguageCode  string `yaml:"language_code"`
}

// AlertConfig configures operational email. Without tokens alerts are skipped.
type AlertConfig struct {
	PostmarkServerToken  string `yaml:"postmark_server_token"`
	PostmarkAccountToken string `yaml:"postmark_account_token"`
	From                 string `yaml:"from"`
	To                   string `yaml:"to"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5334
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Database.Type == "" {
		c.Database.Type = "postgres"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.TimeZone == "" {
		c.Database.TimeZone = "UTC"
	}
	if c.Scheduler.Interval == "" {
		c.Scheduler.Interval = "5m"
	}
	if c.Scheduler.Source == "" {
		c.Scheduler.Source = "scheduler"
	}

	q := &c.Queue
	if q.WorkerName == "" {
		q.WorkerName = "publish-queue"
	}
	if q.LeadWindow == "" {
		q.LeadWindow = "5m"
	}
	if q.BatchSize == 0 {
		q.BatchSize = 20
	}
	if q.StuckTimeout == "" {
		q.StuckTimeout = "15m"
	}
	if q.StoryGrace == "" {
		q.StoryGrace = "5m"
	}
	if q.MaxAttempts == 0 {
		q.MaxAttempts = 3
	}
	if q.MaxVariantRetries == 0 {
		q.MaxVariantRetries = 3
	}
	if q.ShortRetryDelay == "" {
		q.ShortRetryDelay = "30s"
	}
	if len(q.Backoff) == 0 {
		q.Backoff = []string{"5m", "15m", "30m"}
	}

	if c.Storage.SignedURLTTL == "" {
		c.Storage.SignedURLTTL = "1h"
	}

	fb := &c.Publishers.Facebook
	if fb.BaseURL == "" {
		fb.BaseURL = "https://graph.facebook.com"
	}
	if fb.APIVersion == "" {
		fb.APIVersion = "v19.0"
	}
	if fb.RatePerSecond == 0 {
		fb.RatePerSecond = 10
	}

	ig := &c.Publishers.Instagram
	if ig.BaseURL == "" {
		ig.BaseURL = "https://graph.facebook.com"
	}
	if ig.APIVersion == "" {
		ig.APIVersion = "v19.0"
	}
	if ig.RatePerSecond == 0 {
		ig.RatePerSecond = 10
	}
	if ig.PollInterval == "" {
		ig.PollInterval = "2s"
	}
	if ig.PollAttempts == 0 {
		ig.PollAttempts = 10
	}

	gb := &c.Publishers.GoogleBusiness
	if gb.BaseURL == "" {
		gb.BaseURL = "https://mybusiness.googleapis.com"
	}
	if gb.RatePerSecond == 0 {
		gb.RatePerSecond = 5
	}
	if gb.LanguageCode == "" {
		gb.LanguageCode = "en-US"
	}
}

// Validate checks that every duration string parses.
func (c *Config) Validate() error {
	durations := map[string]string{
		"scheduler.interval":                 c.Scheduler.Interval,
		"queue.lead_window":                  c.Queue.LeadWindow,
		"queue.stuck_timeout":                c.Queue.StuckTimeout,
		"queue.story_grace":                  c.Queue.StoryGrace,
		"queue.short_retry_delay":            c.Queue.ShortRetryDelay,
		"storage.signed_url_ttl":             c.Storage.SignedURLTTL,
		"publishers.instagram.poll_interval": c.Publishers.Instagram.PollInterval,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	}

	if _, err := c.Queue.BackoffTable(); err != nil {
		return err
	}

	return nil
}

// BackoffTable parses the retry delays, in attempt order.
func (q QueueConfig) BackoffTable() ([]time.Duration, error) {
	table := make([]time.Duration, 0, len(q.Backoff))
	for i, raw := range q.Backoff {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid queue.backoff[%d] %q: %w", i, raw, err)
		}
		table = append(table, d)
	}
	return table, nil
}

// MustDuration parses a value that Validate already accepted.
func MustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("config: unvalidated duration %q", value))
	}
	return d
}
