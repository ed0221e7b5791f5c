package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/rpsouza441/ticker-monitor/pkg/errors"
)

type Config struct {
	App           AppConfig
	Scheduler     SchedulerConfig
	Fetch         FetchConfig
	Postgres      PostgresConfig
	RabbitMQ      RabbitMQConfig
	Provider      ProviderConfig
	Health        HealthConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name      string `envconfig:"APP_NAME" default:"ticker-monitor"`
	Env       string `envconfig:"APP_ENV" default:"development"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

type SchedulerConfig struct {
	// ExecutionTime is the daily HH:MM wall clock (in Timezone) at which
	// a job becomes due, Monday through Friday.
	ExecutionTime    string        `envconfig:"EXECUTION_TIME" default:"16:30"`
	Timezone         string        `envconfig:"TIMEZONE" default:"America/Sao_Paulo"`
	MonitoredTickers string        `envconfig:"MONITORED_TICKERS"`
	RequeueDelay     time.Duration `envconfig:"REQUEUE_DELAY" default:"30s"`
	ShutdownGrace    time.Duration `envconfig:"SHUTDOWN_GRACE" default:"30s"`
}

type FetchConfig struct {
	BatchSize         int           `envconfig:"BATCH_SIZE" default:"10"`
	InterBatchDelayMs int           `envconfig:"INTER_BATCH_DELAY_MS" default:"300"`
	BackoffBase       int           `envconfig:"BACKOFF_BASE" default:"2"`
	BackoffMaxSeconds int           `envconfig:"BACKOFF_MAX_SECONDS" default:"3600"`
	MaxRetries        int           `envconfig:"MAX_RETRIES" default:"10"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

func (c FetchConfig) InterBatchDelay() time.Duration {
	return time.Duration(c.InterBatchDelayMs) * time.Millisecond
}

type PostgresConfig struct {
	URL string `envconfig:"DATABASE_URL"`
	// PoolSize base connections plus MaxOverflow burst capacity
	PoolSize    int `envconfig:"DB_POOL_SIZE" default:"10"`
	MaxOverflow int `envconfig:"DB_MAX_OVERFLOW" default:"20"`
}

type RabbitMQConfig struct {
	URL        string `envconfig:"RABBITMQ_URL"`
	Queue      string `envconfig:"RABBITMQ_QUEUE" default:"ticker_updates"`
	DLQ        string `envconfig:"RABBITMQ_DLQ" default:"ticker_updates_dlq"`
	MaxRetries int    `envconfig:"RABBITMQ_MAX_RETRIES" default:"10"`
}

type ProviderConfig struct {
	BaseURL           string `envconfig:"QUOTE_PROVIDER_URL" default:"https://query1.finance.yahoo.com"`
	APIKey            string `envconfig:"QUOTE_PROVIDER_API_KEY"`
	RequestsPerMinute int    `envconfig:"QUOTE_PROVIDER_RPM" default:"60"`
}

type HealthConfig struct {
	Addr string `envconfig:"HEALTH_ADDR" default:":8080"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables.
// It first tries to load a .env file (useful for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrConfig, err.Error())
	}

	return &cfg, nil
}

// Validate checks the settings a running collector cannot live without.
// Called once at startup; the snapshot is immutable afterwards.
func (c *Config) Validate() error {
	if c.Postgres.URL == "" {
		return errors.Wrap(errors.ErrConfig, "DATABASE_URL is required")
	}
	if c.RabbitMQ.URL == "" {
		return errors.Wrap(errors.ErrConfig, "RABBITMQ_URL is required")
	}
	if len(c.Symbols()) == 0 {
		return errors.Wrap(errors.ErrConfig, "MONITORED_TICKERS is required")
	}
	if _, _, err := c.Scheduler.ExecutionClock(); err != nil {
		return err
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return err
	}
	if c.Fetch.BatchSize < 1 {
		return errors.Wrap(errors.ErrConfig, "BATCH_SIZE must be at least 1")
	}
	return nil
}

// Symbols returns the configured symbol list, trimmed and without blanks.
func (c *Config) Symbols() []string {
	parts := strings.Split(c.Scheduler.MonitoredTickers, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

// Location resolves the configured IANA timezone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrConfig, "invalid TIMEZONE %q", c.Timezone)
	}
	return loc, nil
}

// ExecutionClock parses ExecutionTime into hour and minute.
func (c SchedulerConfig) ExecutionClock() (hour, minute int, err error) {
	t, parseErr := time.Parse("15:04", c.ExecutionTime)
	if parseErr != nil {
		return 0, 0, errors.Wrapf(errors.ErrConfig, "invalid EXECUTION_TIME %q", c.ExecutionTime)
	}
	return t.Hour(), t.Minute(), nil
}
