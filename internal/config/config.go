// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Event store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"choreography"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr    string `env:"GRPC_ADDR" envDefault:":9090"`

	EventStore  string `env:"EVENT_STORE" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"event_logs.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	// RedisAddr enables the delivery marker store when set.
	RedisAddr string `env:"REDIS_ADDR"`

	OTelEnabled  bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Environment  string  `env:"DEPLOYMENT_ENV" envDefault:"local"`
	SampleRatio  float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`

	Workers        int           `env:"WORKERS" envDefault:"4"`
	QueueSize      int           `env:"QUEUE_SIZE" envDefault:"256"`
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
	RetryBatch     int           `env:"RETRY_BATCH_SIZE" envDefault:"100"`
	PendingGrace   time.Duration `env:"PENDING_GRACE" envDefault:"30s"`
	HandlerTimeout time.Duration `env:"HANDLER_TIMEOUT" envDefault:"10s"`

	// PaymentLimit is the largest amount the simulated gateway approves.
	PaymentLimit string `env:"PAYMENT_LIMIT" envDefault:"1000000"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.EventStore {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when EVENT_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EVENT_STORE %q", c.EventStore))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("WORKERS must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("MAX_RETRIES cannot be negative"))
	}
	if c.RetryInterval <= 0 {
		errs = append(errs, errors.New("RETRY_INTERVAL must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
