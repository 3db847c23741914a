package eventbus

import (
	"log/slog"
	"time"
)

const (
	defaultWorkers       = 4
	defaultQueueSize     = 256
	defaultMaxRetries    = 3
	defaultRetryInterval = 5 * time.Second
	defaultRetryBatch    = 100
	defaultPendingGrace  = 30 * time.Second
)

// Config holds the settings shared by Bus, Dispatcher and Sweeper.
type Config struct {
	Workers   int
	QueueSize int

	// HandlerTimeout is the deadline set on the context passed to each
	// handler. Handlers must honor ctx for it to take effect; one that ignores
	// ctx keeps its worker busy. Zero disables it.
	HandlerTimeout time.Duration

	// MaxRetries is the number of retry attempts a FAILED record gets before
	// it is dead-lettered.
	MaxRetries    int
	RetryInterval time.Duration
	RetryBatch    int

	// PendingGrace is how long a PENDING record may sit untouched before the
	// sweeper assumes its dispatch was lost and replays it.
	PendingGrace time.Duration

	Logger  *slog.Logger
	Metrics Metrics
	Deduper Deduper
	Clock   Clock
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.RetryBatch <= 0 {
		c.RetryBatch = defaultRetryBatch
	}
	if c.PendingGrace <= 0 {
		c.PendingGrace = defaultPendingGrace
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	return c
}

// Option configures a Bus.
type Option func(*Config)

// WithWorkers sets the number of dispatcher goroutines.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithQueueSize sets the capacity of the dispatch queue. When the queue is
// full Raise still succeeds and the record waits for pending recovery.
func WithQueueSize(n int) Option {
	return func(c *Config) {
		c.QueueSize = n
	}
}

// WithHandlerTimeout sets a deadline on the context each handler receives.
// The dispatcher does not abandon a handler that ignores its context.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandlerTimeout = d
	}
}

// WithMaxRetries sets the retry budget. Zero dead-letters on the first sweep.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithRetryInterval sets the sweeper period.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Config) {
		c.RetryInterval = d
	}
}

// WithRetryBatch caps the number of records each sweep lists per status.
func WithRetryBatch(n int) Option {
	return func(c *Config) {
		c.RetryBatch = n
	}
}

// WithPendingGrace sets the age after which a PENDING record is replayed.
func WithPendingGrace(d time.Duration) Option {
	return func(c *Config) {
		c.PendingGrace = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithDeduper enables the delivered-marker check in front of every handler.
func WithDeduper(d Deduper) Option {
	return func(c *Config) {
		c.Deduper = d
	}
}

func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}
