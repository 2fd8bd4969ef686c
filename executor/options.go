package executor

import (
	"time"

	"github.com/effective-security/toolplan/plan"
)

// Option is a function that can be used to modify the behavior of the
// Executor Config.
type Option func(*Config)

// Config holds the run policy of an Executor.
type Config struct {
	// MaxSteps caps the number of steps a plan may carry.
	MaxSteps int

	// Retry re-attempts steps whose failures are transient. The zero
	// value performs a single attempt.
	Retry RetryPolicy

	// Callback receives run and step lifecycle events.
	Callback Callback
}

// RetryPolicy controls re-attempts of connection and timeout failures.
// Remote faults and protocol violations are never retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per step; values below
	// one mean a single attempt.
	MaxAttempts int
	// Backoff is slept between attempts.
	Backoff time.Duration
}

// NewConfig creates a Config with defaults applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxSteps: plan.DefaultMaxSteps,
		Retry:    RetryPolicy{MaxAttempts: 1},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Apply returns a copy of the Config with the given options applied.
func (c *Config) Apply(opts ...Option) *Config {
	cfg := *c
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxSteps is an option that caps plan length.
func WithMaxSteps(n int) Option {
	return func(o *Config) {
		if n > 0 {
			o.MaxSteps = n
		}
	}
}

// WithRetry is an option that sets the retry policy for transient step
// failures.
func WithRetry(policy RetryPolicy) Option {
	return func(o *Config) {
		o.Retry = policy
	}
}

// WithCallback is an option that sets the lifecycle callback.
func WithCallback(cb Callback) Option {
	return func(o *Config) {
		o.Callback = cb
	}
}
