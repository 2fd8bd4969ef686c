package planfactory

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/executor"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	// Providers specifies the list of tool providers plans may call
	Providers []*ProviderConfig `json:"providers" yaml:"providers" validate:"dive"`
	// DefaultProvider specifies the provider serving tools that do not
	// name one
	DefaultProvider string `json:"default_provider,omitempty" yaml:"default_provider,omitempty"`
	// Format specifies the plan wire format: json, yaml, or toml
	Format string `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=json yaml toml"`
	// Executor specifies the run policy
	Executor ExecutorConfig `json:"executor,omitempty" yaml:"executor,omitempty"`
	// Tools declares catalog entries literally; entries reflected from
	// Go argument structs are registered through the tool providers
	Tools []*catalog.Entry `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// ProviderConfig for one MCP tool provider
type ProviderConfig struct {
	Name    string `json:"name" yaml:"name" validate:"required"`
	BaseURL string `json:"base_url" yaml:"base_url" validate:"required,url"`
	// Headers are added to every request sent to the provider, such as
	// authorization
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ExecutorConfig specifies the run policy
type ExecutorConfig struct {
	// MaxSteps caps plan length; zero uses the engine default
	MaxSteps int `json:"max_steps,omitempty" yaml:"max_steps,omitempty" validate:"omitempty,gte=1"`
	// CallTimeout bounds one tool call, as a Go duration string
	CallTimeout string `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty"`
	// Retry re-attempts steps that failed on connection or timeout
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// RetryConfig is the file form of the executor retry policy
type RetryConfig struct {
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" validate:"omitempty,gte=1"`
	// Backoff between attempts, as a Go duration string
	Backoff string `json:"backoff,omitempty" yaml:"backoff,omitempty"`
}

// Validate checks the configuration shape.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	return nil
}

func (c *Config) defaultProvider() *ProviderConfig {
	if c.DefaultProvider != "" {
		for _, p := range c.Providers {
			if p.Name == c.DefaultProvider {
				return p
			}
		}
	}
	if len(c.Providers) > 0 {
		return c.Providers[0]
	}
	return nil
}

func (c *ExecutorConfig) callTimeout() (time.Duration, error) {
	if c.CallTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CallTimeout)
	if err != nil {
		return 0, errors.WithMessage(err, "invalid call_timeout")
	}
	return d, nil
}

func (c *RetryConfig) policy() (executor.RetryPolicy, error) {
	policy := executor.RetryPolicy{
		MaxAttempts: c.MaxAttempts,
	}
	if c.Backoff != "" {
		d, err := time.ParseDuration(c.Backoff)
		if err != nil {
			return policy, errors.WithMessage(err, "invalid retry backoff")
		}
		policy.Backoff = d
	}
	return policy, nil
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
