package planfactory

import (
	"sync"

	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/codec"
	"github.com/effective-security/toolplan/executor"
	"github.com/effective-security/toolplan/invoke"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolplan", "planfactory")

// NewInvoker is a wrapper for CreateInvoker to allow for overriding the
// default implementation.
var NewInvoker = CreateInvoker

// Factory wires catalogs, invokers, and executors from configuration.
// The catalog and the invoker are created once and shared.
type Factory struct {
	cfg   *Config
	retry executor.RetryPolicy

	lock sync.Mutex
	cat  *catalog.Catalog
	inv  invoke.Invoker
}

// Load reads configuration from file and creates a factory.
func Load(location string) (*Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// New creates a factory from explicit configuration.
func New(cfg *Config) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Executor.callTimeout(); err != nil {
		return nil, err
	}
	retry, err := cfg.Executor.Retry.policy()
	if err != nil {
		return nil, err
	}

	return &Factory{
		cfg:   cfg,
		retry: retry,
	}, nil
}

// CreateInvoker builds the MCP-backed invoker for the configured
// providers. The default provider's endpoint also serves catalog entries
// that do not name a provider.
func CreateInvoker(cfg *Config, cat *catalog.Catalog) (invoke.Invoker, error) {
	endpoints := make(map[string]string, len(cfg.Providers)+1)
	for _, p := range cfg.Providers {
		endpoints[p.Name] = p.BaseURL
	}
	if def := cfg.defaultProvider(); def != nil {
		if _, ok := endpoints[invoke.DefaultProvider]; !ok {
			endpoints[invoke.DefaultProvider] = def.BaseURL
		}
	}

	client := invoke.NewClient(cat, endpoints)
	for _, p := range cfg.Providers {
		if len(p.Headers) > 0 {
			client.WithHeaders(p.Name, p.Headers)
		}
	}
	if def := cfg.defaultProvider(); def != nil && len(def.Headers) > 0 {
		client.WithHeaders(invoke.DefaultProvider, def.Headers)
	}

	d, err := cfg.Executor.callTimeout()
	if err != nil {
		return nil, err
	}
	if d > 0 {
		client.WithCallTimeout(d)
	}
	return client, nil
}

// Catalog returns the catalog built from the configured tools.
func (f *Factory) Catalog() (*catalog.Catalog, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.catalog()
}

func (f *Factory) catalog() (*catalog.Catalog, error) {
	if f.cat == nil {
		cat, err := catalog.New(f.cfg.Tools...)
		if err != nil {
			return nil, err
		}
		f.cat = cat
	}
	return f.cat, nil
}

// Invoker returns the shared invoker for the configured providers.
func (f *Factory) Invoker() (invoke.Invoker, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.invoker()
}

func (f *Factory) invoker() (invoke.Invoker, error) {
	if f.inv == nil {
		cat, err := f.catalog()
		if err != nil {
			return nil, err
		}
		inv, err := NewInvoker(f.cfg, cat)
		if err != nil {
			return nil, err
		}

		logger.KV(xlog.DEBUG,
			"status", "created_invoker",
			"providers", len(f.cfg.Providers),
			"tools", cat.Len(),
		)
		f.inv = inv
	}
	return f.inv, nil
}

// Executor creates an executor with the configured run policy. Options
// override the configuration.
func (f *Factory) Executor(opts ...executor.Option) (*executor.Executor, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	cat, err := f.catalog()
	if err != nil {
		return nil, err
	}
	inv, err := f.invoker()
	if err != nil {
		return nil, err
	}

	base := make([]executor.Option, 0, len(opts)+2)
	if f.cfg.Executor.MaxSteps > 0 {
		base = append(base, executor.WithMaxSteps(f.cfg.Executor.MaxSteps))
	}
	if f.retry.MaxAttempts > 1 {
		base = append(base, executor.WithRetry(f.retry))
	}
	return executor.New(cat, inv, append(base, opts...)...), nil
}

// Decoder returns the plan decoder for the configured wire format.
func (f *Factory) Decoder() (codec.Decoder, error) {
	cat, err := f.Catalog()
	if err != nil {
		return nil, err
	}
	return codec.PredefinedDecoder(codec.Mode(f.cfg.Format), cat)
}
