// Package config loads the staffcache service configuration.
//
// Sources are applied in order: defaults, a YAML file, STAFFCACHE_* environment
// variables, then secret resolution of credential fields. The result is
// validated as a whole and every problem is reported at once.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/staffcache/backend"
	"github.com/jonwraymond/staffcache/cache"
	"github.com/jonwraymond/staffcache/observe"
	"github.com/jonwraymond/staffcache/resilience"
)

var (
	// ErrInvalid wraps every validation problem.
	ErrInvalid = errors.New("config: invalid")

	// ErrRead indicates the config file could not be read or parsed.
	ErrRead = errors.New("config: read")
)

// Config is the complete service configuration.
type Config struct {
	Service ServiceConfig  `yaml:"service" env:"SERVICE"`
	Observe observe.Config `yaml:"observe" env:"OBSERVE"`
	HTTP    HTTPConfig     `yaml:"http" env:"HTTP"`
	Cache   CacheConfig    `yaml:"cache" env:"CACHE"`
	Backend BackendConfig  `yaml:"backend" env:"BACKEND"`
	Preload PreloadConfig  `yaml:"preload" env:"PRELOAD"`

	// Secrets configures extra secret providers by name, such as
	// file: {dir: /run/secrets}. The env provider is always available.
	Secrets map[string]map[string]any `yaml:"secrets"`
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name    string `yaml:"name" env:"NAME"`
	Version string `yaml:"version" env:"VERSION"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// AdminSecret verifies bearer tokens on cache admin endpoints. Empty
	// disables those endpoints.
	AdminSecret string `yaml:"admin_secret" env:"ADMIN_SECRET"`
	AdminRole   string `yaml:"admin_role" env:"ADMIN_ROLE"`
}

// CacheConfig configures the cache manager and its namespaces.
type CacheConfig struct {
	SweepInterval time.Duration           `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	Namespaces    map[string]cache.Policy `yaml:"namespaces"`
}

// BackendConfig configures the data store client.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	TokenSecret   string        `yaml:"token_secret" env:"TOKEN_SECRET"`
	TokenIssuer   string        `yaml:"token_issuer" env:"TOKEN_ISSUER"`
	TokenSubject  string        `yaml:"token_subject" env:"TOKEN_SUBJECT"`
	TokenAudience string        `yaml:"token_audience" env:"TOKEN_AUDIENCE"`
	TokenTTL      time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`

	Resilience resilience.Config `yaml:"resilience"`

	// Stub serves StubData from an in-process backend instead of BaseURL.
	Stub     bool   `yaml:"stub" env:"STUB"`
	StubData string `yaml:"stub_data" env:"STUB_DATA"`
}

// Client returns the backend.Config part of b.
func (b BackendConfig) Client() backend.Config {
	return backend.Config{BaseURL: b.BaseURL, Timeout: b.Timeout, Resilience: b.Resilience}
}

// PreloadConfig configures startup warm-up.
type PreloadConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	AdjacentDelay time.Duration `yaml:"adjacent_delay" env:"ADJACENT_DELAY"`
	Concurrency   int           `yaml:"concurrency" env:"CONCURRENCY"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{Name: "staffcache"},
		Observe: observe.Config{
			Tracing: observe.TracingConfig{Exporter: "none", SamplePct: 0.1},
			Metrics: observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
			Logging: observe.LoggingConfig{Enabled: true, Level: "info"},
		},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			AdminRole:         "cache-admin",
		},
		Cache: CacheConfig{SweepInterval: cache.DefaultSweepInterval},
		Backend: BackendConfig{
			Timeout:      backend.DefaultTimeout,
			TokenIssuer:  "staffcache",
			TokenSubject: "staffcache",
			TokenTTL:     15 * time.Minute,
			Resilience: resilience.Config{
				Timeout:        5 * time.Second,
				Retry:          resilience.RetrySettings{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second},
				CircuitBreaker: resilience.CircuitSettings{MaxFailures: 5, ResetTimeout: 30 * time.Second},
				RateLimit:      resilience.RateLimitSettings{Rate: 50, Burst: 10},
				Bulkhead:       resilience.BulkheadSettings{MaxConcurrent: 16, MaxWait: time.Second},
			},
		},
		Preload: PreloadConfig{Enabled: true, AdjacentDelay: 2 * time.Second, Concurrency: 4},
	}
}

// Validate reports every problem in c.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	obs := c.ObserveConfig()
	if err := obs.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: observe: %w", ErrInvalid, err))
	}

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if c.HTTP.ShutdownTimeout < 0 || c.HTTP.ReadHeaderTimeout < 0 {
		add("http timeouts must not be negative")
	}

	if c.Cache.SweepInterval < 0 {
		add("cache.sweep_interval must not be negative")
	}
	for name, p := range c.Cache.Namespaces {
		if err := p.Validate(); err != nil {
			add("cache.namespaces.%s: %v", name, err)
		}
	}

	if c.Backend.Stub {
		if c.Backend.StubData == "" {
			add("backend.stub_data is required when backend.stub is set")
		}
	} else {
		if c.Backend.BaseURL == "" {
			add("backend.base_url is required")
		}
		if c.Backend.TokenSecret == "" {
			add("backend.token_secret is required")
		}
	}
	if c.Backend.Timeout < 0 || c.Backend.TokenTTL < 0 {
		add("backend durations must not be negative")
	}

	if c.Preload.Concurrency < 0 || c.Preload.AdjacentDelay < 0 {
		add("preload values must not be negative")
	}

	return errors.Join(errs...)
}

// ObserveConfig returns the observe section with service identity filled in
// from the service section.
func (c *Config) ObserveConfig() observe.Config {
	obs := c.Observe
	if obs.ServiceName == "" {
		obs.ServiceName = c.Service.Name
	}
	if obs.Version == "" {
		obs.Version = c.Service.Version
	}
	return obs
}
