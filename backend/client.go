package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonwraymond/staffcache/auth"
	"github.com/jonwraymond/staffcache/observe"
	"github.com/jonwraymond/staffcache/resilience"
)

// API paths, relative to the base URL.
const (
	pathProjects       = "v1/projects"
	pathCandidates     = "v1/candidates"
	pathPaymentBatches = "v1/payment-batches"
)

// DefaultTimeout bounds one HTTP request when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	BaseURL    string            `yaml:"base_url" env:"BASE_URL"`
	Timeout    time.Duration     `yaml:"timeout" env:"TIMEOUT"`
	Resilience resilience.Config `yaml:"resilience"`
}

// Client reads staffing data from the backend.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: non-2xx responses are *StatusError; 4xx other than 429 are
// wrapped with resilience.Permanent.
type Client struct {
	base   *url.URL
	http   *http.Client
	exec   *resilience.Executor
	logger observe.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	transport http.RoundTripper
	tokens    auth.TokenProvider
	exec      *resilience.Executor
	logger    observe.Logger
}

// WithTransport sets the base transport. Default: http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithTokens authenticates every request with a bearer token from tp.
func WithTokens(tp auth.TokenProvider) Option {
	return func(o *clientOptions) { o.tokens = tp }
}

// WithExecutor replaces the executor built from Config.Resilience.
func WithExecutor(e *resilience.Executor) Option {
	return func(o *clientOptions) { o.exec = e }
}

// WithLogger sets the logger. Default: observe.NopLogger().
func WithLogger(l observe.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: base_url %q must be an absolute http(s) URL", ErrInvalidConfig, cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	o := clientOptions{logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.exec == nil {
		o.exec = resilience.FromConfig(cfg.Resilience)
	}

	rt := o.transport
	if o.tokens != nil {
		rt = &auth.Transport{Base: rt, Tokens: o.tokens}
	}

	return &Client{
		base:   base,
		http:   &http.Client{Transport: rt, Timeout: cfg.Timeout},
		exec:   o.exec,
		logger: o.logger.With(observe.F("component", "backend")),
	}, nil
}

// Breaker returns the client's circuit breaker, or nil.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.exec.CircuitBreaker()
}

// Projects lists every project.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	return get[[]Project](ctx, c, pathProjects, nil)
}

// ProjectsByMonth lists the projects running during m.
func (c *Client) ProjectsByMonth(ctx context.Context, m Month) ([]Project, error) {
	if m.IsZero() {
		return nil, fmt.Errorf("%w: zero month", ErrInvalidMonth)
	}
	return get[[]Project](ctx, c, pathProjects, url.Values{"month": {m.String()}})
}

// Candidates lists the candidates matching f.
func (c *Client) Candidates(ctx context.Context, f CandidateFilter) ([]Candidate, error) {
	return get[[]Candidate](ctx, c, pathCandidates, f.Query())
}

// PaymentBatches lists payment batches in status. An empty status lists all.
func (c *Client) PaymentBatches(ctx context.Context, status BatchStatus) ([]PaymentBatch, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {string(status)}}
	}
	return get[[]PaymentBatch](ctx, c, pathPaymentBatches, q)
}

func get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()
	target := u.String()

	return resilience.Call(ctx, c.exec, func(ctx context.Context) (T, error) {
		var out T
		start := time.Now()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return out, resilience.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return out, err
		}
		defer resp.Body.Close()

		c.logger.Debug(ctx, "backend request",
			observe.F("path", "/"+path),
			observe.F("status", resp.StatusCode),
			observe.F("duration_ms", time.Since(start).Milliseconds()),
		)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			se := &StatusError{
				Method:     http.MethodGet,
				Path:       "/" + path,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
				Wait:       parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			}
			if se.Temporary() {
				return out, se
			}
			return out, resilience.Permanent(se)
		}

		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return out, resilience.Permanent(fmt.Errorf("%w: %s: %v", ErrDecode, path, err))
		}
		return out, nil
	})
}
