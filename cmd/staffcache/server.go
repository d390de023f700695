package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/staffcache/auth"
	"github.com/jonwraymond/staffcache/backend"
	"github.com/jonwraymond/staffcache/cache"
	"github.com/jonwraymond/staffcache/config"
	"github.com/jonwraymond/staffcache/health"
	"github.com/jonwraymond/staffcache/observe"
	"github.com/jonwraymond/staffcache/staffing"
)

// app holds every long-lived component of a running service.
type app struct {
	cfg     *config.Config
	obs     observe.Observer
	logger  observe.Logger
	manager *cache.Manager
	client  *backend.Client
	catalog *staffing.Catalog
	health  *health.Aggregator
	admin   *auth.Verifier

	// stub is the in-process backend when backend.stub is set.
	stub *http.Server

	// preloadDone is closed when the startPreload goroutine returns.
	preloadDone chan struct{}
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	obs, err := observe.NewObserver(ctx, cfg.ObserveConfig())
	if err != nil {
		return nil, fmt.Errorf("init observer: %w", err)
	}
	a := &app{cfg: cfg, obs: obs, logger: obs.Logger()}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	a.manager = cache.NewManager(
		cache.WithObserver(obs),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
	)

	clientCfg := cfg.Backend.Client()
	opts := []backend.Option{backend.WithLogger(a.logger)}
	var key []byte
	if cfg.Backend.TokenSecret != "" {
		key = []byte(cfg.Backend.TokenSecret)
		tokens, err := auth.NewTokenSource(auth.TokenConfig{
			Issuer:   cfg.Backend.TokenIssuer,
			Subject:  cfg.Backend.TokenSubject,
			Audience: cfg.Backend.TokenAudience,
			TTL:      cfg.Backend.TokenTTL,
		}, key)
		if err != nil {
			return nil, err
		}
		opts = append(opts, backend.WithTokens(tokens))
	}
	if cfg.Backend.Stub {
		if clientCfg.BaseURL, err = a.startStub(cfg.Backend, key); err != nil {
			return nil, err
		}
	}
	if a.client, err = backend.NewClient(clientCfg, opts...); err != nil {
		return nil, err
	}

	a.catalog, err = staffing.New(a.manager, a.client, staffing.Config{
		Policies:      cfg.Cache.Namespaces,
		AdjacentDelay: cfg.Preload.AdjacentDelay,
		Concurrency:   cfg.Preload.Concurrency,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, err
	}

	a.health = health.NewAggregator(health.DefaultTimeout)
	a.health.Register(health.NewCacheChecker(a.manager))
	a.health.Register(health.NewCircuitChecker("backend", a.client.Breaker()))

	if cfg.HTTP.AdminSecret != "" {
		a.admin = auth.NewVerifier(auth.VerifierConfig{Leeway: 30 * time.Second},
			auth.NewStaticKeyProvider([]byte(cfg.HTTP.AdminSecret)))
	}
	return a, nil
}

// startStub serves the dataset at cfg.StubData on a loopback port and returns
// its base URL. A non-empty key makes the stub verify the client's tokens.
func (a *app) startStub(cfg config.BackendConfig, key []byte) (string, error) {
	ds, err := backend.LoadDataset(cfg.StubData)
	if err != nil {
		return "", err
	}

	var v *auth.Verifier
	if len(key) > 0 {
		v = auth.NewVerifier(auth.VerifierConfig{
			Issuer:   cfg.TokenIssuer,
			Audience: cfg.TokenAudience,
		}, auth.NewStaticKeyProvider(key))
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen for stub backend: %w", err)
	}
	a.stub = &http.Server{Handler: backend.NewStub(ds).Handler(v), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.stub.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(context.Background(), "stub backend stopped", observe.F("error", err))
		}
	}()

	url := "http://" + ln.Addr().String() + "/"
	a.logger.Info(context.Background(), "serving stub backend",
		observe.F("url", url),
		observe.F("projects", len(ds.Projects)),
		observe.F("candidates", len(ds.Candidates)),
	)
	return url, nil
}

// preload warms the cache and logs the outcome. Failures never stop the
// service; the data is fetched on first read instead.
func (a *app) preload(ctx context.Context) {
	if !a.cfg.Preload.Enabled {
		return
	}
	report, err := a.catalog.Bootstrap(ctx)
	if err != nil {
		a.logger.Error(ctx, "preload did not run", observe.F("error", err))
		return
	}
	if err := report.Err(); err != nil {
		a.logger.Warn(ctx, "preload finished with failures",
			observe.F("succeeded", len(report.Succeeded)),
			observe.F("failed", len(report.Failed)),
			observe.F("error", err),
		)
		return
	}
	a.logger.Info(ctx, "preload finished", observe.F("succeeded", len(report.Succeeded)))
}

// startPreload runs preload on its own goroutine. close waits for it.
func (a *app) startPreload(ctx context.Context) {
	done := make(chan struct{})
	a.preloadDone = done
	go func() {
		defer close(done)
		a.preload(ctx)
	}()
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	h := &handlers{catalog: a.catalog, manager: a.manager, logger: a.logger}

	mux.HandleFunc("GET /projects", h.projects)
	mux.HandleFunc("GET /projects/{month}", h.projectsByMonth)
	mux.HandleFunc("GET /candidates", h.candidates)
	mux.HandleFunc("GET /payment-batches", h.paymentBatches)
	mux.HandleFunc("GET /cache/stats", h.stats)
	if a.admin != nil {
		mux.Handle("DELETE /cache/{namespace}", auth.RequireBearer(a.admin, a.cfg.HTTP.AdminRole)(http.HandlerFunc(h.invalidate)))
	}

	health.RegisterHandlers(mux, a.health)
	if a.cfg.Observe.Metrics.Enabled && a.cfg.Observe.Metrics.Exporter == "prometheus" {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return mux
}

// close stops components in reverse start order and returns every error.
// A running preload is waited for first, bounded by ctx.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.preloadDone != nil {
		select {
		case <-a.preloadDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for preload: %w", ctx.Err()))
		}
	}
	if a.catalog != nil {
		a.catalog.Close()
	}
	if a.manager != nil {
		if err := a.manager.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if a.stub != nil {
		if err := a.stub.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop stub backend: %w", err))
		}
	}
	if a.obs != nil {
		if err := a.obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown observer: %w", err))
		}
	}
	return errors.Join(errs...)
}
