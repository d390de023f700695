package health

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/staffcache/cache"
	"github.com/jonwraymond/staffcache/resilience"
)

func fixed(name string, r Result) Checker {
	return CheckerFunc(name, func(context.Context) Result { return r })
}

func TestStatus(t *testing.T) {
	tests := []struct {
		s     Status
		o     Status
		str   string
		worse Status
	}{
		{StatusHealthy, StatusHealthy, "healthy", StatusHealthy},
		{StatusHealthy, StatusDegraded, "healthy", StatusDegraded},
		{StatusDegraded, StatusHealthy, "degraded", StatusDegraded},
		{StatusUnhealthy, StatusDegraded, "unhealthy", StatusUnhealthy},
		{Status(7), StatusHealthy, "unknown", Status(7)},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.str {
			t.Errorf("String() = %q, want %q", got, tt.str)
		}
		if got := tt.s.Worse(tt.o); got != tt.worse {
			t.Errorf("%s.Worse(%s) = %s, want %s", tt.s, tt.o, got, tt.worse)
		}
	}
}

func TestAggregator_Run(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Checker{fixed("a", Healthy("ok")), fixed("b", Healthy("ok"))}, StatusHealthy},
		{"one degraded", []Checker{fixed("a", Healthy("ok")), fixed("b", Degraded("slow"))}, StatusDegraded},
		{"unhealthy wins", []Checker{fixed("a", Degraded("slow")), fixed("b", Unhealthy("down", ErrCheckFailed))}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(time.Second)
			for _, c := range tt.checkers {
				agg.Register(c)
			}
			report := agg.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("Status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Checks) != len(tt.checkers) {
				t.Errorf("len(Checks) = %d, want %d", len(report.Checks), len(tt.checkers))
			}
		})
	}
}

func TestAggregator_Timeout(t *testing.T) {
	agg := NewAggregator(20 * time.Millisecond)
	agg.Register(CheckerFunc("stuck", func(context.Context) Result {
		time.Sleep(time.Second)
		return Healthy("late")
	}))

	start := time.Now()
	report := agg.Run(context.Background())
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Run waited for a stuck checker")
	}
	got := report.Checks["stuck"]
	if got.Status != StatusUnhealthy || !errors.Is(got.Error, ErrCheckTimeout) {
		t.Errorf("stuck result = %+v, want timeout", got)
	}
}

func TestAggregator_Panic(t *testing.T) {
	agg := NewAggregator(time.Second)
	agg.Register(CheckerFunc("boom", func(context.Context) Result { panic("nil map") }))

	res, err := agg.Check(context.Background(), "boom")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !errors.Is(res.Error, ErrCheckPanicked) {
		t.Errorf("Error = %v, want ErrCheckPanicked", res.Error)
	}
}

func TestAggregator_RegisterUnregister(t *testing.T) {
	agg := NewAggregator(0)
	agg.Register(fixed("cache", Healthy("ok")))
	agg.Register(fixed("backend", Healthy("ok")))
	agg.Register(fixed("cache", Degraded("replaced")))

	if got := strings.Join(agg.Names(), ","); got != "cache,backend" {
		t.Errorf("Names() = %s", got)
	}
	res, _ := agg.Check(context.Background(), "cache")
	if res.Status != StatusDegraded {
		t.Errorf("replaced checker not used: %+v", res)
	}

	agg.Unregister("cache")
	agg.Unregister("missing")
	if got := strings.Join(agg.Names(), ","); got != "backend" {
		t.Errorf("Names() after Unregister = %s", got)
	}
	if _, err := agg.Check(context.Background(), "cache"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("Check(unregistered) error = %v", err)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCacheChecker(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := cache.NewManager(cache.WithClock(clock), cache.WithSweepInterval(0))
	ctx := context.Background()

	var mu sync.Mutex
	fail := false
	ns, err := cache.Open(m, "projects", func(context.Context, ...any) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, errors.New("backend down")
		}
		return []string{"Apollo"}, nil
	}, cache.Policy{ExpireAfter: time.Minute, StaleAfter: time.Second, MaxEntries: 10})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	checker := NewCacheChecker(m)
	if _, err := ns.GetData(ctx); err != nil {
		t.Fatalf("GetData() error = %v", err)
	}
	if res := checker.Check(ctx); res.Status != StatusHealthy {
		t.Fatalf("Check() = %+v, want healthy", res)
	}

	mu.Lock()
	fail = true
	mu.Unlock()
	clock.Advance(2 * time.Second)
	if _, err := ns.GetData(ctx); err != nil {
		t.Fatalf("stale GetData() error = %v", err)
	}
	if err := m.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	res := checker.Check(ctx)
	if res.Status != StatusDegraded || !strings.Contains(res.Message, "projects") {
		t.Errorf("Check() = %+v, want degraded naming projects", res)
	}
	details, _ := res.Details["projects"].(map[string]any)
	if details["last_error"] == nil {
		t.Errorf("details = %v, want last_error", details)
	}

	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if res := checker.Check(ctx); res.Status != StatusUnhealthy || !errors.Is(res.Error, ErrCacheClosed) {
		t.Errorf("Check() after Close = %+v, want unhealthy", res)
	}
}

func TestCacheChecker_FailedPrefetchStaysHealthy(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := cache.NewManager(cache.WithClock(clock), cache.WithSweepInterval(0))
	ctx := context.Background()
	defer func() { _ = m.Close(ctx) }()

	ns, err := cache.Open(m, "projectsByMonth", func(_ context.Context, args ...any) ([]string, error) {
		if len(args) > 0 {
			return nil, errors.New("no data for month")
		}
		return []string{"Apollo"}, nil
	}, cache.Policy{ExpireAfter: time.Minute, StaleAfter: time.Second, MaxEntries: 10})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := ns.GetData(ctx); err != nil {
		t.Fatalf("GetData() error = %v", err)
	}

	ns.Prefetch(ctx, "2026-11")
	if err := m.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if res := NewCacheChecker(m).Check(ctx); res.Status != StatusHealthy {
		t.Errorf("Check() = %+v, want healthy: no stale data is served", res)
	}
}

func TestCircuitChecker(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	checker := NewCircuitChecker("backend", cb)
	ctx := context.Background()

	if res := checker.Check(ctx); res.Status != StatusHealthy {
		t.Errorf("closed breaker = %+v", res)
	}
	_ = cb.Execute(ctx, func(context.Context) error { return errors.New("down") })
	res := checker.Check(ctx)
	if res.Status != StatusDegraded || res.Details["state"] != "open" {
		t.Errorf("open breaker = %+v", res)
	}

	if res := NewCircuitChecker("none", nil).Check(ctx); res.Status != StatusHealthy {
		t.Errorf("nil breaker = %+v", res)
	}
}
