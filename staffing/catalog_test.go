package staffing

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/staffcache/backend"
	"github.com/jonwraymond/staffcache/cache"
	"github.com/jonwraymond/staffcache/preload"
)

type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: make(map[string]int), fail: make(map[string]error)}
}

func (s *fakeSource) record(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[key]++
	return s.fail[key]
}

func (s *fakeSource) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *fakeSource) Projects(context.Context) ([]backend.Project, error) {
	if err := s.record("projects"); err != nil {
		return nil, err
	}
	return []backend.Project{{ID: "p1"}, {ID: "p2"}}, nil
}

func (s *fakeSource) ProjectsByMonth(_ context.Context, m backend.Month) ([]backend.Project, error) {
	if err := s.record("month:" + m.String()); err != nil {
		return nil, err
	}
	return []backend.Project{{ID: "p-" + m.String()}}, nil
}

func (s *fakeSource) Candidates(_ context.Context, f backend.CandidateFilter) ([]backend.Candidate, error) {
	if err := s.record("candidates:" + f.City); err != nil {
		return nil, err
	}
	return []backend.Candidate{{ID: "c1", City: f.City}}, nil
}

func (s *fakeSource) PaymentBatches(_ context.Context, status backend.BatchStatus) ([]backend.PaymentBatch, error) {
	if err := s.record("batches:" + string(status)); err != nil {
		return nil, err
	}
	return []backend.PaymentBatch{{ID: "b1", Status: status}}, nil
}

var october = backend.Month{Year: 2026, Month: time.October}

func newTestCatalog(t *testing.T, src Source) (*Catalog, *cache.Manager) {
	t.Helper()
	m := cache.NewManager(cache.WithSweepInterval(0))
	c, err := New(m, src, Config{
		AdjacentDelay: time.Millisecond,
		Now:           func() time.Time { return time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		_ = m.Close(context.Background())
	})
	return c, m
}

func TestCatalog_Namespaces(t *testing.T) {
	_, m := newTestCatalog(t, newFakeSource())
	want := []string{NamespaceCandidates, NamespacePaymentBatches, NamespaceProjects, NamespaceProjectsByMonth}
	got := m.Namespaces()
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("Namespaces() = %v, want %v", got, want)
	}
}

func TestCatalog_Bootstrap(t *testing.T) {
	src := newFakeSource()
	c, _ := newTestCatalog(t, src)
	ctx := context.Background()

	report, err := c.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if len(report.Succeeded) != 4 || len(report.Failed) != 0 {
		t.Errorf("report = %+v, want 4 successes", report)
	}
	if err := c.WaitPreload(ctx); err != nil {
		t.Fatalf("WaitPreload() error = %v", err)
	}

	for _, key := range []string{"projects", "month:2026-10", "month:2026-09", "month:2026-11", "candidates:", "batches:"} {
		if got := src.count(key); got != 1 {
			t.Errorf("fetch %s ran %d times, want 1", key, got)
		}
	}

	// Seeded data is served from the cache.
	if _, err := c.Projects(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Candidates(ctx, backend.CandidateFilter{}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.PaymentBatches(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if p, err := c.ProjectsByMonth(ctx, october.Next()); err != nil || p[0].ID != "p-2026-11" {
		t.Errorf("ProjectsByMonth(next) = %v, %v", p, err)
	}
	if src.count("projects") != 1 || src.count("candidates:") != 1 || src.count("batches:") != 1 || src.count("month:2026-11") != 1 {
		t.Errorf("reads after Bootstrap fetched again: %v", src.calls)
	}

	if _, err := c.Bootstrap(ctx); !errors.Is(err, preload.ErrAlreadyRun) {
		t.Errorf("second Bootstrap() error = %v, want ErrAlreadyRun", err)
	}
}

func TestCatalog_BootstrapFailureIsolated(t *testing.T) {
	src := newFakeSource()
	src.fail["candidates:"] = errors.New("backend down")
	src.fail["month:2026-10"] = errors.New("timeout")
	c, _ := newTestCatalog(t, src)
	ctx := context.Background()

	report, err := c.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if len(report.Failed) != 2 || len(report.Succeeded) != 2 {
		t.Fatalf("report = %+v, want 2 failed and 2 succeeded", report)
	}
	if report.Err() == nil {
		t.Error("Report.Err() = nil")
	}

	// The failed month still schedules its neighbours.
	if err := c.WaitPreload(ctx); err != nil {
		t.Fatal(err)
	}
	if src.count("month:2026-09") != 1 || src.count("month:2026-11") != 1 {
		t.Errorf("adjacent months not preloaded: %v", src.calls)
	}

	// A failed seed just means a miss later.
	src.mu.Lock()
	delete(src.fail, "candidates:")
	src.mu.Unlock()
	if got, err := c.Candidates(ctx, backend.CandidateFilter{}); err != nil || len(got) != 1 {
		t.Errorf("Candidates() after failed seed = %v, %v", got, err)
	}
	if got := src.count("candidates:"); got != 2 {
		t.Errorf("candidates fetched %d times, want 2", got)
	}
}

func TestCatalog_MonthView(t *testing.T) {
	src := newFakeSource()
	c, m := newTestCatalog(t, src)
	ctx := context.Background()

	got, err := c.MonthView(ctx, october)
	if err != nil || len(got) != 1 || got[0].ID != "p-2026-10" {
		t.Fatalf("MonthView() = %v, %v", got, err)
	}
	if err := m.Drain(ctx); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"month:2026-09", "month:2026-10", "month:2026-11"} {
		if src.count(key) != 1 {
			t.Errorf("fetch %s ran %d times, want 1", key, src.count(key))
		}
	}

	// Neighbours are already fresh; viewing them again fetches only the new edge.
	if _, err := c.MonthView(ctx, october.Next()); err != nil {
		t.Fatal(err)
	}
	if err := m.Drain(ctx); err != nil {
		t.Fatal(err)
	}
	if src.count("month:2026-11") != 1 || src.count("month:2026-10") != 1 || src.count("month:2026-12") != 1 {
		t.Errorf("calls = %v", src.calls)
	}
}

func TestCatalog_KeysAndInvalidate(t *testing.T) {
	src := newFakeSource()
	c, _ := newTestCatalog(t, src)
	ctx := context.Background()

	berlin := backend.CandidateFilter{City: "Berlin"}
	for range 2 {
		if _, err := c.Candidates(ctx, berlin); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Candidates(ctx, backend.CandidateFilter{}); err != nil {
			t.Fatal(err)
		}
	}
	if src.count("candidates:Berlin") != 1 || src.count("candidates:") != 1 {
		t.Fatalf("calls = %v", src.calls)
	}

	if err := c.Invalidate(NamespaceCandidates, berlin); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	_, _ = c.Candidates(ctx, berlin)
	_, _ = c.Candidates(ctx, backend.CandidateFilter{})
	if src.count("candidates:Berlin") != 2 || src.count("candidates:") != 1 {
		t.Errorf("Invalidate(one key) calls = %v", src.calls)
	}

	if err := c.Invalidate(NamespaceCandidates); err != nil {
		t.Fatal(err)
	}
	_, _ = c.Candidates(ctx, backend.CandidateFilter{})
	if src.count("candidates:") != 2 {
		t.Errorf("Invalidate(all) calls = %v", src.calls)
	}

	if err := c.Invalidate("nope"); !errors.Is(err, cache.ErrNamespaceUnknown) {
		t.Errorf("Invalidate(unknown) error = %v", err)
	}
}

func TestCatalog_BadArgument(t *testing.T) {
	c, _ := newTestCatalog(t, newFakeSource())
	ctx := context.Background()

	if _, err := c.byMonth.GetData(ctx, "2026-10"); !errors.Is(err, ErrBadArgument) {
		t.Errorf("GetData(string) error = %v, want ErrBadArgument", err)
	}
	if _, err := c.byMonth.GetData(ctx); !errors.Is(err, ErrBadArgument) {
		t.Errorf("GetData() error = %v, want ErrBadArgument", err)
	}
	if _, err := c.batches.GetData(ctx, 42); !errors.Is(err, ErrBadArgument) {
		t.Errorf("GetData(int) error = %v, want ErrBadArgument", err)
	}
}

func TestCatalog_Policies(t *testing.T) {
	m := cache.NewManager(cache.WithSweepInterval(0))
	defer m.Close(context.Background())

	custom := cache.Policy{ExpireAfter: time.Hour, StaleAfter: 10 * time.Minute, MaxEntries: 12}
	c, err := New(m, newFakeSource(), Config{Policies: map[string]cache.Policy{NamespaceProjectsByMonth: custom}})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.byMonth.Policy(); got != custom {
		t.Errorf("projectsByMonth policy = %+v, want %+v", got, custom)
	}
	if got := c.projects.Policy(); got != cache.DefaultPolicy() {
		t.Errorf("projects policy = %+v, want default", got)
	}
}
