// Package staffing exposes the staffing data the application reads through
// typed cache namespaces over a backend.
package staffing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/staffcache/backend"
	"github.com/jonwraymond/staffcache/cache"
	"github.com/jonwraymond/staffcache/observe"
	"github.com/jonwraymond/staffcache/preload"
)

// Namespace names.
const (
	NamespaceProjects        = "projects"
	NamespaceProjectsByMonth = "projectsByMonth"
	NamespaceCandidates      = "candidates"
	NamespacePaymentBatches  = "paymentBatches"
)

// DefaultAdjacentDelay is how long Bootstrap waits before warming the months
// around the current one.
const DefaultAdjacentDelay = 2 * time.Second

// ErrBadArgument indicates a namespace fetch got arguments of the wrong type.
var ErrBadArgument = errors.New("staffing: bad fetch argument")

// Source is the backend the catalog reads from. *backend.Client implements it.
type Source interface {
	Projects(ctx context.Context) ([]backend.Project, error)
	ProjectsByMonth(ctx context.Context, m backend.Month) ([]backend.Project, error)
	Candidates(ctx context.Context, f backend.CandidateFilter) ([]backend.Candidate, error)
	PaymentBatches(ctx context.Context, status backend.BatchStatus) ([]backend.PaymentBatch, error)
}

// Config configures a Catalog.
type Config struct {
	// Policies maps namespace names to policies. Missing names use
	// cache.DefaultPolicy.
	Policies map[string]cache.Policy

	// AdjacentDelay delays the previous/next month preloads in Bootstrap.
	// Default: DefaultAdjacentDelay
	AdjacentDelay time.Duration

	// Concurrency bounds parallel Bootstrap tasks.
	// Default: preload.DefaultConcurrency
	Concurrency int

	// Logger receives Bootstrap progress. Default: observe.NopLogger().
	Logger observe.Logger

	// Now picks the current month for Bootstrap. Default: time.Now.
	Now func() time.Time
}

// Catalog serves staffing data through the cache.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Bootstrap runs at most once; later calls fail with preload.ErrAlreadyRun.
type Catalog struct {
	cfg     Config
	manager *cache.Manager
	src     Source

	projects   *cache.Namespace[[]backend.Project]
	byMonth    *cache.Namespace[[]backend.Project]
	candidates *cache.Namespace[[]backend.Candidate]
	batches    *cache.Namespace[[]backend.PaymentBatch]

	mu        sync.Mutex
	preloader *preload.Preloader
}

// New opens the catalog namespaces on m.
func New(m *cache.Manager, src Source, cfg Config) (*Catalog, error) {
	if cfg.AdjacentDelay <= 0 {
		cfg.AdjacentDelay = DefaultAdjacentDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Catalog{cfg: cfg, manager: m, src: src}
	var err error
	if c.projects, err = cache.Open(m, NamespaceProjects, c.fetchProjects, c.policy(NamespaceProjects)); err != nil {
		return nil, err
	}
	if c.byMonth, err = cache.Open(m, NamespaceProjectsByMonth, c.fetchProjectsByMonth, c.policy(NamespaceProjectsByMonth)); err != nil {
		return nil, err
	}
	if c.candidates, err = cache.Open(m, NamespaceCandidates, c.fetchCandidates, c.policy(NamespaceCandidates)); err != nil {
		return nil, err
	}
	if c.batches, err = cache.Open(m, NamespacePaymentBatches, c.fetchPaymentBatches, c.policy(NamespacePaymentBatches)); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) policy(name string) cache.Policy {
	if p, ok := c.cfg.Policies[name]; ok {
		return p
	}
	return cache.DefaultPolicy()
}

// Projects returns every project.
func (c *Catalog) Projects(ctx context.Context) ([]backend.Project, error) {
	return c.projects.GetData(ctx)
}

// ProjectsByMonth returns the projects running during m.
func (c *Catalog) ProjectsByMonth(ctx context.Context, m backend.Month) ([]backend.Project, error) {
	return c.byMonth.GetData(ctx, m)
}

// MonthView returns the projects for m and warms the months on either side,
// which a calendar view is likely to show next.
func (c *Catalog) MonthView(ctx context.Context, m backend.Month) ([]backend.Project, error) {
	projects, err := c.byMonth.GetData(ctx, m)
	if err != nil {
		return nil, err
	}
	c.byMonth.Prefetch(ctx, m.Prev())
	c.byMonth.Prefetch(ctx, m.Next())
	return projects, nil
}

// Candidates returns the candidates matching f. The zero filter shares the
// key Bootstrap seeds.
func (c *Catalog) Candidates(ctx context.Context, f backend.CandidateFilter) ([]backend.Candidate, error) {
	if f == (backend.CandidateFilter{}) {
		return c.candidates.GetData(ctx)
	}
	return c.candidates.GetData(ctx, f)
}

// PaymentBatches returns the payment batches in status. Empty means all.
func (c *Catalog) PaymentBatches(ctx context.Context, status backend.BatchStatus) ([]backend.PaymentBatch, error) {
	if status == "" {
		return c.batches.GetData(ctx)
	}
	return c.batches.GetData(ctx, status)
}

// Invalidate drops cached data for one namespace, or one key of it when args
// are given.
func (c *Catalog) Invalidate(namespace string, args ...any) error {
	return c.manager.Invalidate(namespace, args...)
}

// Bootstrap warms the cache at startup: all projects, this month's projects,
// all candidates and all payment batches. The previous and next months follow
// after AdjacentDelay in the background. Failures are logged and reported but
// never stop sibling tasks.
func (c *Catalog) Bootstrap(ctx context.Context) (preload.Report, error) {
	c.mu.Lock()
	if c.preloader != nil {
		c.mu.Unlock()
		return preload.Report{}, preload.ErrAlreadyRun
	}

	month := backend.MonthOf(c.cfg.Now())
	adjacent := func(m backend.Month) preload.FollowUp {
		return preload.FollowUp{
			Delay: c.cfg.AdjacentDelay,
			Task:  preload.Seed(c.byMonth, c.fetchProjectsByMonth, m),
		}
	}
	thisMonth := preload.Seed(c.byMonth, c.fetchProjectsByMonth, month)
	thisMonth.Then = []preload.FollowUp{adjacent(month.Prev()), adjacent(month.Next())}

	tasks := []preload.Task{
		preload.Seed(c.projects, c.fetchProjects),
		thisMonth,
		preload.Seed(c.candidates, c.fetchCandidates),
		preload.Seed(c.batches, c.fetchPaymentBatches),
	}
	p, err := preload.New(tasks,
		preload.WithLogger(c.cfg.Logger),
		preload.WithConcurrency(c.cfg.Concurrency),
	)
	if err != nil {
		c.mu.Unlock()
		return preload.Report{}, err
	}
	c.preloader = p
	c.mu.Unlock()

	return p.Run(ctx)
}

// WaitPreload blocks until Bootstrap's delayed preloads have finished.
func (c *Catalog) WaitPreload(ctx context.Context) error {
	c.mu.Lock()
	p := c.preloader
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Wait(ctx)
}

// Close cancels pending delayed preloads. It does not close the manager.
func (c *Catalog) Close() {
	c.mu.Lock()
	p := c.preloader
	c.mu.Unlock()
	if p != nil {
		p.Close()
	}
}

func (c *Catalog) fetchProjects(ctx context.Context, _ ...any) ([]backend.Project, error) {
	return c.src.Projects(ctx)
}

func (c *Catalog) fetchProjectsByMonth(ctx context.Context, args ...any) ([]backend.Project, error) {
	m, err := arg[backend.Month](args)
	if err != nil {
		return nil, err
	}
	return c.src.ProjectsByMonth(ctx, m)
}

func (c *Catalog) fetchCandidates(ctx context.Context, args ...any) ([]backend.Candidate, error) {
	f, err := optionalArg[backend.CandidateFilter](args)
	if err != nil {
		return nil, err
	}
	return c.src.Candidates(ctx, f)
}

func (c *Catalog) fetchPaymentBatches(ctx context.Context, args ...any) ([]backend.PaymentBatch, error) {
	status, err := optionalArg[backend.BatchStatus](args)
	if err != nil {
		return nil, err
	}
	return c.src.PaymentBatches(ctx, status)
}

func arg[T any](args []any) (T, error) {
	var zero T
	if len(args) != 1 {
		return zero, fmt.Errorf("%w: want 1 argument of type %T, got %d", ErrBadArgument, zero, len(args))
	}
	v, ok := args[0].(T)
	if !ok {
		return zero, fmt.Errorf("%w: want %T, got %T", ErrBadArgument, zero, args[0])
	}
	return v, nil
}

func optionalArg[T any](args []any) (T, error) {
	if len(args) == 0 {
		var zero T
		return zero, nil
	}
	return arg[T](args)
}
