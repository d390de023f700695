package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/staffcache/observe"
)

// handle is the type-erased view of a Namespace used by Manager.
type handle interface {
	Name() string
	Stats() NamespaceStats
	Sweep() int
	Invalidate(args ...any) error
	Close()
}

// Manager owns a set of namespaces and the background work they start.
//
// Contract:
// - Concurrency: all methods are safe for concurrent use.
// - Lifecycle: Close stops every sweeper and waits for in-flight fetches.
type Manager struct {
	clock         Clock
	keyer         Keyer
	logger        observe.Logger
	metrics       observe.Metrics
	tracer        observe.Tracer
	mw            *observe.Middleware
	sweepInterval time.Duration

	tasks taskGroup

	mu         sync.Mutex
	namespaces map[string]handle
	order      []string
	closed     bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source. Tests use it to drive freshness.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithKeyer replaces the default key derivation.
func WithKeyer(k Keyer) Option {
	return func(m *Manager) {
		if k != nil {
			m.keyer = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(mt observe.Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithTracer sets the tracer used for fetch spans.
func WithTracer(t observe.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithObserver wires tracer, metrics and logger from obs. If the metric
// instruments cannot be created, metrics stay disabled.
func WithObserver(obs observe.Observer) Option {
	return func(m *Manager) {
		if obs == nil {
			return
		}
		m.tracer = observe.NewTracer(obs.Tracer())
		m.logger = obs.Logger()
		if mt, err := observe.NewMetrics(obs.Meter()); err == nil {
			m.metrics = mt
		}
	}
}

// WithSweepInterval sets how often namespaces remove expired entries.
// A non-positive interval disables the periodic sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.sweepInterval = d
	}
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:         SystemClock(),
		keyer:         NewDefaultKeyer(),
		logger:        observe.NopLogger(),
		metrics:       observe.NopMetrics(),
		tracer:        observe.NopTracer(),
		sweepInterval: DefaultSweepInterval,
		namespaces:    make(map[string]handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.mw = observe.NewMiddleware(m.tracer, m.metrics, m.logger)
	return m
}

// Open returns the namespace called name, creating it on first use.
// Opening an existing name with the same T returns the existing handle and
// ignores fetch and policy; a different T fails with ErrNamespaceType.
func Open[T any](m *Manager, name string, fetch FetchFunc[T], policy Policy) (*Namespace[T], error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidNamespace
	}
	if fetch == nil {
		return nil, fmt.Errorf("%w: namespace %q", ErrNilFetch, name)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("namespace %q: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if h, ok := m.namespaces[name]; ok {
		ns, ok := h.(*Namespace[T])
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNamespaceType, name)
		}
		return ns, nil
	}

	ns := newNamespace(m, name, fetch, policy.WithDefaults())
	m.namespaces[name] = ns
	m.order = append(m.order, name)
	m.logger.Debug(context.Background(), "namespace opened",
		observe.F("namespace", name),
		observe.F("max_entries", ns.policy.MaxEntries),
	)
	return ns, nil
}

// Namespaces returns namespace names in the order they were opened.
func (m *Manager) Namespaces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Stats returns a snapshot of every namespace in open order.
func (m *Manager) Stats() []NamespaceStats {
	handles := m.handles()
	stats := make([]NamespaceStats, 0, len(handles))
	for _, h := range handles {
		stats = append(stats, h.Stats())
	}
	return stats
}

// Invalidate invalidates args in the named namespace. With no args the whole
// namespace is cleared.
func (m *Manager) Invalidate(name string, args ...any) error {
	m.mu.Lock()
	h, ok := m.namespaces[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNamespaceUnknown, name)
	}
	return h.Invalidate(args...)
}

// Sweep sweeps every namespace and returns the total number of entries removed.
func (m *Manager) Sweep() int {
	total := 0
	for _, h := range m.handles() {
		total += h.Sweep()
	}
	return total
}

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Drain blocks until no fetch, revalidation or prefetch is running, or ctx ends.
func (m *Manager) Drain(ctx context.Context) error {
	return m.tasks.Wait(ctx)
}

// Close stops every sweeper, refuses further Open calls and drains background
// work. It is safe to call more than once.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	for _, h := range m.handles() {
		h.Close()
	}
	if err := m.Drain(ctx); err != nil {
		return fmt.Errorf("drain background fetches: %w", err)
	}
	return nil
}

func (m *Manager) handles() []handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]handle, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.namespaces[name])
	}
	return out
}

// taskGroup counts detached goroutines. Unlike sync.WaitGroup, Go may be
// called concurrently with Wait.
type taskGroup struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (g *taskGroup) Go(fn func()) {
	g.mu.Lock()
	if g.n == 0 {
		g.idle = make(chan struct{})
	}
	g.n++
	g.mu.Unlock()

	go func() {
		defer g.done()
		fn()
	}()
}

func (g *taskGroup) done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n--
	if g.n == 0 {
		close(g.idle)
	}
}

func (g *taskGroup) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.n == 0 {
			g.mu.Unlock()
			return nil
		}
		idle := g.idle
		g.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
