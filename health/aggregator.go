package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds one Run of every checker.
const DefaultTimeout = 10 * time.Second

// Report is the combined outcome of every registered checker.
type Report struct {
	Status    Status
	Checks    map[string]Result
	Timestamp time.Time
}

// Aggregator combines multiple health checkers into a single report.
type Aggregator struct {
	timeout time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewAggregator creates an aggregator. A non-positive timeout means DefaultTimeout.
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Aggregator{
		timeout:  timeout,
		now:      time.Now,
		checkers: make(map[string]Checker),
	}
}

// Register adds c under c.Name(), replacing any checker with that name.
func (a *Aggregator) Register(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := c.Name()
	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = c
}

// Unregister removes the checker called name.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.checkers[name]; !ok {
		return
	}
	delete(a.checkers, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Names returns the registered checker names in registration order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// Check runs the checker called name.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	c, ok := a.checkers[name]
	a.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrCheckerNotFound, name)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.run(ctx, c), nil
}

// Run executes every checker concurrently and reports the worst status.
// An empty aggregator is healthy.
func (a *Aggregator) Run(ctx context.Context) Report {
	a.mu.RLock()
	checkers := make([]Checker, 0, len(a.order))
	for _, name := range a.order {
		checkers = append(checkers, a.checkers[name])
	}
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make([]Result, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = a.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:    StatusHealthy,
		Checks:    make(map[string]Result, len(checkers)),
		Timestamp: a.now(),
	}
	for i, c := range checkers {
		report.Checks[c.Name()] = results[i]
		report.Status = report.Status.Worse(results[i].Status)
	}
	return report
}

// run bounds one check by ctx. A checker that ignores ctx is abandoned.
func (a *Aggregator) run(ctx context.Context, c Checker) Result {
	start := a.now()

	resultCh := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- Unhealthy(fmt.Sprintf("check panicked: %v", r), ErrCheckPanicked)
			}
		}()
		resultCh <- c.Check(ctx)
	}()

	var result Result
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		result = Unhealthy("check timed out", ErrCheckTimeout)
	}
	result.Duration = a.now().Sub(start)
	if result.Timestamp.IsZero() {
		result.Timestamp = start
	}
	return result
}
