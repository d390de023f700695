package preload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/staffcache/cache"
	"github.com/jonwraymond/staffcache/observe"
)

// DefaultConcurrency bounds how many top-level tasks run at once.
const DefaultConcurrency = 4

// Task is one unit of warm-up work.
type Task struct {
	// Name identifies the task in logs and reports.
	Name string

	// Run performs the work.
	Run func(ctx context.Context) error

	// Then lists tasks scheduled once Run returns, whatever its outcome.
	Then []FollowUp
}

// FollowUp is a task started after Delay, detached from the parent.
type FollowUp struct {
	Delay time.Duration
	Task  Task
}

// Validate checks that t and its follow-ups can run.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if t.Run == nil {
		return fmt.Errorf("%w: %s: run is nil", ErrInvalidTask, t.Name)
	}
	for _, f := range t.Then {
		if f.Delay < 0 {
			return fmt.Errorf("%w: %s: negative follow-up delay", ErrInvalidTask, t.Name)
		}
		if err := f.Task.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Seed returns a task that fetches args with fetch and stores the result in ns
// with a fresh timestamp, bypassing dedup. A nil fetch uses the namespace's
// own fetch function.
func Seed[T any](ns *cache.Namespace[T], fetch cache.FetchFunc[T], args ...any) Task {
	name := ns.Name()
	if len(args) > 0 {
		name = fmt.Sprintf("%s%v", name, args)
	}
	return Task{
		Name: name,
		Run: func(ctx context.Context) error {
			return ns.Load(ctx, fetch, args...)
		},
	}
}

// Failure records one failed task.
type Failure struct {
	Task string
	Err  error
}

// Report summarizes the top-level tasks of a Run. Follow-ups are not included.
type Report struct {
	Succeeded []string
	Failed    []Failure
}

// Err joins every failure, or returns nil when all tasks succeeded.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Task, f.Err))
	}
	return errors.Join(errs...)
}

// Option configures a Preloader.
type Option func(*Preloader)

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(p *Preloader) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithConcurrency bounds parallel top-level tasks. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(p *Preloader) {
		if n > 0 {
			p.limit = n
		}
	}
}

// Preloader runs warm-up tasks once.
//
// Contract:
// - Concurrency: Run is called once; Wait and Close are safe after Run returns.
// - Errors: task failures are logged and reported, never returned from Run.
type Preloader struct {
	tasks  []Task
	logger observe.Logger
	limit  int

	mu      sync.Mutex
	ran     bool
	closed  bool
	cancel  context.CancelFunc
	pending errgroup.Group
}

// New creates a Preloader for tasks.
func New(tasks []Task, opts ...Option) (*Preloader, error) {
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	p := &Preloader{
		tasks:  append([]Task(nil), tasks...),
		logger: observe.NopLogger(),
		limit:  DefaultConcurrency,
		cancel: func() {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes every task in parallel and waits for them, but not for their
// follow-ups. Follow-ups keep running after ctx is cancelled; use Close to stop
// them.
func (p *Preloader) Run(ctx context.Context) (Report, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Report{}, ErrClosed
	}
	if p.ran {
		p.mu.Unlock()
		return Report{}, ErrAlreadyRun
	}
	p.ran = true
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.mu.Unlock()

	start := time.Now()
	var (
		g   errgroup.Group
		mu  sync.Mutex
		rep Report
	)
	g.SetLimit(p.limit)

	for _, task := range p.tasks {
		g.Go(func() error {
			err := p.runTask(ctx, task)

			mu.Lock()
			if err != nil {
				rep.Failed = append(rep.Failed, Failure{Task: task.Name, Err: err})
			} else {
				rep.Succeeded = append(rep.Succeeded, task.Name)
			}
			mu.Unlock()

			p.schedule(bg, task.Then)
			// Failures are collected, not propagated, so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(rep.Succeeded)
	sort.Slice(rep.Failed, func(i, j int) bool { return rep.Failed[i].Task < rep.Failed[j].Task })

	p.logger.Info(ctx, "preload finished",
		observe.F("succeeded", len(rep.Succeeded)),
		observe.F("failed", len(rep.Failed)),
		observe.F("duration_ms", time.Since(start).Milliseconds()),
	)
	return rep, nil
}

// Wait blocks until every scheduled follow-up has finished or ctx ends.
func (p *Preloader) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = p.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels follow-ups that have not started and waits for running ones.
// Close is idempotent.
func (p *Preloader) Close() {
	p.mu.Lock()
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	_ = p.pending.Wait()
}

func (p *Preloader) schedule(ctx context.Context, followUps []FollowUp) {
	for _, f := range followUps {
		p.pending.Go(func() error {
			timer := time.NewTimer(f.Delay)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				p.logger.Debug(ctx, "preload follow-up cancelled", observe.F("task", f.Task.Name))
				return nil
			case <-timer.C:
			}

			_ = p.runTask(ctx, f.Task)
			p.schedule(ctx, f.Task.Then)
			return nil
		})
	}
}

// runTask runs one task, recovering panics and logging the outcome.
func (p *Preloader) runTask(ctx context.Context, task Task) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
		if err != nil {
			p.logger.Error(ctx, "preload task failed",
				observe.F("task", task.Name),
				observe.F("error", err),
			)
			return
		}
		p.logger.Debug(ctx, "preload task completed",
			observe.F("task", task.Name),
			observe.F("duration_ms", time.Since(start).Milliseconds()),
		)
	}()
	return task.Run(ctx)
}
