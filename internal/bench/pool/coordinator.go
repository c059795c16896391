// Package pool sizes the worker pool from the available cores, launches every
// worker at once and waits for all of them before handing back the results.
package pool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/httpbench/internal/bench/resolver"
	"github.com/edgecomet/httpbench/internal/bench/worker"
)

// JoinError means a worker's result could not be collected; it is left out of the totals
type JoinError struct {
	WorkerID int
	Cause    interface{}
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("failed to join worker %d: %v", e.WorkerID, e.Cause)
}

// Config holds the inputs of one benchmark run
type Config struct {
	Host              string
	Port              int // 0 means resolver.DefaultPort
	RequestsPerWorker int
	MaxWorkers        int
	Timeout           time.Duration
}

// Outcome is the joined state of a run
type Outcome struct {
	WorkerCount       int
	RequestsPerWorker int
	Results           []worker.Result // joined workers only, ordered by worker id
	JoinErrors        []error
	Elapsed           time.Duration
}

// NominalRequests is workerCount x requestsPerWorker, independent of outcomes
func (o *Outcome) NominalRequests() int {
	return o.WorkerCount * o.RequestsPerWorker
}

// RunFunc executes a single task; it is swapped out in tests
type RunFunc func(ctx context.Context, task worker.Task) worker.Result

// Coordinator owns worker sizing and the join-all barrier
type Coordinator struct {
	config   Config
	cores    CoreProvider
	resolver resolver.Resolver
	dialer   worker.Dialer
	observer worker.Observer
	logger   *zap.Logger
	runTask  RunFunc
}

// Option customizes a Coordinator
type Option func(*Coordinator)

// WithCores sets the core-count source
func WithCores(cores CoreProvider) Option {
	return func(c *Coordinator) { c.cores = cores }
}

// WithResolver sets the resolver every worker uses
func WithResolver(r resolver.Resolver) Option {
	return func(c *Coordinator) { c.resolver = r }
}

// WithDialer sets the dialer every worker uses
func WithDialer(d worker.Dialer) Option {
	return func(c *Coordinator) { c.dialer = d }
}

// WithObserver attaches live event reporting, e.g. metrics
func WithObserver(o worker.Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithRunFunc replaces the worker body
func WithRunFunc(fn RunFunc) Option {
	return func(c *Coordinator) { c.runTask = fn }
}

// NewCoordinator creates a Coordinator. The request count is normalized here.
func NewCoordinator(cfg Config, logger *zap.Logger, opts ...Option) (*Coordinator, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.RequestsPerWorker = NormalizeRequests(cfg.RequestsPerWorker, 0)
	if cfg.Port == 0 {
		cfg.Port = resolver.DefaultPort
	}

	c := &Coordinator{
		config:   cfg,
		cores:    SystemCores{},
		observer: worker.NopObserver{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runTask == nil {
		c.runTask = c.defaultRun
	}

	return c, nil
}

// WorkerCount is the number of workers Run will launch
func (c *Coordinator) WorkerCount() int {
	return WorkerCount(c.config.MaxWorkers, c.cores)
}

// RequestsPerWorker is the normalized per-worker request count
func (c *Coordinator) RequestsPerWorker() int {
	return c.config.RequestsPerWorker
}

// Tasks builds one task per worker slot; they differ only by ID
func (c *Coordinator) Tasks() []worker.Task {
	n := c.WorkerCount()
	tasks := make([]worker.Task, n)
	for i := range tasks {
		tasks[i] = worker.Task{
			ID:           i,
			Host:         c.config.Host,
			Port:         c.config.Port,
			RequestCount: c.config.RequestsPerWorker,
		}
	}
	return tasks
}

// Run launches every worker and blocks until all have terminated.
// Workers share nothing while running; each writes only its own slot.
func (c *Coordinator) Run(ctx context.Context) *Outcome {
	tasks := c.Tasks()
	results := make([]worker.Result, len(tasks))
	joinErrs := make([]error, len(tasks))

	c.logger.Info("Starting workers",
		zap.Int("workers", len(tasks)),
		zap.Int("requests_per_worker", c.config.RequestsPerWorker),
		zap.String("host", c.config.Host))

	start := time.Now()

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task worker.Task) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					joinErrs[i] = &JoinError{WorkerID: task.ID, Cause: r}
					c.logger.Error("Worker crashed",
						zap.Int("worker", task.ID),
						zap.String("op", "join"),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()))
				}
			}()
			results[i] = c.runTask(ctx, task)
		}(i, task)
	}
	wg.Wait()

	outcome := &Outcome{
		WorkerCount:       len(tasks),
		RequestsPerWorker: c.config.RequestsPerWorker,
		Results:           make([]worker.Result, 0, len(tasks)),
		Elapsed:           time.Since(start),
	}
	for i := range tasks {
		if joinErrs[i] != nil {
			outcome.JoinErrors = append(outcome.JoinErrors, joinErrs[i])
			continue
		}
		outcome.Results = append(outcome.Results, results[i])
	}

	c.logger.Debug("All workers joined",
		zap.Int("joined", len(outcome.Results)),
		zap.Int("join_errors", len(outcome.JoinErrors)),
		zap.Duration("elapsed", outcome.Elapsed))

	return outcome
}

func (c *Coordinator) defaultRun(ctx context.Context, task worker.Task) worker.Result {
	w := worker.New(task, worker.Options{
		Resolver: c.resolver,
		Dialer:   c.dialer,
		Timeout:  c.config.Timeout,
		Observer: c.observer,
		Logger:   c.logger,
	})
	return w.Run(ctx)
}
