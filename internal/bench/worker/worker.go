// Package worker runs one benchmark worker: a fixed number of sequential
// connect/send/receive cycles against a single host, each on a fresh TCP
// connection, summing the latency of the cycles that succeed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/httpbench/internal/bench/resolver"
)

// ReceiveBufferSize bounds the single read issued per request
const ReceiveBufferSize = 4096

// Task is the slice of work owned by one worker
type Task struct {
	ID           int
	Host         string
	Port         int
	RequestCount int
}

// Result is what a worker hands back to the coordinator after it terminates
type Result struct {
	WorkerID  int
	Latency   time.Duration // sum over succeeded iterations only
	Attempted int
	Succeeded int
	Failed    int
	Err       error // set when the worker aborted, e.g. resolution failed
}

// LatencySeconds returns the accumulated latency in seconds
func (r Result) LatencySeconds() float64 {
	return r.Latency.Seconds()
}

// Dialer opens TCP connections; *net.Dialer satisfies it
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a Worker. Zero values get sane defaults.
type Options struct {
	Resolver resolver.Resolver
	Dialer   Dialer
	Timeout  time.Duration // applied to resolve, dial and the send/receive deadline; 0 disables
	Observer Observer
	Logger   *zap.Logger
}

// Worker performs the request loop for one Task
type Worker struct {
	task     Task
	request  []byte
	resolver resolver.Resolver
	dialer   Dialer
	timeout  time.Duration
	observer Observer
	logger   *zap.Logger
}

// New creates a Worker for task
func New(task Task, opts Options) *Worker {
	if task.Port == 0 {
		task.Port = resolver.DefaultPort
	}
	if opts.Resolver == nil {
		opts.Resolver = resolver.NewNetResolver(opts.Timeout)
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{Timeout: opts.Timeout}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Worker{
		task:     task,
		request:  BuildRequest(task.Host),
		resolver: opts.Resolver,
		dialer:   opts.Dialer,
		timeout:  opts.Timeout,
		observer: opts.Observer,
		logger:   opts.Logger.With(zap.Int("worker", task.ID), zap.String("host", task.Host)),
	}
}

// BuildRequest returns the fixed GET request sent on every iteration
func BuildRequest(host string) []byte {
	return []byte(fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", host))
}

// Run executes the task. It never returns an error directly: a worker-level
// failure is reported in Result.Err with zero latency.
func (w *Worker) Run(ctx context.Context) Result {
	result := Result{WorkerID: w.task.ID}

	w.observer.WorkerStarted(w.task.ID)
	defer w.observer.WorkerFinished(w.task.ID)

	addr, err := w.resolver.Resolve(ctx, w.task.Host, w.task.Port)
	if err != nil {
		w.observer.ResolutionFailed()
		w.logger.Error("Address resolution failed, worker aborted",
			zap.String("op", "resolve"),
			zap.Error(err))
		result.Err = err
		return result
	}
	defer addr.Release()

	w.logger.Debug("Worker started",
		zap.Strings("addrs", addr.Addrs),
		zap.Int("requests", w.task.RequestCount))

	buf := make([]byte, ReceiveBufferSize)

	for i := 0; i < w.task.RequestCount; i++ {
		if ctx.Err() != nil {
			w.logger.Warn("Worker cancelled",
				zap.Int("completed_iterations", i),
				zap.Int("requests", w.task.RequestCount))
			result.Err = ctx.Err()
			break
		}

		result.Attempted++

		latency, err := w.iterate(ctx, addr, i, buf)
		if err != nil {
			result.Failed++
			w.observer.RequestFailed(opOf(err))
			w.logger.Error("Request failed",
				zap.Int("iteration", i),
				zap.String("op", string(opOf(err))),
				zap.Error(err))
			continue
		}

		result.Succeeded++
		result.Latency += latency
		w.observer.RequestCompleted(latency)
	}

	w.logger.Debug("Worker finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Duration("latency_sum", result.Latency))

	return result
}

// iterate performs one connect/send/receive cycle and returns the time from
// just before the write to the first response bytes
func (w *Worker) iterate(ctx context.Context, addr *resolver.ResolvedAddress, i int, buf []byte) (time.Duration, error) {
	conn, remote, err := w.dial(ctx, addr.Addrs)
	if err != nil {
		return 0, &IterationError{Op: OpConnect, Iteration: i, Err: err}
	}
	defer conn.Close()

	// unblock an in-flight write or read on cancellation
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if w.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(w.timeout))
	}

	start := time.Now()

	if _, err := conn.Write(w.request); err != nil {
		return 0, &IterationError{Op: OpSend, Iteration: i, Addr: remote, Err: err}
	}

	n, err := conn.Read(buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			err = errEmptyResponse
		}
		return 0, &IterationError{Op: OpReceive, Iteration: i, Addr: remote, Err: err}
	}

	return time.Since(start), nil
}

// dial tries the resolved addresses in order and returns the first connection
func (w *Worker) dial(ctx context.Context, addrs []string) (net.Conn, string, error) {
	if len(addrs) == 0 {
		return nil, "", errors.New("no resolved addresses")
	}

	var lastErr error
	for _, a := range addrs {
		conn, err := w.dialer.DialContext(ctx, "tcp", a)
		if err == nil {
			return conn, a, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", lastErr
}

func opOf(err error) Op {
	var iterErr *IterationError
	if errors.As(err, &iterErr) {
		return iterErr.Op
	}
	return ""
}
