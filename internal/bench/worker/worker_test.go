package worker

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/httpbench/internal/bench/resolver"
)

type recordingObserver struct {
	mu         sync.Mutex
	started    []int
	finished   []int
	resolveErr int
	completed  []time.Duration
	failed     []Op
}

func (o *recordingObserver) WorkerStarted(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, id)
}

func (o *recordingObserver) WorkerFinished(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, id)
}

func (o *recordingObserver) ResolutionFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolveErr++
}

func (o *recordingObserver) RequestCompleted(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, d)
}

func (o *recordingObserver) RequestFailed(op Op) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, op)
}

type failingResolver struct{}

func (failingResolver) Resolve(_ context.Context, host string, _ int) (*resolver.ResolvedAddress, error) {
	return nil, &resolver.ResolutionError{Host: host, Err: errors.New("lookup failed")}
}

// startServer accepts connections and hands each one to handle
func startServer(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()

	return ln.Addr().String()
}

// replyOK reads the request head and writes a minimal response
func replyOK(requests chan<- string) func(net.Conn) {
	return func(conn net.Conn) {
		reader := bufio.NewReader(conn)
		var head strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			head.WriteString(line)
			if line == "\r\n" {
				break
			}
		}
		if requests != nil {
			requests <- head.String()
		}
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok"))
	}
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestBuildRequest(t *testing.T) {
	assert.Equal(t,
		"GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n",
		string(BuildRequest("example.com")))
}

func TestWorker_AllSucceed(t *testing.T) {
	requests := make(chan string, 5)
	addr := startServer(t, replyOK(requests))
	obs := &recordingObserver{}

	w := New(Task{ID: 7, Host: "bench.local", RequestCount: 5}, Options{
		Resolver: resolver.StaticResolver{Addrs: []string{addr}},
		Timeout:  2 * time.Second,
		Observer: obs,
		Logger:   zap.NewNop(),
	})

	result := w.Run(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, 7, result.WorkerID)
	assert.Equal(t, 5, result.Attempted)
	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Greater(t, result.Latency, time.Duration(0))

	var sum time.Duration
	for _, d := range obs.completed {
		sum += d
	}
	assert.Equal(t, result.Latency, sum, "accumulated latency is the sum of per-iteration latencies")
	assert.InDelta(t, sum.Seconds(), result.LatencySeconds(), 1e-9)
	assert.Equal(t, []int{7}, obs.started)
	assert.Equal(t, []int{7}, obs.finished)

	for i := 0; i < 5; i++ {
		head := <-requests
		assert.Equal(t, "GET / HTTP/1.1\r\nHost: bench.local\r\nConnection: close\r\n\r\n", head)
	}
}

func TestWorker_ResolutionFailureAbortsTask(t *testing.T) {
	dialer := &countingDialer{}
	obs := &recordingObserver{}

	w := New(Task{ID: 1, Host: "no-such-host.invalid", RequestCount: 10}, Options{
		Resolver: failingResolver{},
		Dialer:   dialer,
		Observer: obs,
	})

	result := w.Run(context.Background())

	var resErr *resolver.ResolutionError
	require.ErrorAs(t, result.Err, &resErr)
	assert.Equal(t, time.Duration(0), result.Latency)
	assert.Equal(t, 0, result.Attempted)
	assert.Equal(t, 0, dialer.calls, "no request may be attempted after a failed resolution")
	assert.Equal(t, 1, obs.resolveErr)
}

func TestWorker_ConnectFailuresAreSkipped(t *testing.T) {
	obs := &recordingObserver{}

	w := New(Task{ID: 2, Host: "bench.local", RequestCount: 3}, Options{
		Resolver: resolver.StaticResolver{Addrs: []string{closedAddr(t)}},
		Timeout:  time.Second,
		Observer: obs,
	})

	result := w.Run(context.Background())

	assert.NoError(t, result.Err)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, time.Duration(0), result.Latency)
	assert.Equal(t, []Op{OpConnect, OpConnect, OpConnect}, obs.failed)
}

func TestWorker_FallsBackToNextAddress(t *testing.T) {
	good := startServer(t, replyOK(nil))

	w := New(Task{ID: 3, Host: "bench.local", RequestCount: 2}, Options{
		Resolver: resolver.StaticResolver{Addrs: []string{closedAddr(t), good}},
		Timeout:  time.Second,
	})

	result := w.Run(context.Background())
	assert.Equal(t, 2, result.Succeeded)
}

func TestWorker_EmptyResponseIsReceiveError(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		buf := make([]byte, 512)
		_, _ = conn.Read(buf)
	})
	obs := &recordingObserver{}

	w := New(Task{ID: 4, Host: "bench.local", RequestCount: 2}, Options{
		Resolver: resolver.StaticResolver{Addrs: []string{addr}},
		Timeout:  time.Second,
		Observer: obs,
	})

	result := w.Run(context.Background())

	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, time.Duration(0), result.Latency)
	assert.Equal(t, []Op{OpReceive, OpReceive}, obs.failed)
}

func TestWorker_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	addr := startServer(t, func(conn net.Conn) { <-release })

	w := New(Task{ID: 5, Host: "bench.local", RequestCount: 1}, Options{
		Resolver: resolver.StaticResolver{Addrs: []string{addr}},
		Timeout:  100 * time.Millisecond,
	})

	start := time.Now()
	result := w.Run(context.Background())

	assert.Equal(t, 1, result.Failed)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWorker_CancelStopsLoop(t *testing.T) {
	addr := startServer(t, replyOK(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(Task{ID: 6, Host: "bench.local", RequestCount: 100}, Options{
		Resolver: resolver.StaticResolver{Addrs: []string{addr}},
	})

	result := w.Run(ctx)

	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 0, result.Attempted)
}

func TestIterationErrorHelpers(t *testing.T) {
	connErr := &IterationError{Op: OpConnect, Iteration: 1, Err: errors.New("refused")}
	sendErr := &IterationError{Op: OpSend, Iteration: 2, Addr: "1.2.3.4:80", Err: errors.New("broken pipe")}
	recvErr := &IterationError{Op: OpReceive, Iteration: 3, Err: errEmptyResponse}

	assert.True(t, IsConnectionError(connErr))
	assert.False(t, IsConnectionError(sendErr))
	assert.True(t, IsSendError(sendErr))
	assert.True(t, IsReceiveError(recvErr))
	assert.ErrorIs(t, recvErr, errEmptyResponse)
	assert.Equal(t, "iteration 2: send 1.2.3.4:80: broken pipe", sendErr.Error())
	assert.Equal(t, "iteration 1: connect: refused", connErr.Error())
}

type countingDialer struct {
	calls int
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls++
	return nil, errors.New("unexpected dial")
}
