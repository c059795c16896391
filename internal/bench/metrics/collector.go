// Package metrics exposes live benchmark progress as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/edgecomet/httpbench/internal/bench/worker"
)

// Request outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeConnect = "connect_error"
	OutcomeSend    = "send_error"
	OutcomeReceive = "receive_error"
)

// Collector records worker events. It implements worker.Observer.
type Collector struct {
	requestsTotal      *prometheus.CounterVec
	requestLatency     prometheus.Histogram
	resolutionFailures prometheus.Counter
	workersActive      prometheus.Gauge
	workers            prometheus.Gauge
	joinFailures       prometheus.Counter

	gatherer    prometheus.Gatherer
	httpHandler func(*fasthttp.RequestCtx)
	logger      *zap.Logger
}

var _ worker.Observer = (*Collector)(nil)

// NewCollector creates a collector on its own registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.NewRegistry(), logger)
}

// NewCollectorWithRegistry creates a collector registered on registerer.
// If registerer is not also a Gatherer, the default gatherer is served.
func NewCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{logger: logger}

	c.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Request cycles by outcome",
	}, []string{"outcome"})

	c.requestLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_latency_seconds",
		Help:      "Time from request send to first response bytes",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16), // 0.5ms to ~16s
	})

	c.resolutionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolution_failures_total",
		Help:      "Workers aborted because the host could not be resolved",
	})

	c.workersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workers_active",
		Help:      "Workers currently running",
	})

	c.workers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workers",
		Help:      "Workers launched for the current run",
	})

	c.joinFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "join_failures_total",
		Help:      "Workers whose results could not be collected",
	})

	registerer.MustRegister(
		c.requestsTotal,
		c.requestLatency,
		c.resolutionFailures,
		c.workersActive,
		c.workers,
		c.joinFailures,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	c.gatherer = gatherer
	c.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Benchmark metrics initialized", zap.String("namespace", namespace))
	return c
}

// Gatherer returns the gatherer backing the /metrics endpoint
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// SetWorkers records the size of the pool for this run
func (c *Collector) SetWorkers(n int) {
	c.workers.Set(float64(n))
}

// RecordJoinFailures adds workers that could not be joined
func (c *Collector) RecordJoinFailures(n int) {
	c.joinFailures.Add(float64(n))
}

// WorkerStarted implements worker.Observer
func (c *Collector) WorkerStarted(int) {
	c.workersActive.Inc()
}

// WorkerFinished implements worker.Observer
func (c *Collector) WorkerFinished(int) {
	c.workersActive.Dec()
}

// ResolutionFailed implements worker.Observer
func (c *Collector) ResolutionFailed() {
	c.resolutionFailures.Inc()
}

// RequestCompleted implements worker.Observer
func (c *Collector) RequestCompleted(latency time.Duration) {
	c.requestsTotal.WithLabelValues(OutcomeSuccess).Inc()
	c.requestLatency.Observe(latency.Seconds())
}

// RequestFailed implements worker.Observer
func (c *Collector) RequestFailed(op worker.Op) {
	c.requestsTotal.WithLabelValues(outcomeFor(op)).Inc()
}

// ServeHTTP serves the metrics in Prometheus text format
func (c *Collector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	c.httpHandler(ctx)
}

// RequestCount returns the current value of requests_total for outcome
func (c *Collector) RequestCount(outcome string) float64 {
	metric := &dto.Metric{}
	if err := c.requestsTotal.WithLabelValues(outcome).Write(metric); err != nil {
		c.logger.Warn("Failed to read counter value", zap.Error(err))
		return 0
	}
	return metric.GetCounter().GetValue()
}

func outcomeFor(op worker.Op) string {
	switch op {
	case worker.OpConnect:
		return OutcomeConnect
	case worker.OpSend:
		return OutcomeSend
	default:
		return OutcomeReceive
	}
}
