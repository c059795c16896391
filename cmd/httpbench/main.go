package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edgecomet/httpbench/internal/bench/history"
	"github.com/edgecomet/httpbench/internal/bench/metrics"
	"github.com/edgecomet/httpbench/internal/bench/pool"
	"github.com/edgecomet/httpbench/internal/bench/report"
	"github.com/edgecomet/httpbench/internal/bench/resolver"
	"github.com/edgecomet/httpbench/internal/common/config"
	"github.com/edgecomet/httpbench/internal/common/configtypes"
	"github.com/edgecomet/httpbench/internal/common/logger"
	"github.com/edgecomet/httpbench/internal/common/metricsserver"
	"github.com/edgecomet/httpbench/internal/common/redis"
	"github.com/edgecomet/httpbench/internal/common/runid"
	"github.com/edgecomet/httpbench/pkg/types"
)

// environment is what run needs from the process; tests substitute it
type environment struct {
	stdout   io.Writer
	stderr   io.Writer
	cores    pool.CoreProvider // nil means gopsutil
	resolver resolver.Resolver // nil means DNS
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], environment{stdout: os.Stdout, stderr: os.Stderr})
	stop()
	os.Exit(code)
}

// run executes one benchmark and returns the process exit code
func run(ctx context.Context, args []string, env environment) int {
	opts, err := parseArgs(args, env.stderr)
	if err != nil {
		fmt.Fprintf(env.stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(env.stderr, "Error: %v\n", err)
		return 1
	}

	dynamicLogger, err := logger.NewLogger(cfg.Log, zapcore.Lock(zapcore.AddSync(env.stderr)))
	if err != nil {
		fmt.Fprintf(env.stderr, "Error: failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = dynamicLogger.Sync() }()

	if level := opts.levelOverride(); level != "" {
		dynamicLogger.SetLevel(level)
	}

	runID := runid.New(opts.label)
	zapLogger := dynamicLogger.With(zap.String("run_id", runID))

	if len(opts.ignored) > 0 {
		zapLogger.Warn("Ignoring extra arguments", zap.Strings("args", opts.ignored))
	}

	requests := cfg.Bench.DefaultRequests
	if opts.requests != "" {
		requests = pool.ParseRequests(opts.requests, cfg.Bench.DefaultRequests)
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace, zapLogger)
	metricsSrv, err := metricsserver.Start(cfg.Metrics, collector, zapLogger)
	if err != nil {
		zapLogger.Error("Failed to start metrics server, continuing without metrics", zap.Error(err))
		metricsSrv = nil
	}
	if metricsSrv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				zapLogger.Warn("Failed to shut down metrics server", zap.Error(err))
			}
		}()
	}

	coordOpts := []pool.Option{pool.WithObserver(collector)}
	if env.cores != nil {
		coordOpts = append(coordOpts, pool.WithCores(env.cores))
	}
	if env.resolver != nil {
		coordOpts = append(coordOpts, pool.WithResolver(env.resolver))
	}

	coordinator, err := pool.NewCoordinator(pool.Config{
		Host:              opts.host,
		RequestsPerWorker: requests,
		MaxWorkers:        cfg.Bench.MaxWorkers,
		Timeout:           cfg.Bench.Timeout.ToDuration(),
	}, zapLogger, coordOpts...)
	if err != nil {
		zapLogger.Error("Failed to create coordinator", zap.Error(err))
		return 1
	}

	workers := coordinator.WorkerCount()
	collector.SetWorkers(workers)
	fmt.Fprintln(env.stdout, report.StartupLine(workers, coordinator.RequestsPerWorker(), opts.host))

	startedAt := time.Now()
	outcome := coordinator.Run(ctx)

	for _, joinErr := range outcome.JoinErrors {
		var je *pool.JoinError
		if errors.As(joinErr, &je) {
			zapLogger.Warn("Worker excluded from totals", zap.Int("worker", je.WorkerID), zap.Error(joinErr))
		}
	}
	collector.RecordJoinFailures(len(outcome.JoinErrors))

	rep := report.Aggregate(report.Input{
		WorkerCount:       outcome.WorkerCount,
		RequestsPerWorker: outcome.RequestsPerWorker,
		Results:           outcome.Results,
		JoinFailures:      len(outcome.JoinErrors),
		Elapsed:           outcome.Elapsed,
	})

	if err := report.Render(env.stdout, rep); err != nil {
		zapLogger.Error("Failed to write report", zap.Error(err))
	}

	zapLogger.Info("Benchmark finished",
		zap.String("host", opts.host),
		zap.Int("workers", rep.WorkerCount),
		zap.Int("nominal_requests", rep.NominalRequests),
		zap.Int("succeeded", rep.SucceededRequests),
		zap.Int("failed", rep.FailedRequests),
		zap.Int("aborted_workers", rep.AbortedWorkers),
		zap.Int("join_failures", rep.JoinFailures),
		zap.Float64("wall_clock_seconds", rep.WallClockSeconds))

	if ctx.Err() != nil {
		zapLogger.Warn("Benchmark interrupted, totals cover completed iterations only")
	}

	if cfg.History.Enabled {
		rec := history.NewRecord(runID, opts.host, startedAt)
		rec.Settings = history.Settings{
			MaxWorkers:        cfg.Bench.MaxWorkers,
			RequestsPerWorker: coordinator.RequestsPerWorker(),
			TimeoutSeconds:    cfg.Bench.Timeout.ToDuration().Seconds(),
		}
		rec.Report = rep
		saveHistory(cfg.History, rec, zapLogger)
	}

	return 0
}

// loadConfig layers defaults, the optional config file and flag overrides
func loadConfig(opts *cliOptions) (*config.BenchConfig, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		path, err := config.GetConfigPath(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg, err = config.LoadBenchConfig(path)
		if err != nil {
			return nil, err
		}
	}

	if opts.timeout >= 0 {
		cfg.Bench.Timeout = types.Duration(opts.timeout)
	}
	if opts.maxWorkers >= 0 {
		if opts.maxWorkers == 0 {
			return nil, &ArgumentError{Msg: "-max-workers must be positive"}
		}
		cfg.Bench.MaxWorkers = opts.maxWorkers
	}
	if opts.logLevel != "" {
		if err := config.ValidateLogLevel(opts.logLevel); err != nil {
			return nil, &ArgumentError{Msg: "invalid -log-level", Err: err}
		}
	}

	return cfg, nil
}

// saveHistory stores the run; failures are logged only
func saveHistory(cfg configtypes.HistoryConfig, rec *history.Record, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Run history unavailable", zap.Error(err))
		return
	}
	defer client.Close()

	store, err := history.NewStore(client, cfg.MaxRuns, logger)
	if err != nil {
		logger.Warn("Run history unavailable", zap.Error(err))
		return
	}

	previous, err := store.Recent(ctx, 1)
	if err != nil {
		logger.Warn("Failed to read run history", zap.Error(err))
	}

	if err := store.Save(ctx, rec); err != nil {
		logger.Warn("Failed to save run history", zap.Error(err))
		return
	}

	logger.Info("Run saved to history")

	if len(previous) == 1 {
		logComparison(previous[0], rec, logger)
	}
}

// logComparison reports how this run differs from the last stored one
func logComparison(prev, cur *history.Record, logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("previous_run_id", prev.ID),
		zap.String("previous_host", prev.Host),
		zap.Time("previous_started_at", prev.StartedAt),
		zap.Float64("previous_average_latency_seconds", prev.Report.AverageLatencySeconds),
		zap.Float64("average_latency_seconds", cur.Report.AverageLatencySeconds),
		zap.Float64("previous_throughput", prev.Report.ThroughputRequestsPerSecond),
		zap.Float64("throughput", cur.Report.ThroughputRequestsPerSecond),
	}
	if prev.Host != cur.Host {
		fields = append(fields, zap.Bool("different_host", true))
	}

	logger.Info("Compared with previous run", fields...)
}
