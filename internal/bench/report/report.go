// Package report aggregates joined worker results and renders the summary table.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/edgecomet/httpbench/internal/bench/worker"
)

// BenchmarkReport is computed once after every worker has been joined.
// The averaged metrics divide by the nominal request count, so failed
// iterations lower the average latency and raise the throughput; the
// success and failure counts are carried alongside to make that visible.
type BenchmarkReport struct {
	WorkerCount                 int     `json:"worker_count"`
	RequestsPerWorker           int     `json:"requests_per_worker"`
	NominalRequests             int     `json:"nominal_requests"`
	TotalLatencySeconds         float64 `json:"total_latency_seconds"`
	AverageLatencySeconds       float64 `json:"average_latency_seconds"`
	ThroughputRequestsPerSecond float64 `json:"throughput_requests_per_second"`

	SucceededRequests int     `json:"succeeded_requests"`
	FailedRequests    int     `json:"failed_requests"`
	AbortedWorkers    int     `json:"aborted_workers"`
	JoinFailures      int     `json:"join_failures"`
	WallClockSeconds  float64 `json:"wall_clock_seconds"`
}

// Input carries what the aggregator needs from a finished run
type Input struct {
	WorkerCount       int
	RequestsPerWorker int
	Results           []worker.Result // joined workers only
	JoinFailures      int
	Elapsed           time.Duration
}

// Aggregate sums the joined workers' latencies and derives the report.
// With no recorded latency the throughput is 0 rather than +Inf.
func Aggregate(in Input) BenchmarkReport {
	r := BenchmarkReport{
		WorkerCount:       in.WorkerCount,
		RequestsPerWorker: in.RequestsPerWorker,
		NominalRequests:   in.WorkerCount * in.RequestsPerWorker,
		JoinFailures:      in.JoinFailures,
		WallClockSeconds:  in.Elapsed.Seconds(),
	}

	var total time.Duration
	for _, res := range in.Results {
		total += res.Latency
		r.SucceededRequests += res.Succeeded
		r.FailedRequests += res.Failed
		if res.Err != nil && res.Attempted == 0 {
			r.AbortedWorkers++
		}
	}
	r.TotalLatencySeconds = total.Seconds()

	if r.NominalRequests > 0 {
		r.AverageLatencySeconds = r.TotalLatencySeconds / float64(r.NominalRequests)
	}
	if r.TotalLatencySeconds > 0 {
		r.ThroughputRequestsPerSecond = float64(r.NominalRequests) / r.TotalLatencySeconds
	}

	return r
}

// StartupLine announces the run before any worker starts
func StartupLine(workers, requestsPerWorker int, host string) string {
	return fmt.Sprintf("Executing test with %d threads, each making %d requests to host: %s",
		workers, requestsPerWorker, host)
}

const (
	tableBorder = "+--------------------------------+----------------------------+\n"
	tableRow    = "| %-30s | %-26s |\n"
)

// Render writes the fixed-width summary table
func Render(w io.Writer, r BenchmarkReport) error {
	rows := [][2]string{
		{"Average Latency", fmt.Sprintf("%.5f seconds", r.AverageLatencySeconds)},
		{"Total Requests", fmt.Sprintf("%d", r.NominalRequests)},
		{"Throughput", fmt.Sprintf("%.2f requests/sec", r.ThroughputRequestsPerSecond)},
	}

	if _, err := io.WriteString(w, tableBorder); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, tableRow, "Metric", "Value"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, tableBorder); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, tableRow, row[0], row[1]); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, tableBorder)
	return err
}
