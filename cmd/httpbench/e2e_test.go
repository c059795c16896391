package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/valyala/fasthttp"

	"github.com/edgecomet/httpbench/internal/bench/pool"
	"github.com/edgecomet/httpbench/internal/bench/resolver"
)

var (
	avgRowPattern        = regexp.MustCompile(`\| Average Latency\s+\| ([0-9.]+) seconds\s+\|`)
	totalRowPattern      = regexp.MustCompile(`\| Total Requests\s+\| ([0-9]+)\s+\|`)
	throughputRowPattern = regexp.MustCompile(`\| Throughput\s+\| ([0-9.]+) requests/sec\s+\|`)
)

func parseRow(pattern *regexp.Regexp, out string) float64 {
	m := pattern.FindStringSubmatch(out)
	ExpectWithOffset(1, m).To(HaveLen(2), "row not found in:\n%s", out)
	v, err := strconv.ParseFloat(m[1], 64)
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
	return v
}

var _ = Describe("httpbench", func() {
	var (
		ln     net.Listener
		server *fasthttp.Server
		hits   atomic.Int64
		stdout *bytes.Buffer
		stderr *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		ln, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())

		hits.Store(0)
		server = &fasthttp.Server{
			Handler: func(ctx *fasthttp.RequestCtx) {
				hits.Add(1)
				ctx.SetStatusCode(fasthttp.StatusOK)
				ctx.SetBodyString("ok")
			},
		}
		go func() { _ = server.Serve(ln) }()

		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	AfterEach(func() {
		_ = server.Shutdown()
	})

	localEnv := func(cores int) environment {
		return environment{
			stdout:   stdout,
			stderr:   stderr,
			cores:    pool.StaticCores(cores),
			resolver: resolver.StaticResolver{Addrs: []string{ln.Addr().String()}},
		}
	}

	Describe("against a reachable server", func() {
		It("should run every worker and print the summary table", func() {
			code := run(context.Background(), []string{"-timeout", "5s", "bench.local", "5"}, localEnv(2))
			Expect(code).To(Equal(0), stderr.String())

			out := stdout.String()
			lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
			Expect(lines[0]).To(Equal("Executing test with 2 threads, each making 5 requests to host: bench.local"))

			Expect(out).To(ContainSubstring("| Metric                         | Value                      |"))
			Expect(strings.Count(out, "+--------------------------------+----------------------------+")).To(Equal(3))

			Expect(parseRow(totalRowPattern, out)).To(Equal(10.0))
			Expect(parseRow(avgRowPattern, out)).To(BeNumerically(">", 0))
			Expect(parseRow(throughputRowPattern, out)).To(BeNumerically(">", 0))

			Eventually(hits.Load).Should(Equal(int64(10)))
		})

		It("should cap workers at -max-workers", func() {
			code := run(context.Background(), []string{"-max-workers", "3", "bench.local", "2"}, localEnv(16))
			Expect(code).To(Equal(0))
			Expect(stdout.String()).To(HavePrefix("Executing test with 3 threads, each making 2 requests"))
			Expect(parseRow(totalRowPattern, stdout.String())).To(Equal(6.0))
		})

		It("should log the success and failure counts", func() {
			code := run(context.Background(), []string{"-log-level", "info", "bench.local", "1"}, localEnv(1))
			Expect(code).To(Equal(0))
			Expect(stderr.String()).To(ContainSubstring("Benchmark finished"))
			Expect(stderr.String()).To(ContainSubstring("run_id"))
			Expect(stderr.String()).To(ContainSubstring(`"succeeded": 1`))
			Expect(stderr.String()).To(ContainSubstring(`"failed": 0`))
		})

		It("should count failures separately when the server closes without replying", func() {
			silent, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ToNot(HaveOccurred())
			defer silent.Close()
			go func() {
				for {
					conn, err := silent.Accept()
					if err != nil {
						return
					}
					_ = conn.Close()
				}
			}()

			env := localEnv(1)
			env.resolver = resolver.StaticResolver{Addrs: []string{silent.Addr().String()}}

			code := run(context.Background(), []string{"bench.local", "3"}, env)
			Expect(code).To(Equal(0))
			Expect(parseRow(totalRowPattern, stdout.String())).To(Equal(3.0))
			Expect(stderr.String()).To(ContainSubstring(`"succeeded": 0`))
			Expect(stderr.String()).To(ContainSubstring(`"failed": 3`))
		})

		It("should store the run in history when enabled", func() {
			mr, err := miniredis.Run()
			Expect(err).ToNot(HaveOccurred())
			defer mr.Close()

			configPath := filepath.Join(GinkgoT().TempDir(), "httpbench.yaml")
			Expect(os.WriteFile(configPath, []byte(fmt.Sprintf(`
history:
  enabled: true
  max_runs: 5
  redis:
    addr: %s
`, mr.Addr())), 0o644)).To(Succeed())

			code := run(context.Background(), []string{"-c", configPath, "-label", "Smoke Test", "bench.local", "2"}, localEnv(1))
			Expect(code).To(Equal(0), stderr.String())

			ids, err := mr.List("httpbench:runs")
			Expect(err).ToNot(HaveOccurred())
			Expect(ids).To(HaveLen(1))
			Expect(ids[0]).To(HaveSuffix("-smoke-test"))
			Expect(mr.Exists("httpbench:run:" + ids[0])).To(BeTrue())
			Expect(stderr.String()).To(ContainSubstring(ids[0]))
			Expect(stderr.String()).ToNot(ContainSubstring("Compared with previous run"))

			stderr.Reset()
			code = run(context.Background(), []string{"-c", configPath, "bench.local", "2"}, localEnv(1))
			Expect(code).To(Equal(0), stderr.String())

			ids, err = mr.List("httpbench:runs")
			Expect(err).ToNot(HaveOccurred())
			Expect(ids).To(HaveLen(2))
			Expect(stderr.String()).To(ContainSubstring("Compared with previous run"))
			Expect(stderr.String()).To(ContainSubstring(`"previous_run_id": "` + ids[1] + `"`))
		})
	})

	Describe("against an unreachable target", func() {
		It("should report zeros when the host cannot be resolved", func() {
			env := localEnv(2)
			env.resolver = resolver.StaticResolver{}

			code := run(context.Background(), []string{"nowhere.invalid", "4"}, env)
			Expect(code).To(Equal(0))

			out := stdout.String()
			Expect(parseRow(totalRowPattern, out)).To(Equal(8.0))
			Expect(out).To(ContainSubstring("0.00000 seconds"))
			Expect(out).To(ContainSubstring("0.00 requests/sec"))
			Expect(hits.Load()).To(BeZero())
		})

		It("should stop early when cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			code := run(ctx, []string{"bench.local", "50"}, localEnv(2))
			Expect(code).To(Equal(0))
			Expect(parseRow(totalRowPattern, stdout.String())).To(Equal(100.0))
			Expect(stderr.String()).To(ContainSubstring("Benchmark interrupted"))
		})
	})
})
