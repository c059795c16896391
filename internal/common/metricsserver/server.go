package metricsserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/httpbench/internal/common/configtypes"
)

// MetricsHandler interface for metrics collectors
type MetricsHandler interface {
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

// Server is a running metrics endpoint
type Server struct {
	srv    *fasthttp.Server
	ln     net.Listener
	logger *zap.Logger
}

// Addr is the address the server is bound to
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes up to ctx's deadline
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("Stopping metrics server", zap.String("listen", s.Addr()))
	return s.srv.ShutdownWithContext(ctx)
}

// Start binds the metrics listener and serves handler at cfg.Path.
// Returns nil when metrics are disabled. Bind errors are returned
// synchronously so a busy port is reported before the run starts.
func Start(cfg configtypes.MetricsConfig, handler MetricsHandler, logger *zap.Logger) (*Server, error) {
	if !cfg.Enabled {
		logger.Debug("Metrics endpoint disabled")
		return nil, nil
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}

	srv := &fasthttp.Server{
		Handler:            createMetricsHandler(cfg.Path, handler),
		Name:               "httpbench-metrics",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1 * 1024,
		Concurrency:        100,
	}

	s := &Server{srv: srv, ln: ln, logger: logger}

	go func() {
		if err := srv.Serve(ln); err != nil {
			logger.Error("Metrics server stopped",
				zap.String("listen", s.Addr()),
				zap.Error(err))
		}
	}()

	logger.Info("Metrics server listening",
		zap.String("listen", s.Addr()),
		zap.String("path", cfg.Path))

	return s, nil
}

func createMetricsHandler(metricsPath string, metricsHandler MetricsHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == metricsPath {
			metricsHandler.ServeHTTP(ctx)
			return
		}

		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("Not Found")
	}
}
