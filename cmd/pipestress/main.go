// Command pipestress hammers a ringpipe.Pipe with concurrent writers and
// readers and verifies that no byte is lost. It is configured entirely from
// the environment (see internal/config).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aradilov/ringpipe/internal/config"
	"github.com/aradilov/ringpipe/internal/logging"
	"github.com/aradilov/ringpipe/internal/stress"
	"github.com/aradilov/ringpipe/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault().Error("Failed to load config", zap.Error(err))
		return 2
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logger = logging.NewDefault()
		logger.Warn("Invalid log level, using defaults", zap.String("level", cfg.Logging.Level), zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	collector := metrics.NewCollector("ringpipe")
	if cfg.Metrics.Address != "" {
		srv := serveMetrics(cfg.Metrics.Address, collector, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := stress.Run(ctx, cfg, logger, collector)
	if err != nil {
		// Run has already logged the failure
		return 1
	}

	mbps := float64(report.BytesRead) / report.Duration.Seconds() / (1 << 20)
	logger.Info("Throughput",
		zap.Float64("mib_per_second", mbps),
		zap.Uint64("waits", report.Stats.Waits),
		zap.Uint64("timeouts", report.Stats.Timeouts),
		zap.Uint64("cancellations", report.Stats.Cancellations),
	)
	return 0
}

func serveMetrics(addr string, collector *metrics.Collector, logger *zap.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
