package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/grounded-rag/internal/bootstrap"
	"github.com/kirillkom/grounded-rag/internal/config"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
	"github.com/kirillkom/grounded-rag/internal/observability/logging"
	"github.com/kirillkom/grounded-rag/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	os.Exit(run())
}

// run returns the process exit code once every deferred cleanup has finished.
func run() int {
	_ = godotenv.Load()
	cfg := config.Load()
	cfg.RepairEnabled = true

	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Dependencies{Service: serviceName, Logger: logger})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		return 1
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSRepairSubject)
	if err := consumeRepairs(ctx, app.Queue, app.RepairUC, workerMetrics, cfg.RepairTimeout); err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		return 1
	}
	return 0
}

// consumeRepairs blocks until ctx is done or the subscription fails.
func consumeRepairs(
	ctx context.Context,
	queue ports.ChunkRepairQueue,
	processor ports.ChunkRepairProcessor,
	workerMetrics *metrics.WorkerMetrics,
	timeout time.Duration,
) error {
	return queue.SubscribeChunkRepair(ctx, func(handlerCtx context.Context, chunkID string) error {
		repairCtx, cancel := context.WithTimeout(handlerCtx, timeout)
		defer cancel()

		workerMetrics.StartRepair()
		start := time.Now()
		err := processor.RepairChunk(repairCtx, chunkID)
		workerMetrics.FinishRepair(serviceName, time.Since(start), err)
		return err
	})
}
