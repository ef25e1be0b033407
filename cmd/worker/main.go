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

	"github.com/dcmshi/expense-tracker/internal/bootstrap"
	"github.com/dcmshi/expense-tracker/internal/config"
	"github.com/dcmshi/expense-tracker/internal/core/usecase"
	"github.com/dcmshi/expense-tracker/internal/observability/logging"
	"github.com/dcmshi/expense-tracker/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	processor, err := app.NewProcessor(ctx)
	if err != nil {
		slog.Error("processor_init_failed", "error", err)
		os.Exit(1)
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()

	// Ingestion events only wake the poller early. A full channel means a
	// cycle is already pending, so extra events are dropped.
	wake := make(chan struct{}, 1)
	if app.Queue != nil {
		go func() {
			err := app.Queue.SubscribeExpenseIngested(ctx, func(_ context.Context, expenseID string) error {
				slog.Debug("ingestion_event_received", "expense_id", expenseID)
				select {
				case wake <- struct{}{}:
				default:
				}
				return nil
			})
			if err != nil {
				slog.Error("worker_subscribe_error", "error", err)
			}
		}()
	}

	poller := usecase.NewPoller(app.Jobs, processor, cfg.WorkerBatchSize, workerMetrics)
	poller.Run(ctx, time.Duration(cfg.WorkerPollIntervalMS)*time.Millisecond, wake)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("worker_metrics_shutdown_error", "error", err)
	}
}
