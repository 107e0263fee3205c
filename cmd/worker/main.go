package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dzaytsev/ragfusion/internal/bootstrap"
	"github.com/dzaytsev/ragfusion/internal/config"
	"github.com/dzaytsev/ragfusion/internal/core/domain"
	"github.com/dzaytsev/ragfusion/internal/observability/logging"
	"github.com/dzaytsev/ragfusion/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()

	flushInterval := time.Duration(cfg.FlushIntervalSeconds) * time.Second
	go func() {
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				workerMetrics.StartFlush()
				start := time.Now()
				err := app.Cache.Flush(ctx, false)
				workerMetrics.FinishFlush("worker", time.Since(start), err)
				if err != nil {
					logger.Error("session_flush_pass_failed", "error", err)
				}
			}
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeRatings(ctx, func(handlerCtx context.Context, event domain.RatingEvent) error {
		addCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()
		addErr := app.Cache.Add(addCtx, event)
		workerMetrics.RecordRatingEvent("worker", addErr)
		return addErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}

	// Final sweep so buffered ratings are not stranded across a restart.
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Cache.Flush(flushCtx, true); err != nil {
		logger.Error("final_flush_failed", "error", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = metricsServer.Shutdown(shutdownCtx)
}
