package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/bootstrap"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/config"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/queue/nats"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/metrics"
)

const (
	serviceName  = "worker"
	indexTimeout = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New(serviceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatal("bootstrap error", zap.Error(err))
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server error", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", zap.String("subject", cfg.NATSSubject))
	err = app.Queue.SubscribeFilingSubmitted(ctx, func(handlerCtx context.Context, event nats.FilingEvent) error {
		if !event.SubmittedAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(event.SubmittedAt))
		}

		indexCtx, cancel := context.WithTimeout(handlerCtx, indexTimeout)
		defer cancel()

		start := time.Now()
		workerMetrics.StartFiling()
		indexErr := app.IndexUC.IndexByID(indexCtx, event.FilingID)
		workerMetrics.FinishFiling(serviceName, time.Since(start), indexErr)
		if indexErr != nil {
			return indexErr
		}

		if filing, err := app.Catalog.GetByID(handlerCtx, event.FilingID); err == nil {
			workerMetrics.AddChunks(serviceName, filing.ChunkCount)
			logging.FromContext(handlerCtx).Info("filing indexed", zap.Int("chunks", filing.ChunkCount))
		}
		return nil
	})
	if err != nil {
		logger.Fatal("worker subscribe error", zap.Error(err))
	}
}
