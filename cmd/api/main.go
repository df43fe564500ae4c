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

	httpadapter "github.com/MichaelWeed/financial-compliance-auditor/internal/adapters/http"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/bootstrap"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/config"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/metrics"
)

const serviceName = "api"

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

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, logger, httpMetrics)
	if err != nil {
		logger.Fatal("bootstrap error", zap.Error(err))
	}
	defer app.Close()

	router := httpadapter.NewRouter(httpadapter.Services{
		Auditor:   app.AuditUC,
		Ingestor:  app.IngestUC,
		Catalog:   app.Catalog,
		Vault:     app.VaultUC,
		Citations: app.Citations,
		Drafter:   app.Drafter,
		Exporter:  app.Exporter,
	}, httpadapter.Options{
		Logger:         logger,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Metrics: func(next http.Handler) http.Handler {
			return httpMetrics.Middleware(serviceName, next)
		},
		MetricsHandler: httpMetrics.Handler(),
	})

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.LLMTimeout() + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", zap.Error(err))
	}
}
