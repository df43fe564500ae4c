package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	mcpadapter "github.com/MichaelWeed/financial-compliance-auditor/internal/adapters/mcp"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/bootstrap"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/config"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
)

// version is set at build time with -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New("mcp", cfg.Env, cfg.LogLevel)
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

	srv := mcpadapter.NewServer(app.AuditUC, app.Catalog, logger)
	if err := srv.ServeStdio(version); err != nil {
		logger.Error("mcp server stopped", zap.Error(err))
	}
}
