package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/faktulove/ocrsync/internal/common"
	"github.com/faktulove/ocrsync/internal/export"
	"github.com/faktulove/ocrsync/internal/materialize"
	"github.com/faktulove/ocrsync/internal/pipeline"
	"github.com/faktulove/ocrsync/internal/repository"
	"github.com/faktulove/ocrsync/internal/server"
	"github.com/faktulove/ocrsync/internal/statussync"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := common.LoadConfig()
	logger, cleanup := common.SetupLogger(cfg.Logging)
	defer func() { _ = cleanup() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.HealthCheck(ctx); err != nil {
		logger.Error("database health check failed", "err", err)
		os.Exit(1)
	}
	if err := store.Migrate(ctx); err != nil {
		logger.Error("applying schema", "err", err)
		os.Exit(1)
	}
	logger.Info("database ready", "dialect", store.Dialect)

	documents := repository.NewDocumentRepository(store, logger)
	results := repository.NewExtractionResultRepository(store, logger)
	invoices := repository.NewInvoiceRepository(store, logger)
	contractors := repository.NewContractorRepository(store, logger)

	syncSvc := statussync.NewService(documents, results, logger)
	gate, err := materialize.NewGate(store, results, invoices, contractors, logger)
	if err != nil {
		logger.Error("building materialization gate", "err", err)
		os.Exit(1)
	}
	processor := pipeline.NewProcessor(documents, results, syncSvc, gate, logger)
	exportSvc := export.NewService(invoices, contractors, logger)

	srv := server.New(server.Options{
		Documents:   documents,
		Sync:        syncSvc,
		Processor:   processor,
		Export:      exportSvc,
		Identity:    server.NewStaticTokenResolver(cfg.APITokenMap()),
		Limiter:     server.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitPerSecond), cfg.Server.RateLimitBurst),
		WorkerToken: cfg.Server.WorkerToken,
		UploadDir:   cfg.Storage.UploadDir,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	logger.Info("stopped")
}
