// Command resync reconciles every non-terminal document against its
// extraction result. Meant for cron or manual recovery after worker
// callbacks were lost.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/faktulove/ocrsync/internal/common"
	"github.com/faktulove/ocrsync/internal/repository"
	"github.com/faktulove/ocrsync/internal/statussync"
)

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "overall run timeout")
	flag.Parse()

	_ = godotenv.Load()

	cfg := common.LoadConfig()
	logger, cleanup := common.SetupLogger(cfg.Logging)
	defer func() { _ = cleanup() }()

	if cfg.Database.DSN == "" {
		logger.Error("DB_URL env var is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	store, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	documents := repository.NewDocumentRepository(store, logger)
	results := repository.NewExtractionResultRepository(store, logger)
	sync := statussync.NewService(documents, results, logger)

	docs, err := documents.ListNonTerminal(ctx)
	if err != nil {
		logger.Error("listing non-terminal documents", "err", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		logger.Info("nothing to resync")
		return
	}

	stats := sync.BulkSyncDocuments(ctx, docs)
	logger.Info("resync finished",
		"total", stats.Total,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
