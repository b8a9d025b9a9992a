package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/receipt-ledger/internal/app"
	"github.com/dvloznov/receipt-ledger/internal/config"
	"github.com/dvloznov/receipt-ledger/internal/logger"
)

func main() {
	loader := config.NewLoader("sync-notion")
	dryRun := loader.FlagSet().BoolLong("dry-run", "Dry run mode - preview changes without syncing")

	cfg, err := loader.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, loader.Usage())
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := app.OpenArchive(ctx, cfg)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to open archive")
	}
	defer a.Close()
	log := a.Log
	ctx = logger.WithContext(ctx, log)

	log.Info().Bool("dry_run", *dryRun).Msg("Starting Notion sync")

	report, err := a.SyncNotion(ctx, *dryRun)
	if err != nil {
		a.Close()
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d archived, %d unchanged, %d failed.\n",
		report.Created, report.Archived, report.Skipped, report.Failed)
}
