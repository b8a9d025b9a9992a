package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/receipt-ledger/internal/config"
	infraBQ "github.com/dvloznov/receipt-ledger/internal/infra/bigquery"
	"github.com/dvloznov/receipt-ledger/internal/logger"
)

func main() {
	loader := config.NewLoader("migrate")
	flags := loader.FlagSet()
	appliedBy := flags.StringLong("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir := flags.StringLong("migrations", "", "Directory of .sql migrations; empty uses the embedded set")

	cfg, err := loader.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, loader.Usage())
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	log := logger.Configure(cfg.LogLevel, cfg.LogFormat)
	if cfg.ProjectID == "" {
		log.Fatal().Msg("Error: --project is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var fsys fs.FS = infraBQ.Migrations
	dir := "migrations"
	if *migrationsDir != "" {
		fsys, dir = os.DirFS(*migrationsDir), "."
	}

	migrations, err := infraBQ.ReadMigrations(ctx, fsys, dir, cfg.ProjectID, cfg.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Str("dataset", cfg.Dataset).Msg("Found migration files")

	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	applied, err := infraBQ.NewMigrator(client, cfg.ProjectID, cfg.Dataset, *appliedBy).Apply(ctx, migrations)
	if err != nil {
		client.Close()
		log.Fatal().Err(err).Int("applied", applied).Msg("Migration failed")
	}

	fmt.Printf("Migrations complete: %d applied.\n", applied)
}
