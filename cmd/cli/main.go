package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/dvloznov/receipt-ledger/internal/app"
	"github.com/dvloznov/receipt-ledger/internal/config"
	"github.com/dvloznov/receipt-ledger/internal/ledger"
	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "help", "-h", "--help":
		printUsage()
		return
	}

	loader := config.NewLoader(cmd)
	fs := loader.FlagSet()
	file := fs.StringLong("file", "", "Receipt image: local path or gs://bucket/object")
	name := fs.StringLong("name", "", "Backup artifact name, e.g. receipt_20250102_150405_1a2b3c4d.csv")
	item := fs.StringLong("item", "", "Item name to classify")
	xlsx := fs.StringLong("xlsx", "", "Write the ledger workbook to this path")
	dryRun := fs.BoolLong("dry-run", "Report changes without applying them")

	cfg, err := loader.Parse(os.Args[2:])
	if errors.Is(err, ff.ErrHelp) {
		fmt.Println(loader.Usage())
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()
	log := a.Log
	ctx = logger.WithContext(ctx, log)

	switch cmd {
	case "ingest":
		err = runIngest(ctx, a, *file)
	case "rebuild-index":
		err = runRebuild(ctx, a)
	case "ledger":
		err = runLedger(ctx, a, *xlsx)
	case "classify":
		err = runClassify(ctx, a, *item)
	case "delete":
		err = runDelete(ctx, a, *name)
	case "migrate":
		err = runMigrate(ctx, a)
	case "sync-notion":
		err = runSyncNotion(ctx, a, *dryRun)
	default:
		a.Close()
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		a.Close()
		log.Fatal().Err(err).Str("command", cmd).Msg("Command failed")
	}
}

func printUsage() {
	fmt.Println("Receipt Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest         Extract, archive and index one receipt image (--file)")
	fmt.Println("  rebuild-index  Re-index every archived receipt")
	fmt.Println("  ledger         Print the per-country ledger (--xlsx to export)")
	fmt.Println("  classify       Classify one item name (--item)")
	fmt.Println("  delete         Delete an archived receipt and its index rows (--name)")
	fmt.Println("  migrate        Apply index schema migrations")
	fmt.Println("  sync-notion    Mirror the archive into Notion (--dry-run)")
	fmt.Println("  help           Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for the full option list.")
}

func readImage(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "gs://") {
		return os.ReadFile(path)
	}
	bucket, _, err := storage.SplitGCSURI(path)
	if err != nil {
		return nil, err
	}
	gcs, err := storage.NewGCSStore(ctx, bucket, "")
	if err != nil {
		return nil, err
	}
	defer gcs.Close()
	return gcs.ReadURI(ctx, path)
}

func runIngest(ctx context.Context, a *app.App, path string) error {
	if path == "" {
		return errors.New("--file is required")
	}
	image, err := readImage(ctx, path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	log := logger.FromContext(ctx)
	if a.VolatileIndex() {
		log.Warn().Msg("Memory index is discarded on exit; the receipt is archived and will be indexed when the API starts")
	}
	log.Info().Str("file", storage.BaseName(path)).Int("bytes", len(image)).Msg("Starting ingestion")
	res, err := a.Service.Process(ctx, image, http.DetectContentType(image))
	if res != nil {
		printJSON(res)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %s: %d rows, %d indexed.\n", res.BackupID, res.Rows, res.Indexed)
	return nil
}

func runRebuild(ctx context.Context, a *app.App) error {
	if a.VolatileIndex() {
		return errors.New("rebuild-index needs a persistent index; the memory index is discarded on exit (use --index bigquery)")
	}
	report, err := a.Publisher.Rebuild(ctx)
	if report != nil {
		fmt.Printf("Re-indexed %d artifacts (%d rows), %d failed.\n", report.Artifacts, report.Rows, len(report.Failed))
		for _, name := range report.Failed {
			fmt.Printf("  failed: %s\n", name)
		}
	}
	return err
}

func runLedger(ctx context.Context, a *app.App, xlsxPath string) error {
	summaries, err := a.Ledger.SummarizeAll(ctx)
	if err != nil {
		return err
	}
	if xlsxPath == "" {
		for _, country := range ledger.Countries(summaries) {
			s := summaries[country]
			fmt.Printf("%-12s %-4s %14.2f %16.0f KRW\n", country, s.Currency, s.TotalOriginal, s.TotalReference)
			for _, c := range s.Categories {
				fmt.Printf("    %-24s %14.2f %16.0f\n", c.Category, c.Original, c.Reference)
			}
		}
		return nil
	}

	data, err := ledger.BuildLedgerXLSX(summaries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(xlsxPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", xlsxPath, err)
	}
	fmt.Printf("Wrote %s (%d countries).\n", xlsxPath, len(summaries))
	return nil
}

func runClassify(ctx context.Context, a *app.App, item string) error {
	if strings.TrimSpace(item) == "" {
		return errors.New("--item is required")
	}
	fmt.Println(a.Classifier.Classify(ctx, item))
	return nil
}

func runDelete(ctx context.Context, a *app.App, name string) error {
	if name == "" {
		return errors.New("--name is required")
	}
	if err := a.Publisher.Delete(ctx, name); err != nil {
		return err
	}
	fmt.Printf("Deleted %s.\n", name)
	return nil
}

func runMigrate(ctx context.Context, a *app.App) error {
	n, err := a.Migrate(ctx, "cli")
	if err != nil {
		return err
	}
	fmt.Printf("Applied %d migrations.\n", n)
	return nil
}

func runSyncNotion(ctx context.Context, a *app.App, dryRun bool) error {
	report, err := a.SyncNotion(ctx, dryRun)
	if err != nil {
		return err
	}
	printJSON(report)
	return nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
