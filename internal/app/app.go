// Package app wires the receipt ledger components from a Config. Every
// binary builds its dependencies through Build so that storage, index and
// model clients are configured the same way everywhere.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-ledger/internal/archive"
	"github.com/dvloznov/receipt-ledger/internal/assistant"
	"github.com/dvloznov/receipt-ledger/internal/categorizer"
	"github.com/dvloznov/receipt-ledger/internal/config"
	"github.com/dvloznov/receipt-ledger/internal/currency"
	"github.com/dvloznov/receipt-ledger/internal/extractor"
	infraBQ "github.com/dvloznov/receipt-ledger/internal/infra/bigquery"
	"github.com/dvloznov/receipt-ledger/internal/jobs"
	"github.com/dvloznov/receipt-ledger/internal/ledger"
	"github.com/dvloznov/receipt-ledger/internal/llm"
	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/notionsync"
	"github.com/dvloznov/receipt-ledger/internal/observability/metrics"
	"github.com/dvloznov/receipt-ledger/internal/ocr"
	"github.com/dvloznov/receipt-ledger/internal/pipeline"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
	"github.com/dvloznov/receipt-ledger/internal/search"
	"github.com/dvloznov/receipt-ledger/internal/storage"
)

// ErrNotionDisabled is returned by SyncNotion when no Notion settings are configured.
var ErrNotionDisabled = errors.New("notion sync is not configured")

// App holds the wired components.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Metrics *metrics.Metrics

	Rates      *currency.Table
	Store      storage.ObjectStore
	Archive    *archive.Archive
	Index      search.Index
	Normalizer *receipt.Normalizer
	Model      *llm.Gemini

	Extractor  *extractor.Extractor
	Publisher  *pipeline.Publisher
	Service    *pipeline.Service
	Classifier *categorizer.Classifier
	Ledger     *ledger.Aggregator
	Assistant  *assistant.Assistant

	closers []io.Closer
}

// OpenArchive wires only the backup archive. Commands that never call a
// model, like the Notion mirror, use it instead of Build.
func OpenArchive(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.Configure(cfg.LogLevel, cfg.LogFormat)
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	rates, err := cfg.Rates()
	if err != nil {
		return nil, fmt.Errorf("OpenArchive: %w", err)
	}
	a.Rates = rates
	a.Normalizer = receipt.NewNormalizer(rates)

	if err := a.openStore(ctx); err != nil {
		return nil, fmt.Errorf("OpenArchive: %w", err)
	}
	a.Archive = archive.New(a.Store, a.Normalizer)
	return a, nil
}

// Build creates every component described by cfg. Close releases them.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := OpenArchive(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	log := a.Log

	if err := a.openIndex(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("Build: %w", err)
	}

	a.Model, err = llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey:         cfg.GeminiKey,
		Project:        cfg.ProjectID,
		Location:       cfg.Location,
		TextModel:      cfg.TextModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Dimensions:     int32(cfg.EmbeddingDimensions),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("Build: %w", err)
	}

	ocrClient := ocr.NewClient(nil, ocr.Config{
		Endpoint:   cfg.OCREndpoint,
		APIKey:     cfg.OCRKey,
		Model:      cfg.OCRModel,
		APIVersion: cfg.OCRAPIVersion,
	}, nil)
	a.Extractor = extractor.New(ocrClient, a.Model, extractor.Options{
		MaxAttempts: cfg.OCRMaxAttempts,
		PollDelay:   cfg.OCRPollDelay,
		Language:    cfg.Language,
	})

	a.Publisher = pipeline.NewPublisher(a.Archive, a.Index, a.Model, a.Metrics)
	a.Service = pipeline.NewService(a.Extractor, a.Normalizer, a.Publisher, a.Metrics)
	a.Classifier = categorizer.New(a.Model, a.Metrics)
	a.Ledger = ledger.New(a.Rates, a.Classifier, a.Archive)
	a.Assistant = assistant.New(a.Model, a.Index, a.Model, assistant.Options{})

	log.Info().
		Str("storage", cfg.StorageBackend).
		Str("index", cfg.IndexBackend).
		Str("text_model", cfg.TextModel).
		Msg("Components ready")
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.StorageBackend {
	case config.StorageGCS:
		s, err := storage.NewGCSStore(ctx, a.Config.Bucket, a.Config.Prefix)
		if err != nil {
			return err
		}
		a.Store = s
		a.closers = append(a.closers, s)
	default:
		s, err := storage.NewBoltStore(a.Config.BoltPath)
		if err != nil {
			return err
		}
		a.Store = s
		a.closers = append(a.closers, s)
	}
	return nil
}

func (a *App) openIndex(ctx context.Context) error {
	switch a.Config.IndexBackend {
	case config.IndexBigQuery:
		idx, err := infraBQ.NewReceiptIndex(ctx, a.Config.ProjectID, a.Config.Dataset)
		if err != nil {
			return err
		}
		a.Index = idx
		a.closers = append(a.closers, idx)
	default:
		a.Index = search.NewMemoryIndex()
	}
	return nil
}

// VolatileIndex reports whether the search index lives only in process
// memory and starts empty on every run.
func (a *App) VolatileIndex() bool {
	_, ok := a.Index.(*search.MemoryIndex)
	return ok
}

// WarmIndex rebuilds a volatile index from the archive. It does nothing for
// a persistent index and returns a nil report.
func (a *App) WarmIndex(ctx context.Context) (*pipeline.RebuildReport, error) {
	if !a.VolatileIndex() {
		return nil, nil
	}
	return a.Publisher.Rebuild(ctx)
}

// Migrate applies pending index migrations. It is a no-op for the memory index.
func (a *App) Migrate(ctx context.Context, appliedBy string) (int, error) {
	idx, ok := a.Index.(*infraBQ.ReceiptIndex)
	if !ok {
		return 0, nil
	}
	return idx.Migrate(ctx, appliedBy)
}

// SyncNotion mirrors the archive into the configured Notion database.
func (a *App) SyncNotion(ctx context.Context, dryRun bool) (*notionsync.SyncReport, error) {
	if a.Config.NotionToken == "" || a.Config.NotionDatabaseID == "" {
		return nil, ErrNotionDisabled
	}
	client := notionsync.NewNotionClient(a.Config.NotionToken)
	return notionsync.SyncReceipts(ctx, a.Archive, client, a.Config.NotionDatabaseID, dryRun)
}

// JobHandlers returns the background job handlers.
func (a *App) JobHandlers() jobs.Dispatch {
	return jobs.Dispatch{
		jobs.JobTypeRebuildIndex: func(ctx context.Context, job *jobs.Job) (interface{}, error) {
			return a.Publisher.Rebuild(ctx)
		},
		jobs.JobTypeSyncNotion: func(ctx context.Context, job *jobs.Job) (interface{}, error) {
			return a.SyncNotion(ctx, false)
		},
	}
}

// Close releases storage and index clients.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Log.Warn().Err(err).Msg("Failed to close component")
		}
	}
	a.closers = nil
}

