package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/receipt-ledger/internal/config"
	"github.com/dvloznov/receipt-ledger/internal/jobs"
	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/pipeline"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
	"github.com/dvloznov/receipt-ledger/internal/search"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LogLevel:       "error",
		LogFormat:      logger.FormatConsole,
		StorageBackend: config.StorageBolt,
		BoltPath:       filepath.Join(t.TempDir(), "receipts.db"),
		IndexBackend:   config.IndexMemory,
	}
}

func TestOpenArchive(t *testing.T) {
	a, err := OpenArchive(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	defer a.Close()

	if a.Archive == nil || a.Store == nil || a.Normalizer == nil {
		t.Fatal("archive components not wired")
	}
	names, err := a.Archive.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("fresh archive has %d artifacts", len(names))
	}
}

func TestSyncNotion_Disabled(t *testing.T) {
	a, err := OpenArchive(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	defer a.Close()

	if _, err := a.SyncNotion(context.Background(), true); !errors.Is(err, ErrNotionDisabled) {
		t.Errorf("SyncNotion() error = %v, want ErrNotionDisabled", err)
	}
}

func TestMigrate_MemoryIndexIsNoop(t *testing.T) {
	a, err := OpenArchive(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	defer a.Close()
	a.Index = search.NewMemoryIndex()

	n, err := a.Migrate(context.Background(), "test")
	if err != nil || n != 0 {
		t.Errorf("Migrate() = %d, %v; want 0, nil", n, err)
	}
}

func TestJobHandlers(t *testing.T) {
	a := &App{Config: testConfig(t)}
	d := a.JobHandlers()
	for _, jt := range []jobs.JobType{jobs.JobTypeRebuildIndex, jobs.JobTypeSyncNotion} {
		if d[jt] == nil {
			t.Errorf("no handler for %s", jt)
		}
	}

	_, err := d[jobs.JobTypeSyncNotion](context.Background(), &jobs.Job{Type: jobs.JobTypeSyncNotion})
	if !errors.Is(err, ErrNotionDisabled) {
		t.Errorf("sync job error = %v, want ErrNotionDisabled", err)
	}
}

type staticEmbedder struct{}

func (staticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, float32(len(text))}, nil
}

// openWithMemoryIndex wires the archive, a memory index and a publisher
// without a model client.
func openWithMemoryIndex(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := OpenArchive(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	if err := a.openIndex(context.Background()); err != nil {
		t.Fatalf("openIndex() error = %v", err)
	}
	a.Publisher = pipeline.NewPublisher(a.Archive, a.Index, staticEmbedder{}, nil)
	return a
}

func TestWarmIndex_RestoresMemoryIndexAfterRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first := openWithMemoryIndex(t, cfg)
	batch := &receipt.Batch{
		BackupID: receipt.NewBackupID(time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)),
		Records: []receipt.Record{
			{ID: uuid.NewString(), Store: "제주 기념품샵", Date: "2025-01-02", Item: "귤 초콜릿", Price: 12000,
				Currency: "KRW", Quantity: 2, Category: receipt.CategoryShopping, Country: "South Korea",
				Narrative: "Bought two tangerine chocolates in Jeju."},
			{ID: uuid.NewString(), Store: "제주 기념품샵", Date: "2025-01-02", Item: "봉투", Price: 100,
				Currency: "KRW", Quantity: 1, Category: receipt.CategoryOther, Country: "South Korea"},
		},
	}
	if _, err := first.Publisher.Publish(ctx, batch); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if _, err := first.Publisher.Index(ctx, batch); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	first.Close()

	second := openWithMemoryIndex(t, cfg)
	defer second.Close()
	if !second.VolatileIndex() {
		t.Fatal("memory index should be volatile")
	}
	mem := second.Index.(*search.MemoryIndex)
	if mem.Len() != 0 {
		t.Fatalf("fresh memory index has %d documents", mem.Len())
	}

	report, err := second.WarmIndex(ctx)
	if err != nil {
		t.Fatalf("WarmIndex() error = %v", err)
	}
	if report == nil || report.Artifacts != 1 || report.Rows != 1 {
		t.Errorf("WarmIndex() report = %+v, want 1 artifact and 1 row", report)
	}
	if mem.Len() != 1 {
		t.Errorf("index has %d documents after warm-up, want 1", mem.Len())
	}
}

type persistentIndex struct{ search.Index }

func TestWarmIndex_PersistentIndexIsNoop(t *testing.T) {
	a := openWithMemoryIndex(t, testConfig(t))
	defer a.Close()
	a.Index = persistentIndex{search.NewMemoryIndex()}

	if a.VolatileIndex() {
		t.Error("wrapped index reported as volatile")
	}
	report, err := a.WarmIndex(context.Background())
	if report != nil || err != nil {
		t.Errorf("WarmIndex() = %+v, %v; want nil, nil", report, err)
	}
}
