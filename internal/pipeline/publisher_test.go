package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/dvloznov/receipt-ledger/internal/pipeline"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

var testTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func saveBatch(t *testing.T, f *fixture, name string, narratives ...string) *receipt.Batch {
	t.Helper()
	b := &receipt.Batch{BackupID: name}
	for _, n := range narratives {
		b.Records = append(b.Records, receipt.Record{
			ID:        newID(t),
			Store:     "Store",
			Date:      "2025-03-01",
			Item:      "item",
			Price:     1,
			Currency:  "EUR",
			Quantity:  1,
			Category:  receipt.CategoryFood,
			Country:   "France",
			Narrative: n,
		})
	}
	if _, err := f.pub.Publish(context.Background(), b); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	return b
}

var idSeq int

func newID(t *testing.T) string {
	t.Helper()
	idSeq++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", idSeq)
}

func TestPublisher_Rebuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saveBatch(t, f, "receipt_20250301_100000_aaaaaaaa.csv", "croissant breakfast", "")
	saveBatch(t, f, "receipt_20250302_100000_bbbbbbbb.csv", "museum ticket", "metro ticket")

	report, err := f.pub.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	want := &pipeline.RebuildReport{Artifacts: 2, Rows: 3}
	if !reflect.DeepEqual(report, want) {
		t.Errorf("Rebuild() = %+v, want %+v", report, want)
	}
	if f.index.Len() != 3 {
		t.Errorf("index has %d documents, want 3", f.index.Len())
	}

	// A second rebuild replaces documents instead of duplicating them.
	if _, err := f.pub.Rebuild(ctx); err != nil {
		t.Fatalf("second Rebuild() error = %v", err)
	}
	if f.index.Len() != 3 {
		t.Errorf("index has %d documents after second rebuild, want 3", f.index.Len())
	}
}

func TestPublisher_RebuildReportsFailedBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saveBatch(t, f, "receipt_20250301_100000_aaaaaaaa.csv", "good row")
	saveBatch(t, f, "receipt_20250302_100000_bbbbbbbb.csv", "bad row")
	f.embedder.EmbedFunc = func(_ context.Context, text string) ([]float32, error) {
		if text == "bad row" {
			return nil, errors.New("embedding failed")
		}
		return []float32{1, 1}, nil
	}

	report, err := f.pub.Rebuild(ctx)
	if !errors.Is(err, receipt.ErrIndexFailed) {
		t.Fatalf("Rebuild() error = %v, want ErrIndexFailed", err)
	}
	want := &pipeline.RebuildReport{
		Artifacts: 1,
		Rows:      1,
		Failed:    []string{"receipt_20250302_100000_bbbbbbbb.csv"},
	}
	if !reflect.DeepEqual(report, want) {
		t.Errorf("Rebuild() = %+v, want %+v", report, want)
	}
}

func TestPublisher_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := saveBatch(t, f, "receipt_20250301_100000_aaaaaaaa.csv", "one", "two")
	if _, err := f.pub.Index(ctx, b); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	if err := f.pub.Delete(ctx, b.BackupID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if f.index.Len() != 0 {
		t.Errorf("index has %d documents, want 0", f.index.Len())
	}
	if _, err := f.archive.Load(ctx, b.BackupID); !errors.Is(err, pipeline.ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
	}

	if err := f.pub.Delete(ctx, b.BackupID); !errors.Is(err, pipeline.ErrNotFound) {
		t.Errorf("Delete() of missing receipt error = %v, want ErrNotFound", err)
	}
}

func TestPublisher_DeleteKeepsArtifactWhenIndexFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := saveBatch(t, f, "receipt_20250301_100000_aaaaaaaa.csv", "one")
	f.index.DeleteFunc = func(context.Context, []string) error {
		return errors.New("index unavailable")
	}

	if err := f.pub.Delete(ctx, b.BackupID); err == nil {
		t.Fatal("Delete() error = nil, want an error")
	}
	if _, err := f.archive.Load(ctx, b.BackupID); err != nil {
		t.Errorf("artifact removed despite index failure: %v", err)
	}
}

type stubStep struct {
	name string
	err  error
	ran  *[]string
}

func (s *stubStep) Name() string { return s.name }

func (s *stubStep) Execute(ctx context.Context, state *pipeline.PipelineState) error {
	*s.ran = append(*s.ran, s.name)
	return s.err
}

func TestPipeline_StopsAtFirstFailure(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	p := pipeline.NewPipeline(
		&stubStep{name: "a", ran: &ran},
		&stubStep{name: "b", err: boom, ran: &ran},
		&stubStep{name: "c", ran: &ran},
	)

	err := p.Execute(context.Background(), &pipeline.PipelineState{})
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want %v", err, boom)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(ran, want) {
		t.Errorf("ran %v, want %v", ran, want)
	}
}
