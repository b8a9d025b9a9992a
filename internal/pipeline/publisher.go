package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/receipt-ledger/internal/archive"
	"github.com/dvloznov/receipt-ledger/internal/llm"
	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/observability/metrics"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
	"github.com/dvloznov/receipt-ledger/internal/search"
)

// Publisher writes batches to both sinks: the archive, which is
// authoritative, and the search index, which is derived from it.
type Publisher struct {
	archive  *archive.Archive
	index    search.Index
	embedder llm.Embedder
	metrics  *metrics.Metrics
}

// NewPublisher creates a Publisher. m may be nil.
func NewPublisher(a *archive.Archive, index search.Index, embedder llm.Embedder, m *metrics.Metrics) *Publisher {
	return &Publisher{archive: a, index: index, embedder: embedder, metrics: m}
}

// Publish persists the batch under its backup id and returns that id.
// Retrying with the same batch overwrites the same artifact.
func (p *Publisher) Publish(ctx context.Context, b *receipt.Batch) (string, error) {
	if err := p.archive.Save(ctx, b); err != nil {
		return "", fmt.Errorf("Publish: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("backup_id", b.BackupID).Int("records", len(b.Records)).Msg("Persisted receipt batch")
	return b.BackupID, nil
}

// Index embeds every row with a narrative and upserts the documents in one
// call. A single embedding failure aborts the whole batch; nothing is
// upserted in that case. Returns the number of indexed rows.
func (p *Publisher) Index(ctx context.Context, b *receipt.Batch) (int, error) {
	n, err := p.indexBatch(ctx, b)
	if err != nil {
		return 0, err
	}
	p.metrics.AddRowsIndexed(n)
	return n, nil
}

func (p *Publisher) indexBatch(ctx context.Context, b *receipt.Batch) (int, error) {
	rows := b.Indexable()
	if len(rows) == 0 {
		return 0, nil
	}

	docs := make([]search.Document, 0, len(rows))
	for _, r := range rows {
		vec, err := p.embedder.Embed(ctx, r.Narrative)
		if err != nil {
			return 0, fmt.Errorf("Index: embedding row %s: %w: %w", r.ID, receipt.ErrIndexFailed, err)
		}
		docs = append(docs, search.NewDocument(b.BackupID, r, vec))
	}

	if err := p.index.Upsert(ctx, docs); err != nil {
		return 0, fmt.Errorf("Index: upsert %d documents: %w: %w", len(docs), receipt.ErrIndexFailed, err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("backup_id", b.BackupID).Int("documents", len(docs)).Msg("Indexed receipt batch")
	return len(docs), nil
}

// RebuildReport summarizes an index rebuild.
type RebuildReport struct {
	Artifacts int      `json:"artifacts"`
	Rows      int      `json:"rows"`
	Failed    []string `json:"failed,omitempty"`
}

// Rebuild re-indexes every archived batch. Upserts replace existing
// documents, so a rebuild can run at any time. Batches that fail to index
// are listed in the report and the returned error wraps receipt.ErrIndexFailed.
func (p *Publisher) Rebuild(ctx context.Context) (*RebuildReport, error) {
	log := logger.FromContext(ctx)

	batches, err := p.archive.LoadAll(ctx)
	if err != nil {
		p.metrics.IncrRebuild("failed")
		return nil, fmt.Errorf("Rebuild: %w", err)
	}

	report := &RebuildReport{}
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			p.metrics.IncrRebuild("failed")
			return report, fmt.Errorf("Rebuild: %w", err)
		}
		n, err := p.Index(ctx, b)
		if err != nil {
			log.Warn().Err(err).Str("backup_id", b.BackupID).Msg("Failed to re-index batch")
			report.Failed = append(report.Failed, b.BackupID)
			continue
		}
		report.Artifacts++
		report.Rows += n
	}

	log.Info().Int("artifacts", report.Artifacts).Int("rows", report.Rows).Int("failed", len(report.Failed)).Msg("Index rebuild finished")
	if len(report.Failed) > 0 {
		p.metrics.IncrRebuild("partial")
		return report, fmt.Errorf("Rebuild: %d of %d batches failed: %w", len(report.Failed), len(batches), receipt.ErrIndexFailed)
	}
	p.metrics.IncrRebuild("ok")
	return report, nil
}

// ErrNotFound is returned by Delete for an unknown backup id.
var ErrNotFound = archive.ErrNotFound

// Delete removes a receipt: its index documents first, then the artifact.
// If removing the documents fails the artifact is kept, so the delete can
// be retried.
func (p *Publisher) Delete(ctx context.Context, backupID string) error {
	b, err := p.archive.Load(ctx, backupID)
	if err != nil && !errors.Is(err, receipt.ErrMalformedBatch) {
		return fmt.Errorf("Delete: %w", err)
	}
	if b != nil && len(b.Records) > 0 {
		if err := p.index.Delete(ctx, b.IDs()); err != nil {
			return fmt.Errorf("Delete: removing index documents: %w", err)
		}
	}
	if err := p.archive.Delete(ctx, backupID); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("backup_id", backupID).Msg("Deleted receipt")
	return nil
}
