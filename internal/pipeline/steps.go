package pipeline

import (
	"context"

	"github.com/dvloznov/receipt-ledger/internal/observability/metrics"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

// PipelineStep represents a single step in the receipt pipeline.
type PipelineStep interface {
	// Name is the metrics stage label of the step.
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Image       []byte
	ContentType string

	Text     string
	Table    string
	Batch    *receipt.Batch
	BackupID string
	Indexed  int
}

// ExtractTextStep runs OCR on the image.
type ExtractTextStep struct {
	Extractor TextExtractor
}

func (s *ExtractTextStep) Name() string { return metrics.StageOCR }

func (s *ExtractTextStep) Execute(ctx context.Context, state *PipelineState) error {
	text, err := s.Extractor.ExtractText(ctx, state.Image, state.ContentType)
	if err != nil {
		return err
	}
	state.Text = text
	return nil
}

// StructureStep turns OCR text into a receipt table.
type StructureStep struct {
	Extractor TextExtractor
}

func (s *StructureStep) Name() string { return metrics.StageStructure }

func (s *StructureStep) Execute(ctx context.Context, state *PipelineState) error {
	table, err := s.Extractor.Structure(ctx, state.Text)
	if err != nil {
		return err
	}
	state.Table = table
	return nil
}

// NormalizeStep parses the table into a typed batch.
type NormalizeStep struct {
	Normalizer *receipt.Normalizer
}

func (s *NormalizeStep) Name() string { return metrics.StageNormalize }

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	batch, err := s.Normalizer.Parse(ctx, state.Table)
	if err != nil {
		return err
	}
	state.Batch = batch
	return nil
}

// PersistStep writes the backup artifact.
type PersistStep struct {
	Publisher *Publisher
}

func (s *PersistStep) Name() string { return metrics.StagePersist }

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	id, err := s.Publisher.Publish(ctx, state.Batch)
	if err != nil {
		return err
	}
	state.BackupID = id
	return nil
}

// IndexStep embeds and upserts the batch rows.
type IndexStep struct {
	Publisher *Publisher
}

func (s *IndexStep) Name() string { return metrics.StageIndex }

func (s *IndexStep) Execute(ctx context.Context, state *PipelineState) error {
	n, err := s.Publisher.Index(ctx, state.Batch)
	if err != nil {
		return err
	}
	state.Indexed = n
	return nil
}
