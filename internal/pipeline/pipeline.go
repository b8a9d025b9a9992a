// Package pipeline runs the receipt ingestion flow: OCR, structuring,
// normalization, then publishing to the archive and the search index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/observability/metrics"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps   []PipelineStep
	metrics *metrics.Metrics
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// WithMetrics records per-step durations and errors in m.
func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Execute runs all steps in the pipeline sequentially and stops at the
// first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		start := time.Now()
		err := step.Execute(ctx, state)
		p.metrics.ObserveStage(step.Name(), time.Since(start), err)
		if err != nil {
			log.Error().Err(err).Str("step", step.Name()).Msg("Pipeline step failed")
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		log.Debug().Str("step", step.Name()).Dur("took", time.Since(start)).Msg("Pipeline step done")
	}
	return nil
}

// NewReceiptPipeline creates the standard five-step receipt pipeline.
func NewReceiptPipeline(ex TextExtractor, norm *receipt.Normalizer, pub *Publisher) *Pipeline {
	return NewPipeline(
		&ExtractTextStep{Extractor: ex},
		&StructureStep{Extractor: ex},
		&NormalizeStep{Normalizer: norm},
		&PersistStep{Publisher: pub},
		&IndexStep{Publisher: pub},
	)
}

// Result is what one processed image yields.
type Result struct {
	BackupID string       `json:"filename"`
	View     receipt.View `json:"receipt"`
	Rows     int          `json:"rows"`
	Indexed  int          `json:"indexed"`
}

// Service processes receipt images end to end.
type Service struct {
	pipeline *Pipeline
	metrics  *metrics.Metrics
}

// NewService wires a receipt pipeline. m may be nil.
func NewService(ex TextExtractor, norm *receipt.Normalizer, pub *Publisher, m *metrics.Metrics) *Service {
	return &Service{
		pipeline: NewReceiptPipeline(ex, norm, pub).WithMetrics(m),
		metrics:  m,
	}
}

// Process runs one image through the pipeline.
//
// A batch that was persisted but could not be indexed is still returned:
// the Result is non-nil and the error wraps receipt.ErrIndexFailed. The
// index can be repaired later with Publisher.Rebuild.
func (s *Service) Process(ctx context.Context, image []byte, contentType string) (*Result, error) {
	state := &PipelineState{Image: image, ContentType: contentType}
	err := s.pipeline.Execute(ctx, state)

	if state.BackupID == "" {
		s.metrics.IncrReceipt("failed")
		return nil, fmt.Errorf("Process: %w", err)
	}

	res := &Result{
		BackupID: state.BackupID,
		View:     receipt.NewView(state.Batch),
		Rows:     len(state.Batch.Records),
		Indexed:  state.Indexed,
	}
	if err != nil {
		if errors.Is(err, receipt.ErrIndexFailed) {
			s.metrics.IncrReceipt("partial")
		} else {
			s.metrics.IncrReceipt("failed")
		}
		return res, fmt.Errorf("Process: %w", err)
	}

	s.metrics.IncrReceipt("ok")
	log := logger.FromContext(ctx)
	log.Info().Str("backup_id", res.BackupID).Int("rows", res.Rows).Int("indexed", res.Indexed).Msg("Processed receipt")
	return res, nil
}
