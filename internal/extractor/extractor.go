// Package extractor turns a receipt image into a structured receipt table.
// OCR runs as an asynchronous job that is polled to completion; the
// recovered text is then structured by a text-generation model.
package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/receipt-ledger/internal/llm"
	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

// Polling defaults.
const (
	DefaultMaxAttempts = 10
	DefaultPollDelay   = time.Second
)

// OCRState is the state of an OCR job.
type OCRState string

const (
	OCRPending OCRState = "pending"
	OCRDone    OCRState = "done"
	OCRFailed  OCRState = "failed"
)

// OCRStatus is one poll result. Text is set only when State is OCRDone.
type OCRStatus struct {
	State OCRState
	Text  string
}

// OCRService is an asynchronous document-analysis collaborator.
type OCRService interface {
	// Submit starts analysis of an image and returns an operation handle.
	Submit(ctx context.Context, image []byte, contentType string) (string, error)
	// Poll fetches the current state of an operation.
	Poll(ctx context.Context, handle string) (OCRStatus, error)
}

// Options tunes an Extractor.
type Options struct {
	MaxAttempts int
	PollDelay   time.Duration
	// Language is the language item names and narratives are written in.
	Language string
}

// Extractor implements text extraction and structuring.
type Extractor struct {
	ocr  OCRService
	gen  llm.Generator
	opts Options
}

// New creates an Extractor. A zero MaxAttempts or Language falls back to the
// default; PollDelay is used as given.
func New(ocr OCRService, gen llm.Generator, opts Options) *Extractor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.PollDelay < 0 {
		opts.PollDelay = 0
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	return &Extractor{ocr: ocr, gen: gen, opts: opts}
}

// ExtractText submits image to OCR and polls until the job completes.
//
// It fails with receipt.ErrExtractionTimeout when the job is still pending
// after MaxAttempts polls, receipt.ErrExtractionFailed when OCR reports a
// failure, receipt.ErrExtractionError on transport errors and
// receipt.ErrEmptyDocument when the recovered text is blank.
func (e *Extractor) ExtractText(ctx context.Context, image []byte, contentType string) (string, error) {
	log := logger.FromContext(ctx)

	handle, err := e.ocr.Submit(ctx, image, contentType)
	if err != nil {
		return "", fmt.Errorf("ExtractText: submit: %w: %w", receipt.ErrExtractionError, err)
	}

	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		status, err := e.ocr.Poll(ctx, handle)
		if err != nil {
			return "", fmt.Errorf("ExtractText: poll %d: %w: %w", attempt, receipt.ErrExtractionError, err)
		}

		switch status.State {
		case OCRDone:
			if strings.TrimSpace(status.Text) == "" {
				return "", fmt.Errorf("ExtractText: %w", receipt.ErrEmptyDocument)
			}
			log.Debug().Int("attempt", attempt).Int("chars", len(status.Text)).Msg("OCR completed")
			return status.Text, nil
		case OCRFailed:
			return "", fmt.Errorf("ExtractText: attempt %d: %w", attempt, receipt.ErrExtractionFailed)
		}

		if attempt == e.opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, e.opts.PollDelay); err != nil {
			return "", fmt.Errorf("ExtractText: waiting for OCR: %w: %w", receipt.ErrExtractionError, err)
		}
	}

	log.Warn().Int("attempts", e.opts.MaxAttempts).Msg("OCR did not complete in time")
	return "", fmt.Errorf("ExtractText: after %d polls: %w", e.opts.MaxAttempts, receipt.ErrExtractionTimeout)
}

// Structure asks the text-generation model to turn OCR text into a receipt
// table. The response must contain the table header; anything before the
// header and surrounding code fences are dropped.
func (e *Extractor) Structure(ctx context.Context, text string) (string, error) {
	resp, err := e.gen.Generate(ctx, llm.Prompt(structuringPrompt(e.opts.Language), text, 0.1, 1500))
	if err != nil {
		return "", fmt.Errorf("Structure: %w: %w", receipt.ErrStructuringFailed, err)
	}

	table, ok := extractTable(resp)
	if !ok {
		log := logger.FromContext(ctx)
		log.Warn().Str("response", truncate(resp, 200)).Msg("Model response has no receipt table header")
		return "", fmt.Errorf("Structure: %w: response has no table header", receipt.ErrStructuringFailed)
	}
	return table, nil
}

// extractTable returns resp from its header line on.
func extractTable(resp string) (string, bool) {
	lines := strings.Split(cleanModelOutput(resp), "\n")
	for i, line := range lines {
		if isHeaderLine(line) {
			return strings.TrimSpace(strings.Join(lines[i:], "\n")) + "\n", true
		}
	}
	return "", false
}

func isHeaderLine(line string) bool {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '"', '\uFEFF':
			return -1
		}
		return r
	}, strings.ToLower(line))
	return strings.HasPrefix(compact, "id,store")
}

// cleanModelOutput strips Markdown code fences the model may add despite
// instructions.
func cleanModelOutput(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
