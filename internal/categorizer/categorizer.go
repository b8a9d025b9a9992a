// Package categorizer maps free-text item descriptions onto the fixed
// spending categories. It is best-effort and never fails.
package categorizer

import (
	"context"
	"strings"

	"github.com/dvloznov/receipt-ledger/internal/llm"
	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/observability/metrics"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

// Classifier asks a text-generation model for an item's category.
type Classifier struct {
	gen     llm.Generator
	metrics *metrics.Metrics
}

// New creates a Classifier. m may be nil.
func New(gen llm.Generator, m *metrics.Metrics) *Classifier {
	return &Classifier{gen: gen, metrics: m}
}

// Classify returns the category for item. A blank item, a failed model call
// or an answer naming no known category yields receipt.FallbackCategory.
func (c *Classifier) Classify(ctx context.Context, item string) string {
	item = strings.TrimSpace(item)
	if item == "" || c.gen == nil {
		c.metrics.IncrClassification("fallback")
		return receipt.FallbackCategory
	}

	answer, err := c.gen.Generate(ctx, llm.Prompt(classificationPrompt(), item, 0, 20))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("item", item).Msg("Category classification failed, using fallback")
		c.metrics.IncrClassification("fallback")
		return receipt.FallbackCategory
	}

	if category, ok := MatchCategory(answer); ok {
		c.metrics.IncrClassification("matched")
		return category
	}
	c.metrics.IncrClassification("fallback")
	return receipt.FallbackCategory
}

// MatchCategory returns the first category, in enumeration order, whose
// label appears in answer. The order is the tie-break when an answer names
// several categories.
func MatchCategory(answer string) (string, bool) {
	for _, category := range receipt.Categories() {
		if strings.Contains(answer, category) {
			return category, true
		}
	}
	return "", false
}

func classificationPrompt() string {
	return "다음 품목을 다음 카테고리 중 하나로 분류해줘: " +
		strings.Join(receipt.Categories(), ", ") +
		". 답변은 오직 카테고리 이름 하나여야 합니다."
}
