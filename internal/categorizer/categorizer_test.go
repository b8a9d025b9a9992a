package categorizer

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/receipt-ledger/internal/llm"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
)

type mockGenerator struct {
	answer string
	err    error
	calls  int
	last   llm.Request
}

func (m *mockGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	m.calls++
	m.last = req
	return m.answer, m.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		item   string
		answer string
		err    error
		want   string
	}{
		{"exact answer", "지하철 승차권", "교통비", nil, receipt.CategoryTransport},
		{"answer with prose", "호텔", "이 품목은 숙박비 입니다.", nil, receipt.CategoryLodging},
		{"several categories takes enumeration order", "기념품 식당", "쇼핑 및 기념품비 또는 식비", nil, receipt.CategoryFood},
		{"unknown answer", "Widget", "gadgets", nil, receipt.FallbackCategory},
		{"collaborator error", "Unknown Gadget XYZ", "", errors.New("service unavailable"), receipt.FallbackCategory},
		{"blank item", "   ", "식비", nil, receipt.FallbackCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&mockGenerator{answer: tt.answer, err: tt.err}, nil)
			if got := c.Classify(context.Background(), tt.item); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.item, got, tt.want)
			}
		})
	}
}

func TestClassify_BlankItemSkipsModel(t *testing.T) {
	gen := &mockGenerator{answer: "식비"}
	New(gen, nil).Classify(context.Background(), "")
	if gen.calls != 0 {
		t.Errorf("model called %d times for a blank item", gen.calls)
	}
}

func TestClassify_RequestParameters(t *testing.T) {
	gen := &mockGenerator{answer: "식비"}
	New(gen, nil).Classify(context.Background(), "라멘")

	if gen.last.Temperature != 0 || gen.last.MaxTokens != 20 {
		t.Errorf("parameters = %v/%d, want 0/20", gen.last.Temperature, gen.last.MaxTokens)
	}
	if len(gen.last.Messages) != 1 || gen.last.Messages[0].Text != "라멘" {
		t.Errorf("messages = %+v", gen.last.Messages)
	}
}

func TestClassify_NilGenerator(t *testing.T) {
	if got := New(nil, nil).Classify(context.Background(), "라멘"); got != receipt.FallbackCategory {
		t.Errorf("Classify() = %q, want fallback", got)
	}
}
