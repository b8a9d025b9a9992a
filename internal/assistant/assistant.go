// Package assistant answers questions about archived receipts using
// retrieval over the search index. Conversation history is passed in and
// returned by the caller; the package keeps no session state.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dvloznov/receipt-ledger/internal/llm"
	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/search"
)

const (
	DefaultTopN       = 50
	DefaultMaxHistory = 20

	temperature = 0.7
	maxTokens   = 1024
)

// ErrEmptyPrompt is returned for a blank question.
var ErrEmptyPrompt = errors.New("empty prompt")

// Conversation is the history of one chat, oldest message first.
type Conversation struct {
	Messages []llm.Message `json:"history"`
}

// Options tunes retrieval and history length.
type Options struct {
	TopN       int
	MaxHistory int
}

// Assistant answers questions about receipts.
type Assistant struct {
	embedder llm.Embedder
	index    search.Index
	gen      llm.Generator
	topN     int
	history  int
}

// New creates an Assistant. Zero options take their defaults.
func New(embedder llm.Embedder, index search.Index, gen llm.Generator, opts Options) *Assistant {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	return &Assistant{
		embedder: embedder,
		index:    index,
		gen:      gen,
		topN:     opts.TopN,
		history:  opts.MaxHistory,
	}
}

// Answer replies to prompt in the context of conv and returns the reply
// together with the extended conversation. conv itself is not modified.
//
// Retrieval is best effort: if the prompt cannot be embedded or the index
// cannot be searched, the model is asked without receipt context.
func (a *Assistant) Answer(ctx context.Context, conv Conversation, prompt string) (string, Conversation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", conv, ErrEmptyPrompt
	}

	hits := a.retrieve(ctx, prompt)

	history := conv.Messages
	if len(history) > a.history {
		history = history[len(history)-a.history:]
	}
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Text: prompt})

	reply, err := a.gen.Generate(ctx, llm.Request{
		System:      systemPrompt + formatContext(hits),
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", conv, fmt.Errorf("Answer: %w", err)
	}

	next := Conversation{Messages: make([]llm.Message, 0, len(conv.Messages)+2)}
	next.Messages = append(next.Messages, conv.Messages...)
	next.Messages = append(next.Messages,
		llm.Message{Role: llm.RoleUser, Text: prompt},
		llm.Message{Role: llm.RoleAssistant, Text: reply},
	)
	return reply, next, nil
}

func (a *Assistant) retrieve(ctx context.Context, prompt string) []search.Hit {
	log := logger.FromContext(ctx)

	vec, err := a.embedder.Embed(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to embed prompt, answering without receipts")
		return nil
	}
	hits, err := a.index.Search(ctx, vec, a.topN)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to search index, answering without receipts")
		return nil
	}
	log.Debug().Int("hits", len(hits)).Msg("Retrieved receipt rows")
	return hits
}

func formatContext(hits []search.Hit) string {
	if len(hits) == 0 {
		return "\n\nNo receipt records matched this question."
	}
	var b strings.Builder
	b.WriteString("\n\nReceipt records (store | date | item | price | quantity | category | country | note):\n")
	for _, h := range hits {
		d := h.Document
		fmt.Fprintf(&b, "- %s | %s | %s | %s %s | %d | %s | %s | %s\n",
			d.Store, d.Date, d.Item,
			strconv.FormatFloat(d.Price, 'f', -1, 64), d.Currency,
			d.Quantity, d.Category, d.Country, d.Content)
	}
	return b.String()
}

const systemPrompt = `You are a friendly financial assistant named '영식이'.
- Include specific details from receipts such as store name, date, items, price, currency, and category when relevant.
- If the user's question is vague, politely ask for clarification.
- Maintain a conversational and helpful tone at all times.
- When the user asks for summaries or comparisons, provide calculated insights clearly.
- If a Korean store name is given by the user, try to match it to its English equivalent as stored in the receipt data.
- Always respond in Korean unless the user specifically asks for another language.
- Use emojis to make the conversation more friendly and engaging.
- Answer only from the receipt records below; say so when they do not contain the answer.`
