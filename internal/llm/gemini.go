package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Default model names.
const (
	DefaultTextModel      = "gemini-2.5-flash"
	DefaultEmbeddingModel = "text-embedding-004"
)

// Gemini implements Generator and Embedder on top of the genai SDK.
type Gemini struct {
	client         *genai.Client
	textModel      string
	embeddingModel string
	dimensions     int32
}

// GeminiConfig configures NewGemini. An empty APIKey lets the SDK fall back to
// GOOGLE_API_KEY or Vertex AI application default credentials.
type GeminiConfig struct {
	APIKey         string
	Project        string
	Location       string
	TextModel      string
	EmbeddingModel string
	// Dimensions truncates embeddings when > 0.
	Dimensions int32
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if cfg.APIKey == "" && cfg.Project != "" {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}

	g := &Gemini{
		client:         client,
		textModel:      cfg.TextModel,
		embeddingModel: cfg.EmbeddingModel,
		dimensions:     cfg.Dimensions,
	}
	if g.textModel == "" {
		g.textModel = DefaultTextModel
	}
	if g.embeddingModel == "" {
		g.embeddingModel = DefaultEmbeddingModel
	}
	return g, nil
}

// Generate runs one completion.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("Generate: no messages")
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = req.MaxTokens
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.textModel, contents, config)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("Generate: empty response from model")
	}
	return text, nil
}

// Embed returns the embedding of text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	var config *genai.EmbedContentConfig
	if g.dimensions > 0 {
		config = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(g.dimensions)}
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, config)
	if err != nil {
		return nil, fmt.Errorf("Embed: embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("Embed: empty embedding")
	}
	return resp.Embeddings[0].Values, nil
}
