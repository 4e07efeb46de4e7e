package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"go.uber.org/zap"
)

// Vertex talks to Gemini on Vertex AI with JSON-only responses.
type Vertex struct {
	client *genai.Client
	model  *genai.GenerativeModel
	cfg    VertexConfig
	logger *zap.Logger
}

func NewVertex(ctx context.Context, cfg VertexConfig, logger *zap.Logger) (*Vertex, error) {
	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(cfg.SystemInstruction)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(float32(cfg.Temperature)),
	}

	logger.Info("Vertex AI provider ready",
		zap.String("model", cfg.Model),
		zap.String("region", cfg.Region),
	)

	return &Vertex{client: client, model: model, cfg: cfg, logger: logger}, nil
}

func (v *Vertex) Complete(ctx context.Context, prompt string) (*Completion, error) {
	ctx, cancel := withTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("vertex generate content: %w", err)
	}

	completion := &Completion{Model: v.cfg.Model}
	if resp.UsageMetadata != nil {
		completion.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		completion.Content = b.String()
	}

	return completion, nil
}

func (v *Vertex) Close() error {
	return v.client.Close()
}
