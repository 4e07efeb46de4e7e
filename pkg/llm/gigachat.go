package llm

import (
	"context"
	"fmt"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

type GigaChat struct {
	client *gigago.Client
	model  *gigago.GenerativeModel
	cfg    GigaChatConfig
	logger *zap.Logger
}

func NewGigaChat(ctx context.Context, cfg GigaChatConfig, logger *zap.Logger) (*GigaChat, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = cfg.SystemInstruction
	model.Temperature = cfg.Temperature

	logger.Info("GigaChat provider ready", zap.String("model", cfg.Model))

	return &GigaChat{client: client, model: model, cfg: cfg, logger: logger}, nil
}

func (g *GigaChat) Complete(ctx context.Context, prompt string) (*Completion, error) {
	ctx, cancel := withTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	}

	resp, err := g.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("gigachat generate: %w", err)
	}

	completion := &Completion{Model: g.cfg.Model}
	if len(resp.Choices) > 0 {
		completion.Content = resp.Choices[0].Message.Content
	}

	g.logger.Debug("GigaChat completion received",
		zap.String("model", completion.Model),
		zap.Int("content_length", len(completion.Content)),
	)

	return completion, nil
}

// Close satisfies Completer.
func (g *GigaChat) Close() error {
	return nil
}
