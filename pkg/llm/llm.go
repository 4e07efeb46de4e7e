// Package llm wraps the reasoning engine providers behind one small interface.
package llm

import (
	"context"
	"time"
)

// Completion is the raw text a provider produced for a prompt.
type Completion struct {
	Content     string
	Model       string
	TotalTokens int
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
	Close() error
}

// GigaChatConfig is passed explicitly; providers never read the environment.
type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
	Model              string
	Temperature        float64
	Timeout            time.Duration
	SystemInstruction  string
}

type VertexConfig struct {
	ProjectID         string
	Region            string
	Model             string
	Temperature       float64
	Timeout           time.Duration
	SystemInstruction string
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
