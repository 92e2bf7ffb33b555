// Package llm wraps chat-completion providers behind a single Complete call.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/manabu/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// Completer sends a system and a user prompt to a chat model and returns the reply text.
// Failures wrap models.ErrService.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// ChatModel is the part of a langchaingo model the completer needs.
type ChatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// LangChainCompleter adapts a langchaingo chat model.
type LangChainCompleter struct {
	model   ChatModel
	timeout time.Duration
}

// NewLangChainCompleter wraps model. A positive timeout bounds each call.
func NewLangChainCompleter(model ChatModel, timeout time.Duration) *LangChainCompleter {
	return &LangChainCompleter{model: model, timeout: timeout}
}

// Complete runs one chat completion.
func (c *LangChainCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msgs := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, userPrompt),
	}
	resp, err := c.model.GenerateContent(ctx, msgs,
		llms.WithMaxTokens(maxTokens),
		llms.WithTemperature(temperature),
	)
	if err != nil {
		return "", fmt.Errorf("%w: completion failed: %w", models.ErrService, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", fmt.Errorf("%w: completion returned no choices", models.ErrService)
	}
	text := resp.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: completion returned empty content", models.ErrService)
	}
	return text, nil
}
