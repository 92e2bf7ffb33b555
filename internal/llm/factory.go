package llm

import (
	"fmt"

	"github.com/hyperjump/manabu/internal/config"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// New builds the completer selected by cfg.Provider (openai or ollama), with the
// configured per-call timeout and retry budget.
func New(cfg config.CompletionConfig, logger *zap.Logger) (Completer, error) {
	var model ChatModel
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if key := cfg.APIKey(); key != "" {
			opts = append(opts, openai.WithToken(key))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		model = llm
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		model = llm
	default:
		return nil, fmt.Errorf("unknown completion provider: %s (supported: openai, ollama)", cfg.Provider)
	}
	return NewRetryCompleter(NewLangChainCompleter(model, cfg.Timeout()), cfg.MaxRetries, logger), nil
}
