package embedding

import (
	"fmt"

	"github.com/hyperjump/manabu/internal/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ONNXOptions configures the local ONNX embedder.
type ONNXOptions struct {
	ModelPath  string
	VocabPath  string
	Dimensions int
	MaxTokens  int
}

// New builds the embedder selected by cfg.Provider: onnx, ollama, openai or mock.
// Real providers are wrapped in an LRU cache of cfg.CacheSize entries.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	case "onnx":
		e, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:  cfg.ModelPath,
			VocabPath:  cfg.VocabPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return remote(llm, cfg)
	case "openai":
		opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
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
		return remote(llm, cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, ollama, openai, mock)", cfg.Provider)
	}
}

func remote(client embeddings.EmbedderClient, cfg config.EmbeddingConfig) (Embedder, error) {
	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewCachedEmbedder(NewRemoteEmbedder(emb, cfg.Dimensions), cfg.CacheSize), nil
}
