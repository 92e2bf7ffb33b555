package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/manabu/internal/models"
	"github.com/tmc/langchaingo/embeddings"
)

// RemoteEmbedder adapts a langchaingo embeddings client (Ollama, OpenAI-compatible servers)
// and enforces the configured dimension.
type RemoteEmbedder struct {
	client     embeddings.Embedder
	dimensions int
}

// NewRemoteEmbedder wraps client; every returned vector must have dimensions components.
func NewRemoteEmbedder(client embeddings.Embedder, dimensions int) *RemoteEmbedder {
	return &RemoteEmbedder{client: client, dimensions: dimensions}
}

// Embed embeds a single query text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", models.ErrService, err)
	}
	if err := checkDimensions([][]float32{v}, e.dimensions); err != nil {
		return nil, err
	}
	return v, nil
}

// EmbedBatch embeds document chunks in one provider call.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed documents: %w", models.ErrService, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: provider returned %d embeddings for %d texts", models.ErrService, len(vecs), len(texts))
	}
	if err := checkDimensions(vecs, e.dimensions); err != nil {
		return nil, err
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources.
func (e *RemoteEmbedder) Close() error {
	return nil
}
