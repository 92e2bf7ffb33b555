// Package embedding maps text to fixed-dimension vectors for similarity search.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/manabu/internal/models"
)

// Embedder produces vector embeddings for text.
// Errors from real providers wrap models.ErrService.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// checkDimensions verifies that every vector has the expected dimension.
func checkDimensions(vectors [][]float32, want int) error {
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%w: embedding %d has %d dimensions, expected %d", models.ErrService, i, len(v), want)
		}
	}
	return nil
}
