// Package search retrieves the chunks most similar to a query from a category's corpus.
package search

import (
	"context"
	"sort"
	"time"

	"github.com/hyperjump/manabu/internal/corpus"
	"github.com/hyperjump/manabu/internal/embedding"
	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/internal/vector"
	"go.uber.org/zap"
)

// Retriever runs semantic search over one category partition at a time.
type Retriever struct {
	registry *corpus.Registry
	embedder embedding.Embedder
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTimeout bounds each query embedding call.
func WithTimeout(d time.Duration) Option {
	return func(r *Retriever) {
		r.timeout = d
	}
}

// NewRetriever creates a retriever over registry using embedder for queries.
func NewRetriever(registry *corpus.Registry, embedder embedding.Embedder, opts ...Option) *Retriever {
	r := &Retriever{registry: registry, embedder: embedder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK chunks of category ordered by relevance, best first.
// An unknown or empty category, or a failed query embedding, yields no results.
func (r *Retriever) Retrieve(ctx context.Context, query string, category models.Category, topK int) []models.RetrievalResult {
	if topK <= 0 {
		return nil
	}
	p, err := r.registry.Partition(category)
	if err != nil || p.Size() == 0 {
		return nil
	}

	qvec, err := r.embedQuery(ctx, query)
	if err != nil {
		r.logger.Warn("Query embedding failed",
			zap.String("category", string(category)),
			zap.Error(err))
		return nil
	}

	var (
		results []models.RetrievalResult
		missing []int
	)
	p.Read(func(index *vector.FlatIndex, store *corpus.Store) {
		neighbors, err := index.Search(qvec, topK)
		if err != nil {
			r.logger.Warn("Vector search failed",
				zap.String("category", string(category)),
				zap.Error(err))
			return
		}
		results = make([]models.RetrievalResult, 0, len(neighbors))
		for _, n := range neighbors {
			chunk, ok := store.Get(n.Position)
			if !ok {
				missing = append(missing, n.Position)
				continue
			}
			results = append(results, models.RetrievalResult{
				Chunk:          chunk,
				RelevanceScore: vector.RelevanceScore(n.Distance),
				Distance:       n.Distance,
			})
		}
	})
	for _, pos := range missing {
		r.registry.RecordDesync(category, pos)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if len(results) > topK {
		results = results[:topK]
	}
	r.logger.Debug("Retrieved chunks",
		zap.String("category", string(category)),
		zap.Int("results", len(results)),
		zap.Int("desync_skips", len(missing)))
	return results
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.embedder.Embed(ctx, query)
}
