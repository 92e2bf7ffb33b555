package corpus

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/internal/vector"
	"go.uber.org/zap"
)

// Partition owns one category's vector index and chunk store. Appends hold the write
// lock; searches run concurrently under the read lock and never observe a half-applied batch.
type Partition struct {
	category models.Category
	snapshot Snapshot
	logger   *zap.Logger

	mu    sync.RWMutex
	index *vector.FlatIndex
	store *Store
}

func newPartition(category models.Category, dimensions int, snapshot Snapshot, logger *zap.Logger) (*Partition, error) {
	idx, err := vector.NewFlatIndex(dimensions)
	if err != nil {
		return nil, err
	}
	return &Partition{
		category: category,
		snapshot: snapshot,
		logger:   logger,
		index:    idx,
		store:    &Store{},
	}, nil
}

// Category returns the exam category this partition serves.
func (p *Partition) Category() models.Category {
	return p.category
}

// Append adds a batch of embeddings and their chunks. Either the whole batch lands in
// the snapshot, the index and the store, or none of it does. The returned chunks carry
// their assigned positions.
func (p *Partition) Append(ctx context.Context, vectors [][]float32, chunks []models.Chunk) ([]models.Chunk, error) {
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", models.ErrValidation, len(vectors), len(chunks))
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: empty batch", models.ErrValidation)
	}
	if err := p.index.Validate(vectors); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.store.Len()
	if p.index.Size() != start {
		return nil, p.desync("before append")
	}
	positioned := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		c.Position = start + i
		positioned[i] = c
	}
	if p.snapshot != nil {
		if err := p.snapshot.Append(p.category, start, positioned, vectors); err != nil {
			return nil, fmt.Errorf("persist %s corpus batch: %w", p.category, err)
		}
	}
	if err := p.index.Add(vectors); err != nil {
		// Unreachable after Validate; the snapshot already holds the batch, so the partition is now behind it.
		return nil, fmt.Errorf("%w: %v", models.ErrDesync, err)
	}
	stored := p.store.Append(positioned)
	if p.index.Size() != p.store.Len() {
		return nil, p.desync("after append")
	}
	return stored, nil
}

// Read runs fn with the index and store held under the read lock. fn must not retain them.
func (p *Partition) Read(fn func(index *vector.FlatIndex, store *Store)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn(p.index, p.store)
}

// Size returns the number of indexed vectors.
func (p *Partition) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index.Size()
}

// restore replays snapshot entries into an empty partition without writing them back.
func (p *Partition) restore(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index.Size() != 0 || p.store.Len() != 0 {
		return 0, fmt.Errorf("restore %s: partition is not empty", p.category)
	}
	var (
		vectors [][]float32
		chunks  []models.Chunk
	)
	err := p.snapshot.Load(p.category, func(c models.Chunk, v []float32) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		vectors = append(vectors, v)
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("restore %s: %w", p.category, err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := p.index.Add(vectors); err != nil {
		return 0, fmt.Errorf("restore %s: %w", p.category, err)
	}
	p.store.Append(chunks)
	return len(chunks), nil
}

func (p *Partition) desync(stage string) error {
	p.logger.Error("vector index and corpus out of sync",
		zap.String("category", string(p.category)),
		zap.String("stage", stage),
		zap.Int("index_size", p.index.Size()),
		zap.Int("corpus_len", p.store.Len()),
	)
	return fmt.Errorf("%w: %s %s: index has %d vectors, corpus has %d chunks",
		models.ErrDesync, p.category, stage, p.index.Size(), p.store.Len())
}
