package corpus

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hyperjump/manabu/internal/models"
	"go.uber.org/zap"
)

// Registry holds one Partition per category. It is built once at startup and passed
// to every component that reads or writes the corpus.
type Registry struct {
	categories []models.Category
	partitions map[models.Category]*Partition
	snapshot   Snapshot
	logger     *zap.Logger
	desyncs    atomic.Int64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger for desync and restore reporting.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithSnapshot makes every append durable in s before it becomes visible in memory.
func WithSnapshot(s Snapshot) RegistryOption {
	return func(r *Registry) {
		r.snapshot = s
	}
}

// NewRegistry creates empty partitions for categories with vectors of the given dimension.
func NewRegistry(categories []models.Category, dimensions int, opts ...RegistryOption) (*Registry, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: at least one category is required", models.ErrValidation)
	}
	r := &Registry{
		categories: append([]models.Category(nil), categories...),
		partitions: make(map[models.Category]*Partition, len(categories)),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, c := range categories {
		if _, dup := r.partitions[c]; dup {
			return nil, fmt.Errorf("%w: duplicate category %s", models.ErrValidation, c)
		}
		p, err := newPartition(c, dimensions, r.snapshot, r.logger)
		if err != nil {
			return nil, err
		}
		r.partitions[c] = p
	}
	return r, nil
}

// Categories returns the configured categories in configuration order.
func (r *Registry) Categories() []models.Category {
	return append([]models.Category(nil), r.categories...)
}

// Partition returns the partition of category.
func (r *Registry) Partition(category models.Category) (*Partition, error) {
	p, ok := r.partitions[category]
	if !ok {
		return nil, fmt.Errorf("%w: unknown exam type %q", models.ErrValidation, category)
	}
	return p, nil
}

// Restore reloads every partition from the snapshot. It returns the number of chunks per category.
func (r *Registry) Restore(ctx context.Context) (map[models.Category]int, error) {
	counts := make(map[models.Category]int, len(r.categories))
	if r.snapshot == nil {
		return counts, nil
	}
	for _, c := range r.categories {
		n, err := r.partitions[c].restore(ctx)
		if err != nil {
			return nil, err
		}
		counts[c] = n
		r.logger.Info("corpus restored", zap.String("category", string(c)), zap.Int("chunks", n))
	}
	return counts, nil
}

// RecordDesync reports a search hit whose position has no corpus entry.
func (r *Registry) RecordDesync(category models.Category, position int) {
	total := r.desyncs.Add(1)
	r.logger.Error("skipping search hit without corpus entry",
		zap.String("category", string(category)),
		zap.Int("position", position),
		zap.Int64("desync_total", total),
		zap.Error(models.ErrDesync),
	)
}

// DesyncCount returns how many search hits have been skipped for lack of a corpus entry.
func (r *Registry) DesyncCount() int64 {
	return r.desyncs.Load()
}

// Close releases the snapshot, if any.
func (r *Registry) Close() error {
	if r.snapshot == nil {
		return nil
	}
	return r.snapshot.Close()
}
