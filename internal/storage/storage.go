// Package storage defines the persistence log for ingested documents and answered queries.
package storage

import (
	"context"

	"github.com/hyperjump/manabu/internal/models"
)

// Storage is the append-only persistence log. Writes are single-row inserts and safe
// for concurrent use.
type Storage interface {
	// Append operations
	RecordDocument(ctx context.Context, rec *models.DocumentRecord) error
	RecordInteraction(ctx context.Context, in *models.Interaction) error

	// Reads
	ListDocuments(ctx context.Context, category models.Category, offset, limit int) ([]*models.DocumentRecord, error)
	HasSource(ctx context.Context, sourceID string) (bool, error)

	// Stats
	CountDocuments(ctx context.Context, category models.Category) (int64, error)
	CountInteractions(ctx context.Context, category models.Category) (int64, error)
	AverageConfidence(ctx context.Context, category models.Category) (float64, error)

	Close() error
}
