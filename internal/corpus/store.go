// Package corpus pairs each category's vector index with its ordered chunk store and
// keeps the two in lockstep.
package corpus

import "github.com/hyperjump/manabu/internal/models"

// Store is the ordered, append-only chunk sequence of one category.
// Index i holds the chunk whose embedding is at position i of the paired vector index.
// It is not safe for concurrent use; Partition serialises access.
type Store struct {
	chunks []models.Chunk
}

// Append adds chunks at the end, assigning their positions, and returns the stored copies.
func (s *Store) Append(chunks []models.Chunk) []models.Chunk {
	start := len(s.chunks)
	for i, c := range chunks {
		c.Position = start + i
		s.chunks = append(s.chunks, c)
	}
	return append([]models.Chunk(nil), s.chunks[start:]...)
}

// Get returns the chunk at position.
func (s *Store) Get(position int) (models.Chunk, bool) {
	if position < 0 || position >= len(s.chunks) {
		return models.Chunk{}, false
	}
	return s.chunks[position], true
}

// Len returns the number of stored chunks.
func (s *Store) Len() int {
	return len(s.chunks)
}

// All returns a copy of every chunk in position order.
func (s *Store) All() []models.Chunk {
	return append([]models.Chunk(nil), s.chunks...)
}
