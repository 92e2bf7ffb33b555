// Package vector provides exact nearest-neighbour search over embedding vectors.
package vector

import (
	"fmt"
	"math"
	"sort"
)

// Neighbor is a search hit: the position of a stored vector and its distance to the query.
type Neighbor struct {
	Position int
	Distance float64
}

// FlatIndex is an append-only, brute-force L2 index. Positions are assigned in insertion order.
// It is not safe for concurrent use; corpus.Partition serialises access.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{dimensions: dimensions}, nil
}

// Dimensions returns the vector dimension the index accepts.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Validate checks that every vector has the index dimension and only finite components.
func (f *FlatIndex) Validate(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), f.dimensions)
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return fmt.Errorf("vector %d has a non-finite component", i)
			}
		}
	}
	return nil
}

// Add appends copies of vectors. The whole batch is rejected if any vector is invalid.
func (f *FlatIndex) Add(vectors [][]float32) error {
	if err := f.Validate(vectors); err != nil {
		return err
	}
	for _, v := range vectors {
		vec := make([]float32, f.dimensions)
		copy(vec, v)
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

// Search returns the min(k, Size()) nearest vectors to query, ascending by distance.
// Ties are broken by position so results are deterministic.
func (f *FlatIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}
	hits := make([]Neighbor, len(f.vectors))
	for i, vec := range f.vectors {
		hits[i] = Neighbor{Position: i, Distance: SquaredL2(query, vec)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Position < hits[j].Position
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Vector returns the stored vector at position.
func (f *FlatIndex) Vector(position int) ([]float32, bool) {
	if position < 0 || position >= len(f.vectors) {
		return nil, false
	}
	return f.vectors[position], true
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	return len(f.vectors)
}
