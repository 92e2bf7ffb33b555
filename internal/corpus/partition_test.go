package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/internal/vector"
)

type failingSnapshot struct {
	err error
}

func (f *failingSnapshot) Append(models.Category, int, []models.Chunk, [][]float32) error {
	return f.err
}

func (f *failingSnapshot) Load(models.Category, func(models.Chunk, []float32) error) error {
	return nil
}

func (f *failingSnapshot) Close() error { return nil }

func batch(n, dims int, seed float32) ([][]float32, []models.Chunk) {
	vecs := make([][]float32, n)
	chunks := make([]models.Chunk, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dims)
		v[i%dims] = seed + float32(i)
		vecs[i] = v
		chunks[i] = models.Chunk{Content: fmt.Sprintf("chunk %v-%d", seed, i), Filename: "bio.pdf", Subject: "Biology"}
	}
	return vecs, chunks
}

func pairedSizes(p *Partition) (int, int) {
	var idx, n int
	p.Read(func(index *vector.FlatIndex, store *Store) {
		idx, n = index.Size(), store.Len()
	})
	return idx, n
}

func TestPartition_AppendKeepsPairing(t *testing.T) {
	reg, err := NewRegistry(models.DefaultCategories, 4)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := reg.Partition(models.CategoryNEET)
	ctx := context.Background()

	total := 0
	for round, n := range []int{3, 1, 5} {
		vecs, chunks := batch(n, 4, float32(round))
		stored, err := p.Append(ctx, vecs, chunks)
		if err != nil {
			t.Fatal(err)
		}
		for i, c := range stored {
			if c.Position != total+i {
				t.Errorf("round %d: chunk %d position=%d, want %d", round, i, c.Position, total+i)
			}
		}
		total += n
		idx, n := pairedSizes(p)
		if idx != n || idx != total {
			t.Fatalf("after round %d: index=%d corpus=%d want %d", round, idx, n, total)
		}
	}

	other, _ := reg.Partition(models.CategoryJEE)
	if other.Size() != 0 {
		t.Errorf("categories must not share storage, JEE size=%d", other.Size())
	}
}

func TestPartition_RejectsBadBatchAtomically(t *testing.T) {
	reg, _ := NewRegistry(models.DefaultCategories, 3)
	p, _ := reg.Partition(models.CategoryJEE)
	ctx := context.Background()

	vecs, chunks := batch(2, 3, 1)
	if _, err := p.Append(ctx, vecs, chunks[:1]); !errors.Is(err, models.ErrValidation) {
		t.Errorf("length mismatch: expected ErrValidation, got %v", err)
	}
	vecs[1] = []float32{1, 2}
	if _, err := p.Append(ctx, vecs, chunks); !errors.Is(err, models.ErrValidation) {
		t.Errorf("dimension mismatch: expected ErrValidation, got %v", err)
	}
	if _, err := p.Append(ctx, nil, nil); !errors.Is(err, models.ErrValidation) {
		t.Errorf("empty batch: expected ErrValidation, got %v", err)
	}
	if idx, n := pairedSizes(p); idx != 0 || n != 0 {
		t.Errorf("rejected batches must not append: index=%d corpus=%d", idx, n)
	}
}

func TestPartition_SnapshotFailureAppendsNothing(t *testing.T) {
	snap := &failingSnapshot{err: errors.New("disk full")}
	reg, _ := NewRegistry(models.DefaultCategories, 2, WithSnapshot(snap))
	p, _ := reg.Partition(models.CategoryNEET)
	vecs, chunks := batch(2, 2, 1)
	_, err := p.Append(context.Background(), vecs, chunks)
	if err == nil {
		t.Fatal("expected snapshot error")
	}
	if idx, n := pairedSizes(p); idx != 0 || n != 0 {
		t.Errorf("failed snapshot must leave partition untouched: index=%d corpus=%d", idx, n)
	}
}

func TestPartition_CancelledContext(t *testing.T) {
	reg, _ := NewRegistry(models.DefaultCategories, 2)
	p, _ := reg.Partition(models.CategoryNEET)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	vecs, chunks := batch(1, 2, 1)
	if _, err := p.Append(ctx, vecs, chunks); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if p.Size() != 0 {
		t.Error("cancelled append must not modify the partition")
	}
}

func TestPartition_ConcurrentReadersAndWriters(t *testing.T) {
	reg, _ := NewRegistry(models.DefaultCategories, 4)
	p, _ := reg.Partition(models.CategoryNEET)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			vecs, chunks := batch(3, 4, float32(w))
			if _, err := p.Append(ctx, vecs, chunks); err != nil {
				t.Error(err)
			}
		}(w)
	}
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				p.Read(func(index *vector.FlatIndex, store *Store) {
					if index.Size() != store.Len() {
						t.Errorf("reader observed index=%d corpus=%d", index.Size(), store.Len())
					}
					hits, _ := index.Search([]float32{1, 0, 0, 0}, 5)
					for _, h := range hits {
						if _, ok := store.Get(h.Position); !ok {
							t.Errorf("hit %d has no corpus entry", h.Position)
						}
					}
				})
			}
		}()
	}
	wg.Wait()
	if idx, n := pairedSizes(p); idx != 24 || n != 24 {
		t.Errorf("final sizes index=%d corpus=%d, want 24", idx, n)
	}
}

func TestRegistry_UnknownCategory(t *testing.T) {
	reg, _ := NewRegistry(models.DefaultCategories, 2)
	if _, err := reg.Partition("GATE"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if _, err := NewRegistry(nil, 2); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation for no categories, got %v", err)
	}
	if _, err := NewRegistry([]models.Category{"A", "A"}, 2); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation for duplicates, got %v", err)
	}
}

func TestRegistry_DesyncCounter(t *testing.T) {
	reg, _ := NewRegistry(models.DefaultCategories, 2)
	reg.RecordDesync(models.CategoryNEET, 7)
	reg.RecordDesync(models.CategoryJEE, 1)
	if got := reg.DesyncCount(); got != 2 {
		t.Errorf("DesyncCount=%d, want 2", got)
	}
}

func TestStore(t *testing.T) {
	s := &Store{}
	stored := s.Append([]models.Chunk{{Content: "a", Position: 99}, {Content: "b"}})
	if stored[0].Position != 0 || stored[1].Position != 1 {
		t.Errorf("positions not assigned: %+v", stored)
	}
	if _, ok := s.Get(2); ok {
		t.Error("Get past end should report missing")
	}
	if _, ok := s.Get(-1); ok {
		t.Error("Get negative should report missing")
	}
	all := s.All()
	all[0].Content = "mutated"
	if c, _ := s.Get(0); c.Content != "a" {
		t.Error("All must return a copy")
	}
}
