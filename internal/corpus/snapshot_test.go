package corpus

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/internal/vector"
)

func TestBoltSnapshot_RestoreRebuildsPartitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus", "corpus.bolt")
	ctx := context.Background()

	snap, err := OpenBoltSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	reg, _ := NewRegistry(models.DefaultCategories, 3, WithSnapshot(snap))
	neet, _ := reg.Partition(models.CategoryNEET)
	vecs, chunks := batch(2, 3, 1)
	if _, err := neet.Append(ctx, vecs, chunks); err != nil {
		t.Fatal(err)
	}
	more, moreChunks := batch(1, 3, 5)
	if _, err := neet.Append(ctx, more, moreChunks); err != nil {
		t.Fatal(err)
	}
	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}

	snap2, err := OpenBoltSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	reg2, _ := NewRegistry(models.DefaultCategories, 3, WithSnapshot(snap2))
	defer reg2.Close()
	counts, err := reg2.Restore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[models.CategoryNEET] != 3 || counts[models.CategoryJEE] != 0 {
		t.Errorf("restored counts: %v", counts)
	}
	p, _ := reg2.Partition(models.CategoryNEET)
	p.Read(func(index *vector.FlatIndex, store *Store) {
		if index.Size() != 3 || store.Len() != 3 {
			t.Fatalf("restored sizes index=%d corpus=%d", index.Size(), store.Len())
		}
		c, _ := store.Get(2)
		if c.Content != moreChunks[0].Content || c.Position != 2 {
			t.Errorf("restored chunk 2: %+v", c)
		}
		v, _ := index.Vector(2)
		if !reflect.DeepEqual(v, more[0]) {
			t.Errorf("restored vector 2: %v, want %v", v, more[0])
		}
	})

	// Appends after restore continue the sequence.
	v4, c4 := batch(1, 3, 9)
	stored, err := p.Append(ctx, v4, c4)
	if err != nil {
		t.Fatal(err)
	}
	if stored[0].Position != 3 {
		t.Errorf("position after restore: %d", stored[0].Position)
	}
}

func TestBoltSnapshot_AppendRejectsGap(t *testing.T) {
	snap, err := OpenBoltSnapshot(filepath.Join(t.TempDir(), "corpus.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	defer snap.Close()
	vecs, chunks := batch(1, 2, 1)
	err = snap.Append(models.CategoryJEE, 4, chunks, vecs)
	if !errors.Is(err, models.ErrDesync) {
		t.Fatalf("expected ErrDesync, got %v", err)
	}
	if err := snap.Append(models.CategoryJEE, 0, chunks, vecs); err != nil {
		t.Fatal(err)
	}
	if err := snap.Append(models.CategoryJEE, 0, chunks, vecs); !errors.Is(err, models.ErrDesync) {
		t.Errorf("re-appending at position 0 should be a desync, got %v", err)
	}
}

func TestRegistry_RestoreWithoutSnapshot(t *testing.T) {
	reg, _ := NewRegistry(models.DefaultCategories, 2)
	counts, err := reg.Restore(context.Background())
	if err != nil || len(counts) != 0 {
		t.Errorf("counts=%v err=%v", counts, err)
	}
}
