package corpus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/internal/vector"
	"go.etcd.io/bbolt"
)

// Snapshot durably records appended batches so partitions can be rebuilt on restart.
type Snapshot interface {
	// Append writes a batch that starts at position start. It fails with models.ErrDesync
	// if the stored sequence does not end at start-1.
	Append(category models.Category, start int, chunks []models.Chunk, vectors [][]float32) error
	// Load calls fn for every stored entry of category in position order.
	Load(category models.Category, fn func(models.Chunk, []float32) error) error
	Close() error
}

type snapshotEntry struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
	Subject  string `json:"subject"`
	Vector   []byte `json:"vector"`
}

// BoltSnapshot stores one bucket per category keyed by big-endian position.
type BoltSnapshot struct {
	db *bbolt.DB
}

// OpenBoltSnapshot opens or creates the snapshot file at path, creating parent directories.
func OpenBoltSnapshot(path string) (*BoltSnapshot, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus snapshot: %w", err)
	}
	return &BoltSnapshot{db: db}, nil
}

// Append writes the batch in a single transaction.
func (s *BoltSnapshot) Append(category models.Category, start int, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d vectors for %d chunks", models.ErrValidation, len(vectors), len(chunks))
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(category))
		if err != nil {
			return err
		}
		next := 0
		if k, _ := b.Cursor().Last(); k != nil {
			next = int(binary.BigEndian.Uint64(k)) + 1
		}
		if next != start {
			return fmt.Errorf("%w: snapshot for %s ends at %d, batch starts at %d", models.ErrDesync, category, next, start)
		}
		for i, c := range chunks {
			data, err := json.Marshal(snapshotEntry{
				Content:  c.Content,
				Filename: c.Filename,
				Subject:  c.Subject,
				Vector:   vector.EncodeVector(vectors[i]),
			})
			if err != nil {
				return err
			}
			if err := b.Put(positionKey(start+i), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load streams the category's entries. A gap in positions fails with models.ErrDesync.
func (s *BoltSnapshot) Load(category models.Category, fn func(models.Chunk, []float32) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName(category))
		if b == nil {
			return nil
		}
		expected := 0
		return b.ForEach(func(k, v []byte) error {
			pos := int(binary.BigEndian.Uint64(k))
			if pos != expected {
				return fmt.Errorf("%w: snapshot for %s has position %d, expected %d", models.ErrDesync, category, pos, expected)
			}
			expected++
			var e snapshotEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode snapshot entry %d: %w", pos, err)
			}
			vec, err := vector.DecodeVector(e.Vector)
			if err != nil {
				return fmt.Errorf("decode snapshot vector %d: %w", pos, err)
			}
			return fn(models.Chunk{Content: e.Content, Filename: e.Filename, Subject: e.Subject, Position: pos}, vec)
		})
	})
}

// Close closes the underlying database.
func (s *BoltSnapshot) Close() error {
	return s.db.Close()
}

func bucketName(category models.Category) []byte {
	return []byte("corpus:" + string(category))
}

func positionKey(position int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(position))
	return k
}
