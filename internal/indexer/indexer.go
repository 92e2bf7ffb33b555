// Package indexer chunks, embeds and appends study material to the category corpus.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/manabu/internal/corpus"
	"github.com/hyperjump/manabu/internal/embedding"
	"github.com/hyperjump/manabu/internal/extract"
	"github.com/hyperjump/manabu/internal/fileid"
	"github.com/hyperjump/manabu/internal/keyword"
	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/internal/storage"
	"github.com/hyperjump/manabu/internal/vector"
	"go.uber.org/zap"
)

// Indexer ingests documents into the corpus registry and records them in the persistence log.
type Indexer struct {
	registry  *corpus.Registry
	embedder  embedding.Embedder
	splitter  *Splitter
	storage   storage.Storage
	passages  *keyword.PassageIndex
	extractor *extract.Extractor
	timeout   time.Duration
	logger    *zap.Logger

	sourceMu sync.Mutex
	sources  map[string]*sourceLock
}

// sourceLock serialises ingestion of one source; refs counts holders and waiters.
type sourceLock struct {
	mu   sync.Mutex
	refs int
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithPassageIndex also indexes every appended chunk for keyword search.
func WithPassageIndex(p *keyword.PassageIndex) IndexerOption {
	return func(idx *Indexer) { idx.passages = p }
}

// WithExtractor sets the extractor used by IngestFile. Defaults to extract.NewExtractor().
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// WithEmbedTimeout bounds the embedding call of each ingestion.
func WithEmbedTimeout(d time.Duration) IndexerOption {
	return func(idx *Indexer) { idx.timeout = d }
}

// NewIndexer creates an indexer. store may be nil, in which case nothing is recorded.
func NewIndexer(
	registry *corpus.Registry,
	embedder embedding.Embedder,
	splitter *Splitter,
	store storage.Storage,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		registry:  registry,
		embedder:  embedder,
		splitter:  splitter,
		storage:   store,
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
		sources:   make(map[string]*sourceLock),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest chunks req.Text, embeds the chunks and appends them to the category partition
// as one atomic batch. Embedding runs before the partition lock is taken.
// The document record is written after the append; a failure there is logged only.
func (idx *Indexer) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	if err := req.Validate(idx.registry.Categories()); err != nil {
		return nil, err
	}
	partition, err := idx.registry.Partition(req.Category)
	if err != nil {
		return nil, err
	}

	pieces := idx.splitter.Split(Preprocess(req.Text))
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: document %s has no text to index", models.ErrValidation, req.Filename)
	}
	vectors, err := idx.embed(ctx, pieces)
	if err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.Chunk{Content: p, Filename: req.Filename, Subject: req.Subject}
	}
	stored, err := partition.Append(ctx, vectors, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to append %s: %w", req.Filename, err)
	}

	if idx.passages != nil {
		if err := idx.passages.Index(ctx, req.Category, stored); err != nil {
			idx.logger.Warn("Failed to index passages for keyword search",
				zap.String("filename", req.Filename),
				zap.Error(err))
		}
	}
	idx.record(ctx, req, len(stored))

	idx.logger.Info("Document ingested",
		zap.String("category", string(req.Category)),
		zap.String("filename", req.Filename),
		zap.Int("chunks", len(stored)))
	return &models.IngestResult{Filename: req.Filename, ChunksCreated: len(stored)}, nil
}

func (idx *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if idx.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, idx.timeout)
		defer cancel()
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	return vectors, nil
}

func (idx *Indexer) record(ctx context.Context, req models.IngestRequest, chunkCount int) {
	if idx.storage == nil {
		return
	}
	rec := &models.DocumentRecord{
		SourceID:   req.SourceID,
		Filename:   req.Filename,
		Category:   req.Category,
		Subject:    req.Subject,
		ChunkCount: chunkCount,
		Processed:  true,
	}
	if err := idx.storage.RecordDocument(context.WithoutCancel(ctx), rec); err != nil {
		idx.logger.Error("Failed to record document",
			zap.String("filename", req.Filename),
			zap.Error(err))
	}
}

// IngestFile extracts the file at path and ingests it into category under subject.
// If allowedExts is non-empty, the extension must be in the list (case-insensitive).
// A file already recorded for this category is skipped and reported with skipped=true;
// the corpus is append-only, so edits to an ingested file are not picked up.
func (idx *Indexer) IngestFile(ctx context.Context, path string, category models.Category, subject string, allowedExts []string) (result *models.IngestResult, skipped bool, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, false, fmt.Errorf("%w: extension %q not in allowed list", models.ErrValidation, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, fmt.Errorf("%w: not a regular file: %s", models.ErrValidation, absPath)
	}
	category, err = models.ParseCategory(string(category), idx.registry.Categories())
	if err != nil {
		return nil, false, err
	}

	sourceID := fileid.SourceID(category, absPath)
	unlock := idx.lockSource(sourceID)
	defer unlock()
	if idx.storage != nil {
		seen, err := idx.storage.HasSource(ctx, sourceID)
		if err != nil {
			return nil, false, fmt.Errorf("check source: %w", err)
		}
		if seen {
			idx.logger.Debug("Skipping already ingested file", zap.String("path", absPath))
			return nil, true, nil
		}
	}

	text, err := idx.extractor.Extract(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("extract content: %w", err)
	}
	result, err = idx.Ingest(ctx, models.IngestRequest{
		Text:     text,
		Filename: filepath.Base(absPath),
		Category: category,
		Subject:  subject,
		SourceID: sourceID,
	})
	return result, false, err
}

// lockSource holds the lock for sourceID until the returned func is called, so the
// HasSource check and the append it guards run as one step per source.
func (idx *Indexer) lockSource(sourceID string) func() {
	idx.sourceMu.Lock()
	l, ok := idx.sources[sourceID]
	if !ok {
		l = &sourceLock{}
		idx.sources[sourceID] = l
	}
	l.refs++
	idx.sourceMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		idx.sourceMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(idx.sources, sourceID)
		}
		idx.sourceMu.Unlock()
	}
}

// IngestDirectory walks dir recursively and ingests each regular file whose extension
// is in allowedExts (all supported files when empty). Returns the number of files
// ingested and the first error encountered, if any.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string, category models.Category, subject string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	if len(allowedExts) == 0 {
		allowedExts = extract.SupportedExtensions()
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !extensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		_, skipped, ingestErr := idx.IngestFile(ctx, path, category, subject, allowedExts)
		if ingestErr != nil {
			return fmt.Errorf("%s: %w", path, ingestErr)
		}
		if !skipped {
			n++
		}
		return nil
	})
	return n, err
}

// RebuildPassageIndex indexes every chunk already in the registry for keyword search.
// Used after restoring the corpus from its snapshot.
func (idx *Indexer) RebuildPassageIndex(ctx context.Context) (int, error) {
	if idx.passages == nil {
		return 0, nil
	}
	total := 0
	for _, c := range idx.registry.Categories() {
		p, err := idx.registry.Partition(c)
		if err != nil {
			return total, err
		}
		var chunks []models.Chunk
		p.Read(func(_ *vector.FlatIndex, store *corpus.Store) {
			chunks = store.All()
		})
		if err := idx.passages.Index(ctx, c, chunks); err != nil {
			return total, fmt.Errorf("rebuild passages for %s: %w", c, err)
		}
		total += len(chunks)
	}
	return total, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
