package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/manabu/internal/config"
	"github.com/hyperjump/manabu/internal/corpus"
	"github.com/hyperjump/manabu/internal/embedding"
	"github.com/hyperjump/manabu/internal/indexer"
	"github.com/hyperjump/manabu/internal/keyword"
	"github.com/hyperjump/manabu/internal/llm"
	"github.com/hyperjump/manabu/internal/rag"
	"github.com/hyperjump/manabu/internal/search"
	"github.com/hyperjump/manabu/internal/storage"
	"go.uber.org/zap"
)

// Components are the in-process pipeline pieces shared by the server and --local commands.
type Components struct {
	Storage  *storage.SQLiteStorage
	Embedder embedding.Embedder
	Registry *corpus.Registry
	Passages *keyword.PassageIndex
	Indexer  *indexer.Indexer
	Service  *rag.Service
}

// Close releases every component that was opened.
func (c *Components) Close() {
	if c.Passages != nil {
		_ = c.Passages.Close()
	}
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// initializeComponents opens storage, restores the corpus from its snapshot and wires the
// pipeline. The completion client is only built when withCompletion is set, so ingestion
// and statistics work without model credentials.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withCompletion bool) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if c.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if c.Embedder, err = embedding.New(cfg.Embedding); err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	snapshot, err := corpus.OpenBoltSnapshot(cfg.Storage.SnapshotPath)
	if err != nil {
		return nil, err
	}
	c.Registry, err = corpus.NewRegistry(cfg.RAG.CategoryList(), c.Embedder.Dimensions(),
		corpus.WithSnapshot(snapshot), corpus.WithLogger(logger))
	if err != nil {
		_ = snapshot.Close()
		return nil, fmt.Errorf("failed to initialize corpus: %w", err)
	}
	if _, err = c.Registry.Restore(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore corpus: %w", err)
	}

	if c.Passages, err = keyword.NewPassageIndex(""); err != nil {
		return nil, fmt.Errorf("failed to initialize passage index: %w", err)
	}
	splitter, err := indexer.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.Separators)
	if err != nil {
		return nil, err
	}
	c.Indexer = indexer.NewIndexer(c.Registry, c.Embedder, splitter, c.Storage,
		indexer.WithLogger(logger),
		indexer.WithPassageIndex(c.Passages),
		indexer.WithEmbedTimeout(cfg.Completion.Timeout()),
	)
	n, err := c.Indexer.RebuildPassageIndex(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("Passage index rebuilt", zap.Int("passages", n))

	var completer llm.Completer
	if withCompletion {
		if completer, err = llm.New(cfg.Completion, logger); err != nil {
			return nil, fmt.Errorf("failed to initialize completion client: %w", err)
		}
	}
	retriever := search.NewRetriever(c.Registry, c.Embedder,
		search.WithLogger(logger),
		search.WithTimeout(cfg.Completion.Timeout()),
	)
	c.Service = rag.NewService(c.Registry, c.Indexer, retriever, completer, c.Storage, rag.SettingsFrom(cfg),
		rag.WithLogger(logger),
		rag.WithPassageIndex(c.Passages),
	)
	return c, nil
}
