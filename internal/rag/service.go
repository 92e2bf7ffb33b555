package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/manabu/internal/corpus"
	"github.com/hyperjump/manabu/internal/indexer"
	"github.com/hyperjump/manabu/internal/keyword"
	"github.com/hyperjump/manabu/internal/llm"
	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/internal/storage"
	"github.com/hyperjump/manabu/pkg/utils"
	"go.uber.org/zap"
)

// Service is the facade the HTTP server and CLI call: ingestion, answering, question
// generation, statistics and passage search.
type Service struct {
	registry  *corpus.Registry
	indexer   *indexer.Indexer
	generator *Generator
	questions *QuestionGenerator
	log       storage.Storage
	passages  *keyword.PassageIndex
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = utils.OrNop(logger) }
}

// WithPassageIndex enables SearchPassages.
func WithPassageIndex(p *keyword.PassageIndex) Option {
	return func(s *Service) { s.passages = p }
}

// NewService wires the pipeline around one corpus registry.
func NewService(
	registry *corpus.Registry,
	ix *indexer.Indexer,
	retriever Retriever,
	completer llm.Completer,
	log storage.Storage,
	settings Settings,
	opts ...Option,
) *Service {
	s := &Service{registry: registry, indexer: ix, log: log, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	categories := registry.Categories()
	verifier := NewVerifier(completer, settings.VerifyMaxTokens, s.logger)
	s.generator = NewGenerator(retriever, completer, verifier, log, categories, settings, s.logger)
	s.questions = NewQuestionGenerator(retriever, completer, categories, settings, s.logger)
	return s
}

// Categories returns the configured exam categories.
func (s *Service) Categories() []models.Category {
	return s.registry.Categories()
}

// Indexer returns the ingestion pipeline, for file and directory ingestion.
func (s *Service) Indexer() *indexer.Indexer {
	return s.indexer
}

// Ingest chunks, embeds and appends one document.
func (s *Service) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	return s.indexer.Ingest(ctx, req)
}

// Answer returns a grounded, verified answer to a study question.
func (s *Service) Answer(ctx context.Context, req models.AnswerRequest) (*models.AnswerResult, error) {
	return s.generator.Answer(ctx, req)
}

// GenerateQuestions returns practice questions for a topic.
func (s *Service) GenerateQuestions(ctx context.Context, req models.QuestionRequest) ([]models.Question, error) {
	return s.questions.Generate(ctx, req)
}

// Stats summarises one category from the persistence log and the corpus.
func (s *Service) Stats(ctx context.Context, category models.Category) (*models.Stats, error) {
	category, err := models.ParseCategory(string(category), s.registry.Categories())
	if err != nil {
		return nil, err
	}
	p, err := s.registry.Partition(category)
	if err != nil {
		return nil, err
	}
	stats := &models.Stats{Category: category, IndexSize: p.Size()}
	if s.log == nil {
		return stats, nil
	}
	if stats.DocumentsProcessed, err = s.log.CountDocuments(ctx, category); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if stats.TotalQueries, err = s.log.CountInteractions(ctx, category); err != nil {
		return nil, fmt.Errorf("count interactions: %w", err)
	}
	avg, err := s.log.AverageConfidence(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("average confidence: %w", err)
	}
	stats.AverageConfidence = utils.Round(avg, 2)
	return stats, nil
}

// ListDocuments pages through the ingested document records of category.
func (s *Service) ListDocuments(ctx context.Context, category models.Category, offset, limit int) ([]*models.DocumentRecord, error) {
	category, err := models.ParseCategory(string(category), s.registry.Categories())
	if err != nil {
		return nil, err
	}
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: offset and limit must not be negative", models.ErrValidation)
	}
	if s.log == nil {
		return nil, nil
	}
	return s.log.ListDocuments(ctx, category, offset, limit)
}

// SearchPassages runs a keyword search over the passages of category.
func (s *Service) SearchPassages(ctx context.Context, category models.Category, query string, limit int, opts *keyword.SearchOptions) ([]models.PassageHit, error) {
	category, err := models.ParseCategory(string(category), s.registry.Categories())
	if err != nil {
		return nil, err
	}
	if s.passages == nil {
		return nil, fmt.Errorf("%w: passage search is not enabled", models.ErrValidation)
	}
	return s.passages.Search(ctx, category, query, limit, opts)
}

// Health describes corpus readiness per category.
type Health struct {
	Status       string                   `json:"status"`
	Timestamp    time.Time                `json:"timestamp"`
	IndicesReady map[models.Category]bool `json:"indices_ready"`
	IndexSizes   map[models.Category]int  `json:"index_sizes"`
	DesyncSkips  int64                    `json:"desync_skips"`
}

// Health reports which category indices hold material and how many search hits
// were skipped for lack of a corpus entry.
func (s *Service) Health() Health {
	h := Health{
		Status:       "healthy",
		Timestamp:    time.Now().UTC(),
		IndicesReady: make(map[models.Category]bool),
		IndexSizes:   make(map[models.Category]int),
		DesyncSkips:  s.registry.DesyncCount(),
	}
	for _, c := range s.registry.Categories() {
		p, err := s.registry.Partition(c)
		if err != nil {
			continue
		}
		n := p.Size()
		h.IndexSizes[c] = n
		h.IndicesReady[c] = n > 0
	}
	if h.DesyncSkips > 0 {
		h.Status = "degraded"
	}
	return h
}
