package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/manabu/internal/llm"
	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/internal/storage"
	"github.com/hyperjump/manabu/pkg/utils"
	"go.uber.org/zap"
)

// Generator composes grounded answers from retrieved study material.
type Generator struct {
	retriever  Retriever
	completer  llm.Completer
	verifier   *Verifier
	log        storage.Storage
	categories []models.Category
	settings   Settings
	logger     *zap.Logger
}

// NewGenerator creates a Generator. log may be nil, in which case interactions are not recorded.
func NewGenerator(
	retriever Retriever,
	completer llm.Completer,
	verifier *Verifier,
	log storage.Storage,
	categories []models.Category,
	settings Settings,
	logger *zap.Logger,
) *Generator {
	return &Generator{
		retriever:  retriever,
		completer:  completer,
		verifier:   verifier,
		log:        log,
		categories: categories,
		settings:   settings,
		logger:     utils.OrNop(logger),
	}
}

// Answer retrieves study material for req, asks the completion service for an answer
// grounded in it and verifies the answer against the same material.
//
// Cancellation is checked before the completion call is issued. Once issued, the call
// runs to completion (or its timeout) and its cost is incurred even if the caller has
// gone away.
func (g *Generator) Answer(ctx context.Context, req models.AnswerRequest) (*models.AnswerResult, error) {
	start := time.Now()
	if err := req.Validate(g.categories); err != nil {
		return nil, err
	}

	results := g.retriever.Retrieve(ctx, req.Query, req.Category, g.settings.TopK)
	if len(results) == 0 {
		return nil, fmt.Errorf("%w for %s", models.ErrNotFound, req.Category)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	answer, err := g.completer.Complete(ctx,
		answerSystemPrompt(req.Category),
		answerUserPrompt(buildContext(results), req.Query, req.Category),
		g.settings.AnswerMaxTokens,
		g.settings.AnswerTemperature,
	)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.RelevanceScore
	}
	confidence := utils.Mean(scores)
	verified := g.verifier.Verify(ctx, req.Query, answer, results)

	g.record(ctx, &models.Interaction{
		Query:                 req.Query,
		Answer:                answer,
		Category:              req.Category,
		Confidence:            confidence,
		HallucinationDetected: !verified,
	})

	return &models.AnswerResult{
		Answer:         answer,
		Confidence:     confidence,
		Sources:        sources(results, g.settings.PreviewLength),
		ProcessingTime: time.Since(start).Milliseconds(),
		Verified:       verified,
	}, nil
}

func (g *Generator) record(ctx context.Context, in *models.Interaction) {
	if g.log == nil {
		return
	}
	if err := g.log.RecordInteraction(context.WithoutCancel(ctx), in); err != nil {
		g.logger.Error("Failed to record interaction",
			zap.String("category", string(in.Category)),
			zap.Error(err))
	}
}

func sources(results []models.RetrievalResult, previewLen int) []models.Source {
	out := make([]models.Source, len(results))
	for i, r := range results {
		out[i] = models.Source{
			Preview:        preview(r.Chunk.Content, previewLen),
			Filename:       r.Chunk.Filename,
			Subject:        r.Chunk.Subject,
			RelevanceScore: r.RelevanceScore,
		}
	}
	return out
}

// preview cuts content to previewLen runes and always ends it with "...".
func preview(content string, previewLen int) string {
	if runes := []rune(content); previewLen > 0 && len(runes) > previewLen {
		content = string(runes[:previewLen])
	}
	return content + "..."
}
