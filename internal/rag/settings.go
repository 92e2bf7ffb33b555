// Package rag answers study questions and generates practice questions from the
// retrieved study material of one exam category.
package rag

import (
	"context"

	"github.com/hyperjump/manabu/internal/config"
	"github.com/hyperjump/manabu/internal/models"
)

// Retriever finds the chunks most relevant to a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, category models.Category, topK int) []models.RetrievalResult
}

// Settings are the per-call generation parameters.
type Settings struct {
	TopK                int
	QuestionTopK        int
	PreviewLength       int
	AnswerMaxTokens     int
	AnswerTemperature   float64
	VerifyMaxTokens     int
	QuestionMaxTokens   int
	QuestionTemperature float64
}

// SettingsFrom reads Settings from the loaded configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		TopK:                cfg.RAG.TopK,
		QuestionTopK:        cfg.RAG.QuestionTopK,
		PreviewLength:       cfg.RAG.PreviewLength,
		AnswerMaxTokens:     cfg.Completion.AnswerMaxTokens,
		AnswerTemperature:   cfg.Completion.AnswerTemperature,
		VerifyMaxTokens:     cfg.Completion.VerifyMaxTokens,
		QuestionMaxTokens:   cfg.Completion.QuestionMaxTokens,
		QuestionTemperature: cfg.Completion.QuestionTemperature,
	}
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return SettingsFrom(config.Default())
}
