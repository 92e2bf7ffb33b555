package rag

import (
	"context"
	"strings"

	"github.com/hyperjump/manabu/internal/llm"
	"github.com/hyperjump/manabu/internal/models"
	"go.uber.org/zap"
)

// Verifier asks the completion service whether an answer is supported by its sources.
// It fails closed: anything other than an exact VERIFIED reply counts as unsupported.
type Verifier struct {
	completer llm.Completer
	maxTokens int
	logger    *zap.Logger
}

// NewVerifier creates a verifier whose checks use at most maxTokens of output.
func NewVerifier(completer llm.Completer, maxTokens int, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{completer: completer, maxTokens: maxTokens, logger: logger}
}

// Verify reports whether answer is grounded in results. Errors, empty or unexpected
// replies and cancellation all return false.
func (v *Verifier) Verify(ctx context.Context, query, answer string, results []models.RetrievalResult) bool {
	if err := ctx.Err(); err != nil {
		v.logger.Warn("Verification skipped", zap.Error(err))
		return false
	}
	reply, err := v.completer.Complete(ctx, verifySystemPrompt, verifyUserPrompt(results, query, answer), v.maxTokens, 0)
	if err != nil {
		v.logger.Warn("Verification failed, treating answer as unverified", zap.Error(err))
		return false
	}
	switch verdict := strings.TrimSpace(reply); verdict {
	case verdictVerified:
		return true
	case verdictHallucination:
		v.logger.Info("Answer flagged as unsupported by its sources")
		return false
	default:
		v.logger.Warn("Unexpected verification reply, treating answer as unverified",
			zap.Int("reply_length", len(verdict)))
		return false
	}
}
