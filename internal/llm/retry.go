package llm

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/manabu/internal/models"
	"go.uber.org/zap"
)

const (
	baseRetryDelay = 200 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// RetryCompleter retries service failures with exponential backoff.
// Replies, whatever their content, are returned as-is.
type RetryCompleter struct {
	next       Completer
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// NewRetryCompleter wraps next. maxRetries of 0 disables retrying.
func NewRetryCompleter(next Completer, maxRetries int, logger *zap.Logger) *RetryCompleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryCompleter{next: next, maxRetries: maxRetries, baseDelay: baseRetryDelay, logger: logger}
}

// Complete calls the wrapped completer, retrying ErrService failures while ctx allows.
func (r *RetryCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(r.baseDelay, attempt-1)
			r.logger.Warn("Retrying completion",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", lastErr
			case <-timer.C:
			}
		}
		out, err := r.next.Complete(ctx, systemPrompt, userPrompt, maxTokens, temperature)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !errors.Is(err, models.ErrService) || ctx.Err() != nil {
			return "", err
		}
	}
	return "", lastErr
}

func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d > maxRetryDelay || d <= 0 {
		d = maxRetryDelay
	}
	return d
}
