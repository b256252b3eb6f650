package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
)

// isRetryableError reports whether a candle fetch is worth retrying:
// transient network faults, rate limiting, and server-side errors.
// Everything else (bad symbol, bad interval, auth) fails fast.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary failure") {
		return true
	}

	// Rate limiting
	if strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") {
		return true
	}

	// Server errors (5xx)
	if strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504") ||
		strings.Contains(msg, "internal server error") ||
		strings.Contains(msg, "service unavailable") {
		return true
	}

	return false
}

// retryWithBackoff executes operation with exponential backoff:
// baseRetryDelay * 2^attempt between tries, at most maxRetries retries.
// Non-retryable errors and context cancellation abort immediately.
func retryWithBackoff(ctx context.Context, operationName string, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				log.Info().
					Str("operation", operationName).
					Int("attempts", attempt+1).
					Msg("operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !isRetryableError(err) {
			log.Debug().
				Err(err).
				Str("operation", operationName).
				Msg("error is not retryable")
			return err
		}

		if attempt == maxRetries {
			break
		}

		delay := baseRetryDelay * time.Duration(1<<uint(attempt))
		log.Warn().
			Err(err).
			Str("operation", operationName).
			Int("attempt", attempt+1).
			Int("max_attempts", maxRetries+1).
			Dur("retry_after", delay).
			Msg("retrying operation after error")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
