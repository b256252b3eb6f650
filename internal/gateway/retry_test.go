package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("request timeout"), true},
		{"rate limit 429", errors.New("HTTP 429 too many requests"), true},
		{"server error", errors.New("503 service unavailable"), true},
		{"bad symbol", errors.New("invalid symbol"), false},
		{"auth", errors.New("API-key format invalid"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableError(tt.err))
		})
	}
}

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), "test", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_NonRetryableAbortsImmediately(t *testing.T) {
	attempts := 0
	wantErr := errors.New("invalid symbol")
	err := retryWithBackoff(context.Background(), "test", func() error {
		attempts++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), "test", func() error {
		attempts++
		return errors.New("request timeout")
	})
	require.Error(t, err)
	assert.Equal(t, maxRetries+1, attempts)
}

func TestRetryWithBackoff_ContextCancellationStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- retryWithBackoff(ctx, "test", func() error {
			attempts++
			if attempts == 1 {
				cancel()
			}
			return errors.New("rate limit")
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	case <-time.After(time.Second):
		t.Fatal("retry did not observe context cancellation")
	}
}
