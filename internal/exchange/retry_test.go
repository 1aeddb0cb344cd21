package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"timeout", errors.New("request timeout exceeded"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"binance too many requests", errors.New("<APIError> code=-1003, msg=Too many requests"), true},
		{"binance internal error", errors.New("<APIError> code=-1001, msg=Internal error"), true},
		{"binance recv window", errors.New("<APIError> code=-1021, msg=Timestamp outside recvWindow"), true},
		{"invalid symbol", errors.New("<APIError> code=-1121, msg=Invalid symbol"), false},
		{"generic error", errors.New("something broke"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	config := RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		BackoffFactor:  2.0,
	}

	attempts := 0
	err := WithRetry(context.Background(), config, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryAbortsOnPermanentError(t *testing.T) {
	config := DefaultRetryConfig()

	attempts := 0
	err := WithRetry(context.Background(), config, func() error {
		attempts++
		return errors.New("invalid symbol")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	config := RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}

	attempts := 0
	err := WithRetry(context.Background(), config, func() error {
		attempts++
		return errors.New("timeout")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestWithRetryRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, DefaultRetryConfig(), func() error {
		t.Fatal("operation should not run with cancelled context")
		return nil
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
