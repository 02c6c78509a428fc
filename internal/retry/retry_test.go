package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		BackoffFactor:   2.0,
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{fmt.Errorf("connection refused"), true},
		{fmt.Errorf("i/o timeout"), true},
		{fmt.Errorf("too many requests"), true},
		{fmt.Errorf("execution reverted: Paused"), false},
		{fmt.Errorf("invalid argument"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsRetryableError(tt.err), "err=%v", tt.err)
	}
}

func TestExecute_SucceedsAfterRetry(t *testing.T) {
	retrier := NewRetrier(fastConfig(), testLogger())

	attempts := 0
	err := retrier.Execute(context.Background(), "test-op", func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("connection refused")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecute_NonRetryableFailsFast(t *testing.T) {
	retrier := NewRetrier(fastConfig(), testLogger())

	// 不可重试的错误立即返回，不消耗重试次数
	attempts := 0
	err := retrier.Execute(context.Background(), "test-op", func() error {
		attempts++
		return fmt.Errorf("execution reverted: Paused")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestExecute_ExhaustsAttempts(t *testing.T) {
	retrier := NewRetrier(fastConfig(), testLogger())

	attempts := 0
	err := retrier.Execute(context.Background(), "test-op", func() error {
		attempts++
		return fmt.Errorf("connection refused")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecute_ContextCancelled(t *testing.T) {
	retrier := NewRetrier(fastConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retrier.Execute(ctx, "test-op", func() error { return nil })
	assert.Equal(t, context.Canceled, err)
}
