package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 1*time.Second, backoffDelay(cfg, 0))
	assert.Equal(t, 2*time.Second, backoffDelay(cfg, 1))
	assert.Equal(t, 4*time.Second, backoffDelay(cfg, 2))
	assert.Equal(t, 8*time.Second, backoffDelay(cfg, 3))
	assert.Equal(t, 8*time.Second, backoffDelay(cfg, 6), "capped")

	cfg.BaseDelay = 0
	assert.Zero(t, backoffDelay(cfg, 2))
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.BaseDelay = 0

	calls := 0
	res := RetryWithBackoff(context.Background(), cfg, "test", func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, res.LastError)
}

func TestRetryWithBackoff_ExhaustsBudget(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.BaseDelay = 0
	boom := errors.New("boom")

	res := RetryWithBackoff(context.Background(), cfg, "test", func(int) error { return boom })
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.ErrorIs(t, res.LastError, boom)
}

func TestRetryWithBackoff_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := DefaultRetryConfig()

	res := RetryWithBackoff(ctx, cfg, "test", func(int) error {
		cancel()
		return errors.New("fail")
	})
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.ErrorIs(t, res.LastError, context.Canceled)
}
