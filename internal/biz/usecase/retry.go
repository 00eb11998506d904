package usecase

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig configures retry behavior with exponential backoff
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Delay before the second attempt; zero disables waiting
	MaxDelay    time.Duration // Upper bound on any single delay
	Multiplier  float64       // Exponential backoff multiplier
}

// DefaultRetryConfig returns the Stage-2 retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    8 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts  int
	LastError error
	Success   bool
}

// RetryWithBackoff runs operation until it succeeds, the attempt budget is
// spent, or ctx is done
func RetryWithBackoff(ctx context.Context, config RetryConfig, component string, operation func(attempt int) error) RetryResult {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	var result RetryResult
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		result.Attempts = attempt + 1

		err := operation(attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			return result
		}
		result.LastError = err

		if attempt == config.MaxAttempts-1 {
			break
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			return result
		}

		delay := backoffDelay(config, attempt)
		log.Debug().
			Str("component", component).
			Int("attempt", attempt+1).
			Int("max_attempts", config.MaxAttempts).
			Dur("delay", delay).
			Err(err).
			Msg("attempt failed, retrying")

		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			return result
		case <-timer.C:
		}
	}
	return result
}

// backoffDelay returns BaseDelay·Multiplier^attempt capped at MaxDelay
func backoffDelay(config RetryConfig, attempt int) time.Duration {
	if config.BaseDelay <= 0 {
		return 0
	}
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	delay := float64(config.BaseDelay) * math.Pow(multiplier, float64(attempt))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
