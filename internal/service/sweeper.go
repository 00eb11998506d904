package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chopstar001/chat-intent-bridge/internal/biz"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
)

// SweeperConfig configures background maintenance
type SweeperConfig struct {
	Interval            time.Duration // Conversation and cache sweep cadence
	TranscriptRetention time.Duration // Zero keeps the transcript forever
}

// DefaultSweeperConfig returns default sweeper configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:            10 * time.Minute,
		TranscriptRetention: 7 * 24 * time.Hour,
	}
}

// Sweeper periodically deactivates stale conversations, trims the
// analysis cache and prunes the transcript
type Sweeper struct {
	uc         *biz.Usecases
	transcript repo.TranscriptRepo
	clock      clock.Clock
	config     SweeperConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SweepReport is the outcome of one sweep
type SweepReport struct {
	Deactivated       int
	CacheEvicted      int
	TranscriptDeleted int64
}

// NewSweeper creates a new sweeper. transcript may be nil.
func NewSweeper(uc *biz.Usecases, transcript repo.TranscriptRepo, clk clock.Clock, config SweeperConfig) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	return &Sweeper{
		uc:         uc,
		transcript: transcript,
		clock:      clk,
		config:     config,
	}
}

// Start runs the sweep loop until ctx is done or Stop is called
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop(ctx)

	log.Info().Str("component", "sweeper").Dur("interval", s.config.Interval).Msg("started")
}

// Stop stops the sweep loop and waits for it to exit
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep
func (s *Sweeper) RunOnce(ctx context.Context) SweepReport {
	var report SweepReport
	report.Deactivated = s.uc.Tracker.Sweep()
	report.CacheEvicted = s.uc.Cache.Cleanup(false)

	if s.transcript != nil && s.config.TranscriptRetention > 0 {
		before := s.clock.Now().Add(-s.config.TranscriptRetention)
		deleted, err := s.transcript.CleanupOld(ctx, before)
		if err != nil {
			log.Warn().Str("component", "sweeper").Err(err).Msg("transcript cleanup failed")
		}
		report.TranscriptDeleted = deleted
	}

	if report.Deactivated > 0 || report.CacheEvicted > 0 || report.TranscriptDeleted > 0 {
		log.Debug().
			Str("component", "sweeper").
			Int("deactivated", report.Deactivated).
			Int("cache_evicted", report.CacheEvicted).
			Int64("transcript_deleted", report.TranscriptDeleted).
			Msg("sweep complete")
	}
	return report
}
