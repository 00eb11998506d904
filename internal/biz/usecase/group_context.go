package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
)

// DefaultSummaryPrompt is the instruction used to summarise a chat transcript
const DefaultSummaryPrompt = `You summarize group chat conversations.
Summarize the conversation below in at most 200 words.
Cover the main topics, open questions, and any decisions. Use the participants' names.
Reply with the summary text only.`

// GroupContextConfig contains group context configuration
type GroupContextConfig struct {
	WindowSize          int
	SimilarityThreshold float64

	SummaryMinMessages   int           // Messages needed before the first summary is suggested
	SummaryRefreshDelta  int           // New messages since the last summary that warrant a new one
	SummaryFreshFor      time.Duration // A summary younger than this...
	SummaryFreshDelta    int           // ...and with fewer new messages than this is reused
	SummaryPrompt        string
	SummaryTimeout       time.Duration
	SummaryTranscriptMax int // Most recent messages included in the summary prompt, 0 = all
}

// DefaultGroupContextConfig returns default group context configuration
func DefaultGroupContextConfig() GroupContextConfig {
	return GroupContextConfig{
		WindowSize:          10,
		SimilarityThreshold: 0.8,
		SummaryMinMessages:  50,
		SummaryRefreshDelta: 50,
		SummaryFreshFor:     1 * time.Hour,
		SummaryFreshDelta:   25,
		SummaryPrompt:       DefaultSummaryPrompt,
		SummaryTimeout:      30 * time.Second,
	}
}

// GroupContextStore remembers recent classified questions per chat and
// decides when a conversation summary is worth producing
type GroupContextStore struct {
	clock  clock.Clock
	config GroupContextConfig
	oracle repo.OracleRepo

	mu      sync.RWMutex
	windows map[string]*domain.GroupWindow
}

// NewGroupContextStore creates a new group context store. oracle may be nil,
// in which case BuildSummary fails with ErrNoOracle.
func NewGroupContextStore(clk clock.Clock, config GroupContextConfig, oracle repo.OracleRepo) *GroupContextStore {
	defaults := DefaultGroupContextConfig()
	if config.WindowSize <= 0 {
		config.WindowSize = defaults.WindowSize
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if config.SummaryMinMessages <= 0 {
		config.SummaryMinMessages = defaults.SummaryMinMessages
	}
	if config.SummaryRefreshDelta <= 0 {
		config.SummaryRefreshDelta = defaults.SummaryRefreshDelta
	}
	if config.SummaryFreshFor <= 0 {
		config.SummaryFreshFor = defaults.SummaryFreshFor
	}
	if config.SummaryFreshDelta <= 0 {
		config.SummaryFreshDelta = defaults.SummaryFreshDelta
	}
	if config.SummaryPrompt == "" {
		config.SummaryPrompt = defaults.SummaryPrompt
	}
	if config.SummaryTimeout <= 0 {
		config.SummaryTimeout = defaults.SummaryTimeout
	}
	return &GroupContextStore{
		clock:   clk,
		config:  config,
		oracle:  oracle,
		windows: make(map[string]*domain.GroupWindow),
	}
}

func (s *GroupContextStore) windowLocked(chatID string) *domain.GroupWindow {
	w, ok := s.windows[chatID]
	if !ok {
		w = &domain.GroupWindow{}
		s.windows[chatID] = w
	}
	return w
}

// RecordQuestion pushes a classified question to the front of chatID's window
func (s *GroupContextStore) RecordQuestion(chatID, text string, result domain.ClassificationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	w := s.windowLocked(chatID)

	entries := make([]domain.WindowEntry, 0, s.config.WindowSize)
	entries = append(entries, domain.WindowEntry{Text: text, Result: result.Clone(), SeenAt: now})
	for _, e := range w.Entries {
		if len(entries) == s.config.WindowSize {
			break
		}
		entries = append(entries, e)
	}
	w.Entries = entries
	w.LastActivity = now
}

// FindSimilar returns the result of the best-matching window entry whose
// similarity to text reaches the threshold
func (s *GroupContextStore) FindSimilar(chatID, text string) (domain.ClassificationResult, float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.windows[chatID]
	if !ok {
		return domain.ClassificationResult{}, 0, false
	}

	best := -1
	bestScore := 0.0
	for i, e := range w.Entries {
		if score := DiceSimilarity(text, e.Text); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < s.config.SimilarityThreshold {
		return domain.ClassificationResult{}, bestScore, false
	}
	return w.Entries[best].Result.Clone(), bestScore, true
}

// Window returns a copy of chatID's entries, newest first
func (s *GroupContextStore) Window(chatID string) []domain.WindowEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.windows[chatID]
	if !ok {
		return nil
	}
	out := make([]domain.WindowEntry, len(w.Entries))
	copy(out, w.Entries)
	return out
}

// Summary returns chatID's last built summary
func (s *GroupContextStore) Summary(chatID string) (domain.ChatSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.windows[chatID]
	if !ok || w.Summary == nil {
		return domain.ChatSummary{}, false
	}
	return *w.Summary, true
}

// summaryFresh reports whether sum can be reused at messageCount
func (s *GroupContextStore) summaryFresh(sum *domain.ChatSummary, messageCount int, now time.Time) bool {
	delta := messageCount - sum.MessageCountAtBuild
	if delta < 0 {
		delta = -delta
	}
	return now.Sub(sum.BuiltAt) < s.config.SummaryFreshFor && delta < s.config.SummaryFreshDelta
}

// ShouldSuggestSummary reports whether the chat has grown enough to be worth summarising
func (s *GroupContextStore) ShouldSuggestSummary(chatID string, messageCount int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum *domain.ChatSummary
	if w, ok := s.windows[chatID]; ok {
		sum = w.Summary
	}

	if sum == nil {
		return messageCount >= s.config.SummaryMinMessages
	}
	if s.summaryFresh(sum, messageCount, s.clock.Now()) {
		return false
	}
	return messageCount-sum.MessageCountAtBuild >= s.config.SummaryRefreshDelta
}

// BuildSummary summarises messages with one oracle call, unless a fresh
// summary already exists and force is false
func (s *GroupContextStore) BuildSummary(ctx context.Context, chatID string, messages []domain.Message, force bool) (string, error) {
	now := s.clock.Now()

	if !force {
		s.mu.RLock()
		var existing *domain.ChatSummary
		if w, ok := s.windows[chatID]; ok && w.Summary != nil && s.summaryFresh(w.Summary, len(messages), now) {
			existing = w.Summary
		}
		s.mu.RUnlock()
		if existing != nil {
			log.Debug().Str("component", "group").Str("chat_id", chatID).Msg("reusing fresh summary")
			return existing.Text, nil
		}
	}

	if s.oracle == nil {
		return "", ErrNoOracle
	}
	if len(messages) == 0 {
		return "", ErrEmptyTranscript
	}

	transcript := messages
	if limit := s.config.SummaryTranscriptMax; limit > 0 && len(transcript) > limit {
		transcript = transcript[len(transcript)-limit:]
	}

	text, err := s.oracle.Invoke(ctx, s.config.SummaryPrompt, formatTranscript(transcript), repo.InvokeOptions{
		Timeout:   s.config.SummaryTimeout,
		MaxTokens: 500,
	})
	if err != nil {
		oracleCallsTotal.WithLabelValues("summary", "error").Inc()
		return "", fmt.Errorf("summarize chat %s: %w", chatID, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		oracleCallsTotal.WithLabelValues("summary", "empty").Inc()
		return "", ErrEmptyResponse
	}
	oracleCallsTotal.WithLabelValues("summary", "ok").Inc()

	s.mu.Lock()
	w := s.windowLocked(chatID)
	w.Summary = &domain.ChatSummary{
		Text:                text,
		BuiltAt:             s.clock.Now(),
		MessageCountAtBuild: len(messages),
	}
	s.mu.Unlock()

	log.Info().
		Str("component", "group").
		Str("chat_id", chatID).
		Int("messages", len(messages)).
		Msg("summary built")
	return text, nil
}

// formatTranscript renders messages one per line as "[speaker]: content"
func formatTranscript(messages []domain.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s]: %s\n", m.Speaker(), content))
	}
	return sb.String()
}
