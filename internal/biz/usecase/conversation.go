package usecase

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
)

// DefaultConversationTimeout is how long a chat stays active after the assistant replies
const DefaultConversationTimeout = 5 * time.Minute

// ConversationTracker keeps per-chat engagement state
type ConversationTracker struct {
	clock   clock.Clock
	timeout time.Duration

	mu     sync.RWMutex
	states map[string]*domain.ConversationState
}

// NewConversationTracker creates a new conversation tracker
func NewConversationTracker(clk clock.Clock, timeout time.Duration) *ConversationTracker {
	if timeout <= 0 {
		timeout = DefaultConversationTimeout
	}
	return &ConversationTracker{
		clock:   clk,
		timeout: timeout,
		states:  make(map[string]*domain.ConversationState),
	}
}

// Update records one message in chatID. A bot reply (re)activates the chat.
func (t *ConversationTracker) Update(chatID, userID string, isBotReply, mentioned bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[chatID]
	if !ok {
		state = &domain.ConversationState{}
		t.states[chatID] = state
	}

	now := t.clock.Now()
	state.MessageCount++
	if mentioned {
		state.MentionCount++
	}
	if isBotReply {
		state.IsActive = true
		state.LastBotReplyAt = now
	}
	state.Touch(userID)
	state.IsActive = state.ActiveAt(now, t.timeout)
}

// Get returns a snapshot of chatID's state, or the zero state if unknown
func (t *ConversationTracker) Get(chatID string) domain.ConversationState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[chatID]
	if !ok {
		return domain.ConversationState{}
	}
	snapshot := state.Clone()
	// Report staleness even before the next sweep runs
	snapshot.IsActive = state.ActiveAt(t.clock.Now(), t.timeout)
	return snapshot
}

// IsActive reports whether the assistant replied in chatID within the timeout
func (t *ConversationTracker) IsActive(chatID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[chatID]
	if !ok {
		return false
	}
	return state.ActiveAt(t.clock.Now(), t.timeout)
}

// Signals returns the engagement summary used in classifier prompts
func (t *ConversationTracker) Signals(chatID string) domain.ConversationSignals {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[chatID]
	if !ok {
		return domain.ConversationSignals{SecondsSinceBotReply: -1}
	}

	now := t.clock.Now()
	since := -1
	if !state.LastBotReplyAt.IsZero() {
		since = int(now.Sub(state.LastBotReplyAt) / time.Second)
	}
	return domain.ConversationSignals{
		Active:               state.ActiveAt(now, t.timeout),
		SecondsSinceBotReply: since,
		MessageCount:         state.MessageCount,
		MentionCount:         state.MentionCount,
	}
}

// Sweep marks every stale chat inactive and returns how many were flipped
func (t *ConversationTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	flipped := 0
	for _, state := range t.states {
		if state.IsActive && !state.ActiveAt(now, t.timeout) {
			state.IsActive = false
			flipped++
		}
	}
	if flipped > 0 {
		log.Debug().Str("component", "tracker").Int("deactivated", flipped).Msg("conversation sweep")
	}
	return flipped
}

// Reset forgets chatID entirely
func (t *ConversationTracker) Reset(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, chatID)
}

// Len returns the number of tracked chats
func (t *ConversationTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}
