package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chopstar001/chat-intent-bridge/internal/clock"
)

func newTestTracker() (*ConversationTracker, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewConversationTracker(clk, DefaultConversationTimeout), clk
}

func TestConversationTracker_UnknownChat(t *testing.T) {
	tr, _ := newTestTracker()

	state := tr.Get("missing")
	assert.False(t, state.IsActive)
	assert.Zero(t, state.MessageCount)
	assert.Empty(t, state.RecentParticipants)
	assert.False(t, tr.IsActive("missing"))
	assert.Equal(t, -1, tr.Signals("missing").SecondsSinceBotReply)
}

func TestConversationTracker_BotReplyActivates(t *testing.T) {
	tr, clk := newTestTracker()

	tr.Update("chat", "u1", false, true)
	assert.False(t, tr.IsActive("chat"))

	tr.Update("chat", "bot", true, false)
	assert.True(t, tr.IsActive("chat"))

	state := tr.Get("chat")
	assert.Equal(t, 2, state.MessageCount)
	assert.Equal(t, 1, state.MentionCount)
	assert.Equal(t, clk.Now(), state.LastBotReplyAt)
	assert.Equal(t, []string{"bot", "u1"}, state.RecentParticipants)
}

func TestConversationTracker_GoesStaleWithoutSweep(t *testing.T) {
	tr, clk := newTestTracker()
	tr.Update("chat", "bot", true, false)

	clk.Advance(5 * time.Minute)
	assert.True(t, tr.IsActive("chat"))

	clk.Advance(time.Second)
	assert.False(t, tr.IsActive("chat"))
	assert.False(t, tr.Get("chat").IsActive)
}

func TestConversationTracker_Sweep(t *testing.T) {
	tr, clk := newTestTracker()
	tr.Update("old", "bot", true, false)
	clk.Advance(4 * time.Minute)
	tr.Update("fresh", "bot", true, false)

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, tr.Sweep())
	assert.False(t, tr.IsActive("old"))
	assert.True(t, tr.IsActive("fresh"))
	assert.Equal(t, 0, tr.Sweep())
}

func TestConversationTracker_RecentParticipantsBounded(t *testing.T) {
	tr, _ := newTestTracker()
	for _, u := range []string{"a", "b", "c", "d", "e", "f", "b"} {
		tr.Update("chat", u, false, false)
	}

	state := tr.Get("chat")
	assert.Equal(t, []string{"b", "f", "e", "d", "c"}, state.RecentParticipants)

	// Snapshot does not alias internal state
	state.RecentParticipants[0] = "x"
	assert.Equal(t, "b", tr.Get("chat").RecentParticipants[0])
}

func TestConversationTracker_Signals(t *testing.T) {
	tr, clk := newTestTracker()
	tr.Update("chat", "u1", false, true)
	tr.Update("chat", "bot", true, false)
	clk.Advance(90 * time.Second)

	sig := tr.Signals("chat")
	assert.True(t, sig.Active)
	assert.Equal(t, 90, sig.SecondsSinceBotReply)
	assert.Equal(t, 2, sig.MessageCount)
	assert.Equal(t, 1, sig.MentionCount)
}

func TestConversationTracker_Reset(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Update("chat", "bot", true, false)
	tr.Reset("chat")

	assert.False(t, tr.IsActive("chat"))
	assert.Equal(t, 0, tr.Len())
}
