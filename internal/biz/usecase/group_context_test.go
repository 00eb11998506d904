package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
)

func newTestGroupStore(oracle *mockOracle) (*GroupContextStore, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	if oracle == nil {
		return NewGroupContextStore(clk, DefaultGroupContextConfig(), nil), clk
	}
	return NewGroupContextStore(clk, DefaultGroupContextConfig(), oracle), clk
}

func transcriptOf(n int) []domain.Message {
	msgs := make([]domain.Message, n)
	for i := range msgs {
		msgs[i] = domain.Message{ID: fmt.Sprint(i), Role: domain.RoleUser, SenderName: "alice", Content: fmt.Sprintf("message %d", i)}
	}
	return msgs
}

func TestGroupContext_WindowBoundedNewestFirst(t *testing.T) {
	s, _ := newTestGroupStore(nil)
	for i := 0; i < 12; i++ {
		s.RecordQuestion("chat", fmt.Sprintf("question %d", i), sampleResult(fmt.Sprint(i)))
	}

	w := s.Window("chat")
	require.Len(t, w, 10)
	assert.Equal(t, "question 11", w[0].Text)
	assert.Equal(t, "question 2", w[9].Text)
	assert.Nil(t, s.Window("other"))
}

func TestGroupContext_FindSimilar(t *testing.T) {
	s, _ := newTestGroupStore(nil)
	s.RecordQuestion("chat", "how do we deploy the staging cluster", sampleResult("deploy"))
	s.RecordQuestion("chat", "where is the lunch menu", sampleResult("lunch"))

	got, score, ok := s.FindSimilar("chat", "How do we DEPLOY the staging cluster?")
	require.True(t, ok)
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.Equal(t, "deploy", got.Rationale)

	_, _, ok = s.FindSimilar("chat", "deploy something unrelated entirely")
	assert.False(t, ok)

	_, _, ok = s.FindSimilar("other", "how do we deploy the staging cluster")
	assert.False(t, ok, "windows are per chat")
}

func TestGroupContext_ShouldSuggestSummary_NoSummary(t *testing.T) {
	s, _ := newTestGroupStore(nil)
	assert.False(t, s.ShouldSuggestSummary("chat", 49))
	assert.True(t, s.ShouldSuggestSummary("chat", 50))
}

func TestGroupContext_SummaryLifecycle(t *testing.T) {
	oracle := &mockOracle{replies: []string{"  Alice discussed messages.  "}}
	s, clk := newTestGroupStore(oracle)
	ctx := context.Background()

	text, err := s.BuildSummary(ctx, "chat", transcriptOf(60), false)
	require.NoError(t, err)
	assert.Equal(t, "Alice discussed messages.", text)
	require.Equal(t, 1, oracle.callCount())
	assert.Contains(t, oracle.call(0).System, "200 words")
	assert.Contains(t, oracle.call(0).User, "[alice]: message 59")

	// Immediately after building, no suggestion for the same count
	assert.False(t, s.ShouldSuggestSummary("chat", 60))
	// Fresh summary is reused without a model call
	text, err = s.BuildSummary(ctx, "chat", transcriptOf(70), false)
	require.NoError(t, err)
	assert.Equal(t, "Alice discussed messages.", text)
	assert.Equal(t, 1, oracle.callCount())

	// Growth of 50 beyond the baseline triggers a suggestion
	assert.False(t, s.ShouldSuggestSummary("chat", 109))
	assert.True(t, s.ShouldSuggestSummary("chat", 110))

	// Age alone does not, growth still has to reach the refresh delta
	clk.Advance(2 * time.Hour)
	assert.False(t, s.ShouldSuggestSummary("chat", 70))

	sum, ok := s.Summary("chat")
	require.True(t, ok)
	assert.Equal(t, 60, sum.MessageCountAtBuild)
}

func TestGroupContext_BuildSummaryForce(t *testing.T) {
	oracle := &mockOracle{replies: []string{"first", "second"}}
	s, _ := newTestGroupStore(oracle)
	ctx := context.Background()

	_, err := s.BuildSummary(ctx, "chat", transcriptOf(10), false)
	require.NoError(t, err)
	text, err := s.BuildSummary(ctx, "chat", transcriptOf(10), true)
	require.NoError(t, err)
	assert.Equal(t, "second", text)
	assert.Equal(t, 2, oracle.callCount())
}

func TestGroupContext_BuildSummaryStaleByDelta(t *testing.T) {
	oracle := &mockOracle{replies: []string{"first", "second"}}
	s, _ := newTestGroupStore(oracle)
	ctx := context.Background()

	_, err := s.BuildSummary(ctx, "chat", transcriptOf(10), false)
	require.NoError(t, err)
	text, err := s.BuildSummary(ctx, "chat", transcriptOf(35), false)
	require.NoError(t, err)
	assert.Equal(t, "second", text)
}

func TestGroupContext_BuildSummaryErrors(t *testing.T) {
	ctx := context.Background()

	s, _ := newTestGroupStore(nil)
	_, err := s.BuildSummary(ctx, "chat", transcriptOf(5), false)
	assert.ErrorIs(t, err, ErrNoOracle)

	oracle := &mockOracle{errs: []error{errors.New("timeout")}}
	s, _ = newTestGroupStore(oracle)
	_, err = s.BuildSummary(ctx, "chat", transcriptOf(5), false)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "timeout"))
	_, ok := s.Summary("chat")
	assert.False(t, ok)

	_, err = s.BuildSummary(ctx, "chat", nil, false)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}
