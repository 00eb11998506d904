package usecase

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
)

type messageSink struct {
	mu   sync.Mutex
	msgs []domain.LogicalMessage
}

func (s *messageSink) handle(msg domain.LogicalMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *messageSink) all() []domain.LogicalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LogicalMessage(nil), s.msgs...)
}

func newTestCoalescer() (*Coalescer, *clock.Fake, *messageSink) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	sink := &messageSink{}
	return NewCoalescer(clk, DefaultCoalescerConfig(), sink.handle), clk, sink
}

func TestCoalescer_MergesFragmentsAfterSettle(t *testing.T) {
	c, clk, sink := newTestCoalescer()

	c.Submit("chat", "u1", "so I was thinking...", false)
	clk.Advance(400 * time.Millisecond)
	c.Submit("chat", "u1", "...we could ship friday", false)
	clk.Advance(400 * time.Millisecond)
	c.Submit("chat", "u1", "thoughts?", false)

	// Settle timer was re-armed by each fragment
	clk.Advance(999 * time.Millisecond)
	assert.Empty(t, sink.all())

	clk.Advance(time.Millisecond)
	msgs := sink.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "so I was thinking\n\nwe could ship friday\n\nthoughts?", msgs[0].Text)
	assert.Equal(t, 3, msgs[0].FragmentCount)
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, 0, c.Pending("chat", "u1"))
}

func TestCoalescer_StripsMarkersOnlyAtInnerEdges(t *testing.T) {
	got := joinFragments([]string{"---start---", "---middle...", "...end..."})
	assert.Equal(t, "---start\n\nmiddle\n\nend...", got)
}

func TestCoalescer_SingleFragmentUnchanged(t *testing.T) {
	c, clk, sink := newTestCoalescer()

	c.Submit("chat", "u1", "hello...", false)
	clk.Advance(time.Second)

	msgs := sink.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello...", msgs[0].Text)
}

func TestCoalescer_CommandBypassesBuffer(t *testing.T) {
	c, clk, sink := newTestCoalescer()

	c.Submit("chat", "u1", "first part", false)
	c.Submit("chat", "u1", "/help", true)

	msgs := sink.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "/help", msgs[0].Text)
	assert.True(t, msgs[0].IsCommand)
	assert.Equal(t, 1, c.Pending("chat", "u1"), "command must not disturb the pending buffer")

	clk.Advance(time.Second)
	msgs = sink.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first part", msgs[1].Text)
}

func TestCoalescer_CapForcesImmediateFlush(t *testing.T) {
	c, clk, sink := newTestCoalescer()

	for i := 0; i < 15; i++ {
		c.Submit("chat", "u1", fmt.Sprintf("part %d", i), false)
	}

	msgs := sink.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, 15, msgs[0].FragmentCount)
	assert.Equal(t, 0, c.Pending("chat", "u1"))

	// No stale timer fires a second message
	clk.Advance(5 * time.Second)
	assert.Len(t, sink.all(), 1)
}

func TestCoalescer_KeysAreIndependent(t *testing.T) {
	c, clk, sink := newTestCoalescer()

	c.Submit("chat", "u1", "from one", false)
	c.Submit("chat", "u2", "from two", false)
	c.Submit("other", "u1", "elsewhere", false)
	clk.Advance(time.Second)

	msgs := sink.all()
	require.Len(t, msgs, 3)
	texts := map[string]bool{}
	for _, m := range msgs {
		texts[m.Text] = true
		assert.Equal(t, 1, m.FragmentCount)
	}
	assert.True(t, texts["from one"])
	assert.True(t, texts["from two"])
	assert.True(t, texts["elsewhere"])
}

func TestCoalescer_JoinPanicDeliversFirstFragment(t *testing.T) {
	c, clk, sink := newTestCoalescer()
	c.join = func(parts []string) string { panic("boom") }

	c.Submit("chat", "u1", "first", false)
	c.Submit("chat", "u1", "second", false)
	clk.Advance(time.Second)

	msgs := sink.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, 1, msgs[0].FragmentCount)
	assert.Equal(t, 0, c.Pending("chat", "u1"))

	// Buffer was cleared, later fragments start fresh
	c.join = joinFragments
	c.Submit("chat", "u1", "third", false)
	clk.Advance(time.Second)
	msgs = sink.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, "third", msgs[1].Text)
}

func TestCoalescer_FlushAndFlushAll(t *testing.T) {
	c, clk, sink := newTestCoalescer()

	c.Submit("chat", "u1", "a", false)
	c.Submit("chat", "u2", "b", false)

	assert.True(t, c.Flush("chat", "u1"))
	assert.False(t, c.Flush("chat", "u1"))
	assert.Len(t, sink.all(), 1)

	assert.Equal(t, 1, c.FlushAll())
	assert.Len(t, sink.all(), 2)

	clk.Advance(time.Second)
	assert.Len(t, sink.all(), 2)
}

func TestCoalescer_Timestamps(t *testing.T) {
	c, clk, sink := newTestCoalescer()
	start := clk.Now()

	c.Submit("chat", "u1", "a", false)
	clk.Advance(500 * time.Millisecond)
	c.Submit("chat", "u1", "b", false)
	clk.Advance(time.Second)

	msgs := sink.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, start, msgs[0].FirstAt)
	assert.Equal(t, start.Add(500*time.Millisecond), msgs[0].LastAt)
}

func TestCoalescer_CarriesTransportDetails(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	sink := &messageSink{}
	var c *Coalescer
	c = NewCoalescer(clk, DefaultCoalescerConfig(), func(msg domain.LogicalMessage) {
		// A fragment arriving while the previous message is delivered
		// starts a new buffer and keeps its own details
		if len(sink.all()) == 0 {
			c.Add(domain.Fragment{ChatID: "chat", UserID: "u1", Text: "@bot also this", MsgID: "om_3", Mentioned: true})
		}
		sink.handle(msg)
	})

	c.Add(domain.Fragment{ChatID: "chat", UserID: "u1", Text: "first...", MsgID: "om_1"})
	c.Add(domain.Fragment{ChatID: "chat", UserID: "u1", Text: "...second", MsgID: "om_2"})
	clk.Advance(time.Second)

	msgs := sink.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"om_1", "om_2"}, msgs[0].MsgIDs)
	assert.False(t, msgs[0].Mentioned)
	assert.Equal(t, 1, c.Pending("chat", "u1"))

	clk.Advance(time.Second)
	msgs = sink.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"om_3"}, msgs[1].MsgIDs)
	assert.True(t, msgs[1].Mentioned)
}
