package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chopstar001/chat-intent-bridge/internal/biz"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/usecase"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
	"github.com/chopstar001/chat-intent-bridge/internal/service"
)

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	uc := biz.NewUsecases(clk, biz.DefaultOptions(), nil, nil)
	svc := service.NewIntentService(clk, uc, nil, nil, service.IntentOptions{
		Coalescer: usecase.DefaultCoalescerConfig(),
	})

	srv := NewServer(svc, "test")
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := srv.GetServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		require.NotEmpty(t, res.Content)
		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)
		require.NoError(t, json.Unmarshal([]byte(text.Text), out))
	}
	return res
}

func TestServer_ListsTools(t *testing.T) {
	cs := connect(t)
	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"classify_message",
		"classify_message_fast",
		"conversation_state",
		"record_activity",
		"chat_summary",
	}, names)
}

func TestServer_Classify(t *testing.T) {
	cs := connect(t)

	var out ClassifyOutput
	res := callTool(t, cs, "classify_message", map[string]any{"text": "thanks!", "chat_id": "oc_team"}, &out)
	require.False(t, res.IsError)
	assert.False(t, out.IsQuestion)
	assert.Equal(t, string(domain.SourcePrefilter), out.Source)
	assert.Equal(t, string(domain.ActionSilent), out.Action)
	assert.NotNil(t, out.Targets)
}

func TestServer_ClassifyFastUsesHeuristics(t *testing.T) {
	cs := connect(t)

	var out ClassifyOutput
	callTool(t, cs, "classify_message_fast", map[string]any{
		"text":    "the deploy went out fine",
		"chat_id": "oc_team",
		"history": []map[string]any{{"sender": "Bob", "content": "how did the deploy go?"}},
	}, &out)
	assert.False(t, out.IsQuestion)
	assert.Equal(t, string(domain.SourceHeuristic), out.Source)
}

func TestServer_ClassifyRejectsBlankText(t *testing.T) {
	cs := connect(t)
	res := callTool(t, cs, "classify_message", map[string]any{"text": "   ", "chat_id": "oc_team"}, nil)
	assert.True(t, res.IsError)
}

func TestServer_RecordActivityAndState(t *testing.T) {
	cs := connect(t)

	var state ConversationStateOutput
	callTool(t, cs, "conversation_state", map[string]any{"chat_id": "oc_team"}, &state)
	assert.False(t, state.Active)
	assert.Equal(t, 0, state.MessageCount)

	callTool(t, cs, "record_activity", map[string]any{"chat_id": "oc_team", "user_id": "ou_alice", "mentioned": true}, nil)

	var rec RecordActivityOutput
	callTool(t, cs, "record_activity", map[string]any{"chat_id": "oc_team", "is_bot_reply": true}, &rec)
	assert.True(t, rec.Active)

	callTool(t, cs, "conversation_state", map[string]any{"chat_id": "oc_team"}, &state)
	assert.True(t, state.Active)
	assert.Equal(t, 1, state.MentionCount)
	assert.Equal(t, []string{"ou_alice"}, state.RecentParticipants)
	assert.False(t, state.SuggestSummary)
}

func TestServer_SummaryWithoutOracleIsToolError(t *testing.T) {
	cs := connect(t)
	res := callTool(t, cs, "chat_summary", map[string]any{"chat_id": "oc_team"}, nil)
	assert.True(t, res.IsError)
}
