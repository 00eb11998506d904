package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chopstar001/chat-intent-bridge/internal/biz"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/usecase"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
	"github.com/chopstar001/chat-intent-bridge/internal/service"
)

// staticHistory implements repo.HistoryRepo for testing
type staticHistory struct {
	messages []domain.Message
}

func (h *staticHistory) GetChatHistory(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	if len(h.messages) > limit {
		return h.messages[len(h.messages)-limit:], nil
	}
	return h.messages, nil
}

func newTestServer(history *staticHistory) (*Server, *service.IntentService) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	uc := biz.NewUsecases(clk, biz.DefaultOptions(), nil, nil)
	svc := service.NewIntentService(clk, uc, nil, nil, service.IntentOptions{
		Coalescer: usecase.DefaultCoalescerConfig(),
	})
	if history == nil {
		return NewServer(svc, nil, ""), svc
	}
	return NewServer(svc, history, ""), svc
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleClassify(t *testing.T) {
	s, _ := newTestServer(nil)

	w := do(t, s, http.MethodPost, "/api/classify", ClassifyRequest{Text: "thanks!", ChatID: "oc_team"})
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.ClassificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.IsQuestion)
	assert.Equal(t, domain.SourcePrefilter, result.Source)
}

func TestHandleClassify_Fast(t *testing.T) {
	s, _ := newTestServer(nil)

	w := do(t, s, http.MethodPost, "/api/classify", ClassifyRequest{Text: "the deploy went out fine", ChatID: "oc_team", Fast: true})
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.ClassificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.SourceHeuristic, result.Source)
}

func TestHandleClassify_BadRequests(t *testing.T) {
	s, _ := newTestServer(nil)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/api/classify", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/classify", ClassifyRequest{Text: "  "}).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/classify", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatState(t *testing.T) {
	s, svc := newTestServer(nil)
	svc.UpdateConversation("oc_team", "ou_alice", false, true)
	svc.UpdateConversation("oc_team", "", true, false)

	w := do(t, s, http.MethodGet, "/api/chat/oc_team/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var state ChatState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.True(t, state.Active)
	assert.Equal(t, 2, state.MessageCount)
	assert.Equal(t, 1, state.State.MentionCount)
	assert.Equal(t, []string{"ou_alice"}, state.State.RecentParticipants)
	assert.False(t, state.SuggestSummary)
}

func TestHandleChatHistory(t *testing.T) {
	history := &staticHistory{messages: []domain.Message{
		{ID: "om_1", Role: domain.RoleUser, SenderName: "Alice", Content: "is staging down?"},
		{ID: "om_2", Role: domain.RoleAssistant, Content: "it is back up"},
	}}
	s, _ := newTestServer(history)

	w := do(t, s, http.MethodGet, "/api/chat/oc_team/history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string][]HistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result["messages"], 1)
	assert.Equal(t, "om_2", result["messages"][0].ID)
	assert.Equal(t, string(domain.RoleAssistant), result["messages"][0].Role)
}

func TestHandleChatHistory_Unavailable(t *testing.T) {
	s, _ := newTestServer(nil)
	w := do(t, s, http.MethodGet, "/api/chat/oc_team/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleChatSummary_NoOracle(t *testing.T) {
	s, _ := newTestServer(nil)
	w := do(t, s, http.MethodPost, "/api/chat/oc_team/summary?force=true", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleChat_BadPaths(t *testing.T) {
	s, _ := newTestServer(nil)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/chat/oc_team", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/chat/oc_team/members", nil).Code)
}

func TestHandleCache(t *testing.T) {
	s, _ := newTestServer(nil)
	w := do(t, s, http.MethodGet, "/api/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats usecase.CacheStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Entries)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(nil)

	w := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
