package data

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
)

func completionServer(t *testing.T, failures int32, content string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}

		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"model":   req.Model,
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNewOracleRepo_NoKey(t *testing.T) {
	assert.Nil(t, NewOracleRepo(OracleOptions{}))
}

func TestOracleRepo_Invoke(t *testing.T) {
	srv, calls := completionServer(t, 0, "YES")
	o := NewOracleRepo(OracleOptions{APIKey: "test", BaseURL: srv.URL + "/", Model: "test-model"})
	require.NotNil(t, o)

	out, err := o.Invoke(context.Background(), "system", "is this a question?", repo.InvokeOptions{Timeout: 5 * time.Second, MaxTokens: 5})
	require.NoError(t, err)
	assert.Equal(t, "YES", out)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOracleRepo_InvokeRetriesTransportErrors(t *testing.T) {
	srv, calls := completionServer(t, 1, "NO")
	o := NewOracleRepo(OracleOptions{APIKey: "test", BaseURL: srv.URL, RequestsPerSecond: 100, Burst: 2})

	out, err := o.Invoke(context.Background(), "system", "hello", repo.InvokeOptions{Timeout: 5 * time.Second, Retries: 1})
	require.NoError(t, err)
	assert.Equal(t, "NO", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOracleRepo_InvokeNoRetries(t *testing.T) {
	srv, calls := completionServer(t, 5, "NO")
	o := NewOracleRepo(OracleOptions{APIKey: "test", BaseURL: srv.URL})

	_, err := o.Invoke(context.Background(), "system", "hello", repo.InvokeOptions{Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
