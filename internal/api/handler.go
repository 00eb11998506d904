package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/usecase"
)

// IntentAPI is the part of the intent service the HTTP API inspects
type IntentAPI interface {
	Classify(ctx context.Context, req usecase.ClassifyRequest) domain.ClassificationResult
	ClassifyProgressively(ctx context.Context, req usecase.ClassifyRequest) domain.ClassificationResult
	IsConversationActive(chatID string) bool
	ConversationState(chatID string) domain.ConversationState
	ShouldSuggestSummary(chatID string, messageCount int) bool
	MessageCount(ctx context.Context, chatID string) int
	BuildSummary(ctx context.Context, chatID string, force bool) (string, error)
	CacheStats() usecase.CacheStats
}

// Server provides an HTTP API for inspecting the pipeline, plus /metrics
type Server struct {
	intent  IntentAPI
	history repo.HistoryRepo
	addr    string
}

// NewServer creates a new API server. history may be nil.
func NewServer(intent IntentAPI, history repo.HistoryRepo, addr string) *Server {
	return &Server{intent: intent, history: history, addr: addr}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/classify", s.handleClassify)
	mux.HandleFunc("/api/chat/", s.handleChat)
	mux.HandleFunc("/api/cache", s.handleCache)
	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("component", "api").Str("addr", s.addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ClassifyRequest is the body of POST /api/classify
type ClassifyRequest struct {
	Text   string `json:"text"`
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id,omitempty"`
	Fast   bool   `json:"fast,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Text) == "" || strings.TrimSpace(body.ChatID) == "" {
		http.Error(w, "text and chat_id are required", http.StatusBadRequest)
		return
	}

	req := usecase.ClassifyRequest{Text: body.Text, ChatID: body.ChatID, UserID: body.UserID}
	var result domain.ClassificationResult
	if body.Fast {
		result = s.intent.ClassifyProgressively(r.Context(), req)
	} else {
		result = s.intent.Classify(r.Context(), req)
	}
	s.writeJSON(w, result)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	// Parse path: /api/chat/{chat_id}/{state|history|summary}
	path := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	chatID := parts[0]
	switch parts[1] {
	case "state":
		s.handleChatState(w, r, chatID)
	case "history":
		s.handleChatHistory(w, r, chatID)
	case "summary":
		s.handleChatSummary(w, r, chatID)
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
	}
}

// ChatState is the response of GET /api/chat/{chat_id}/state
type ChatState struct {
	Active         bool                     `json:"active"`
	State          domain.ConversationState `json:"state"`
	MessageCount   int                      `json:"messageCount"`
	SuggestSummary bool                     `json:"suggestSummary"`
}

func (s *Server) handleChatState(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count := s.intent.MessageCount(r.Context(), chatID)
	s.writeJSON(w, ChatState{
		Active:         s.intent.IsConversationActive(chatID),
		State:          s.intent.ConversationState(chatID),
		MessageCount:   count,
		SuggestSummary: s.intent.ShouldSuggestSummary(chatID, count),
	})
}

// HistoryEntry is one message in GET /api/chat/{chat_id}/history
type HistoryEntry struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Sender     string    `json:"sender,omitempty"`
	Content    string    `json:"content"`
	CreateTime time.Time `json:"createTime"`
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, "history unavailable", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := s.history.GetChatHistory(r.Context(), chatID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	entries := make([]HistoryEntry, len(messages))
	for i, m := range messages {
		entries[i] = HistoryEntry{
			ID:         m.ID,
			Role:       string(m.Role),
			Sender:     m.SenderName,
			Content:    m.Content,
			CreateTime: m.CreateTime,
		}
	}
	s.writeJSON(w, map[string]interface{}{"messages": entries})
}

func (s *Server) handleChatSummary(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	summary, err := s.intent.BuildSummary(r.Context(), chatID, force)
	if err != nil {
		if errors.Is(err, usecase.ErrNoOracle) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if errors.Is(err, usecase.ErrEmptyTranscript) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"summary": summary})
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.intent.CacheStats())
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	log.Warn().Str("component", "api").Err(err).Msg("request failed")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
