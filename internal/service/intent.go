package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chopstar001/chat-intent-bridge/internal/biz"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/usecase"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
)

// Decision is the outcome for one logical message
type Decision struct {
	Message        domain.LogicalMessage
	Result         domain.ClassificationResult
	Mentioned      bool // The assistant was @mentioned in any fragment
	SuggestSummary bool
}

// DecisionHandler receives every decision
type DecisionHandler func(ctx context.Context, d Decision)

// InboundMessage is one raw chat message as delivered by a transport
type InboundMessage struct {
	ChatID     string
	MsgID      string
	UserID     string
	UserName   string
	Text       string
	ChatType   domain.ChatType
	Mentioned  bool
	CreateTime time.Time
}

// IntentOptions configures the intent service
type IntentOptions struct {
	Coalescer    usecase.CoalescerConfig
	HistoryFetch int  // Turns fetched per logical message
	Progressive  bool // Use ClassifyProgressively for inbound messages
}

// IntentService coalesces inbound fragments, classifies the resulting
// logical messages and reports a Decision for each
type IntentService struct {
	uc         *biz.Usecases
	history    repo.HistoryRepo
	transcript repo.TranscriptRepo
	opts       IntentOptions
	coalescer  *usecase.Coalescer

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	onDecision DecisionHandler
}

// NewIntentService creates a new intent service. history and transcript may be nil.
func NewIntentService(
	clk clock.Clock,
	uc *biz.Usecases,
	history repo.HistoryRepo,
	transcript repo.TranscriptRepo,
	opts IntentOptions,
) *IntentService {
	if opts.HistoryFetch <= 0 {
		opts.HistoryFetch = 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &IntentService{
		uc:         uc,
		history:    history,
		transcript: transcript,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.coalescer = usecase.NewCoalescer(clk, opts.Coalescer, s.handleLogicalMessage)
	return s
}

// SetDecisionCallback sets the decision callback
func (s *IntentService) SetDecisionCallback(handler DecisionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDecision = handler
}

// HandleMessage records an inbound message and submits it for coalescing
func (s *IntentService) HandleMessage(ctx context.Context, msg InboundMessage) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if s.transcript != nil {
		err := s.transcript.Append(ctx, domain.Message{
			ID:         msg.MsgID,
			ChatID:     msg.ChatID,
			Role:       domain.RoleUser,
			SenderID:   msg.UserID,
			SenderName: msg.UserName,
			Content:    text,
			CreateTime: msg.CreateTime,
		})
		if err != nil {
			log.Warn().Str("component", "intent").Str("chat_id", msg.ChatID).Err(err).Msg("transcript append failed")
		}
	}

	// Direct chats always address the assistant
	mentioned := msg.Mentioned || msg.ChatType == domain.ChatTypeP2P
	s.uc.Tracker.Update(msg.ChatID, msg.UserID, false, mentioned)

	s.coalescer.Add(domain.Fragment{
		ChatID:    msg.ChatID,
		UserID:    msg.UserID,
		Text:      text,
		IsCommand: strings.HasPrefix(text, "/"),
		MsgID:     msg.MsgID,
		Mentioned: mentioned,
	})
}

// RecordBotReply marks the assistant as engaged in chatID and records its reply
func (s *IntentService) RecordBotReply(ctx context.Context, chatID, msgID, text string, at time.Time) {
	s.uc.Tracker.Update(chatID, "", true, false)
	if s.transcript == nil || text == "" {
		return
	}
	err := s.transcript.Append(ctx, domain.Message{
		ID:         msgID,
		ChatID:     chatID,
		Role:       domain.RoleAssistant,
		Content:    text,
		CreateTime: at,
	})
	if err != nil {
		log.Warn().Str("component", "intent").Str("chat_id", chatID).Err(err).Msg("transcript append failed")
	}
}

// Coalesce submits one fragment to the coalescer
func (s *IntentService) Coalesce(chatID, userID, text string, isCommand bool) {
	s.coalescer.Submit(chatID, userID, text, isCommand)
}

// Classify runs the full pipeline on one logical message
func (s *IntentService) Classify(ctx context.Context, req usecase.ClassifyRequest) domain.ClassificationResult {
	return s.uc.Classifier.Classify(ctx, req)
}

// ClassifyProgressively runs the cheap checks before any lookup or model call
func (s *IntentService) ClassifyProgressively(ctx context.Context, req usecase.ClassifyRequest) domain.ClassificationResult {
	return s.uc.Classifier.ClassifyProgressively(ctx, req)
}

// UpdateConversation records a message or assistant reply in chatID
func (s *IntentService) UpdateConversation(chatID, userID string, isBotReply, mentioned bool) {
	s.uc.Tracker.Update(chatID, userID, isBotReply, mentioned)
}

// IsConversationActive reports whether the assistant is engaged in chatID
func (s *IntentService) IsConversationActive(chatID string) bool {
	return s.uc.Tracker.IsActive(chatID)
}

// ConversationState returns a snapshot of chatID's engagement state
func (s *IntentService) ConversationState(chatID string) domain.ConversationState {
	return s.uc.Tracker.Get(chatID)
}

// ShouldSuggestSummary reports whether chatID has grown enough for a summary
func (s *IntentService) ShouldSuggestSummary(chatID string, messageCount int) bool {
	return s.uc.Group.ShouldSuggestSummary(chatID, messageCount)
}

// BuildSummary summarizes chatID's recent history, reusing a fresh summary unless forced
func (s *IntentService) BuildSummary(ctx context.Context, chatID string, force bool) (string, error) {
	source := s.history
	if s.transcript != nil {
		source = s.transcript
	}
	var messages []domain.Message
	if source != nil {
		// Fetch everything counted so the summary records the same message
		// count ShouldSuggestSummary later compares against
		limit := s.MessageCount(ctx, chatID)
		if limit <= 0 {
			limit = s.opts.HistoryFetch
		}
		var err error
		messages, err = source.GetChatHistory(ctx, chatID, limit)
		if err != nil {
			return "", err
		}
	}
	return s.uc.Group.BuildSummary(ctx, chatID, messages, force)
}

// MessageCount returns the number of messages known for chatID
func (s *IntentService) MessageCount(ctx context.Context, chatID string) int {
	if s.transcript != nil {
		if n, err := s.transcript.Count(ctx, chatID); err == nil {
			return n
		}
	}
	return s.uc.Tracker.Get(chatID).MessageCount
}

// CacheStats reports analysis cache occupancy and hit counts
func (s *IntentService) CacheStats() usecase.CacheStats {
	return s.uc.Cache.Stats()
}

// Shutdown flushes every pending buffer and cancels in-flight work
func (s *IntentService) Shutdown() {
	n := s.coalescer.FlushAll()
	s.cancel()
	log.Info().Str("component", "intent").Int("flushed", n).Msg("intent service stopped")
}

// handleLogicalMessage is the coalescer's delivery callback
func (s *IntentService) handleLogicalMessage(msg domain.LogicalMessage) {
	ctx := s.ctx

	req := usecase.ClassifyRequest{
		Text:    msg.Text,
		ChatID:  msg.ChatID,
		UserID:  msg.UserID,
		History: s.recentHistory(ctx, msg.ChatID, msg.MsgIDs),
	}

	var result domain.ClassificationResult
	if s.opts.Progressive {
		result = s.ClassifyProgressively(ctx, req)
	} else {
		result = s.Classify(ctx, req)
	}

	decision := Decision{
		Message:        msg,
		Result:         result,
		Mentioned:      msg.Mentioned,
		SuggestSummary: s.ShouldSuggestSummary(msg.ChatID, s.MessageCount(ctx, msg.ChatID)),
	}

	s.mu.Lock()
	handler := s.onDecision
	s.mu.Unlock()
	if handler != nil {
		handler(ctx, decision)
	}
}

// recentHistory fetches prior turns, leaving out the fragments that make
// up the message being classified. It returns nil when no history is available.
func (s *IntentService) recentHistory(ctx context.Context, chatID string, ownIDs []string) []domain.Message {
	if s.history == nil {
		return nil
	}
	exclude := make(map[string]struct{}, len(ownIDs))
	for _, id := range ownIDs {
		exclude[id] = struct{}{}
	}
	msgs, err := s.history.GetChatHistory(ctx, chatID, s.opts.HistoryFetch+len(exclude))
	if err != nil {
		log.Warn().Str("component", "intent").Str("chat_id", chatID).Err(err).Msg("history unavailable")
		return nil
	}

	history := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, skip := exclude[m.ID]; skip {
			continue
		}
		history = append(history, m)
	}
	if len(history) == 0 {
		return nil
	}
	return history
}
