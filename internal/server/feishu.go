package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
	"github.com/chopstar001/chat-intent-bridge/internal/infra/feishu"
	"github.com/chopstar001/chat-intent-bridge/internal/service"
)

// seenTTL bounds how long a message ID is remembered for deduplication.
// Feishu redelivers events that were not acked in time.
const seenTTL = 5 * time.Minute

// messageSource is the part of the Feishu client the server drives
type messageSource interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
	Bot() feishu.BotInfo
}

// messageSink receives converted inbound messages
type messageSink interface {
	HandleMessage(ctx context.Context, msg service.InboundMessage)
	RecordBotReply(ctx context.Context, chatID, msgID, text string, at time.Time)
}

// FeishuServer feeds Feishu message events into the intent service
type FeishuServer struct {
	source messageSource
	sink   messageSink
	roster repo.RosterRepo
	clock  clock.Clock

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // msgID -> first seen
}

// NewFeishuServer creates a new Feishu server. roster may be nil, in which
// case sender names are left empty.
func NewFeishuServer(source messageSource, sink messageSink, roster repo.RosterRepo, clk clock.Clock) *FeishuServer {
	return &FeishuServer{
		source:   source,
		sink:     sink,
		roster:   roster,
		clock:    clk,
		seenMsgs: make(map[string]time.Time),
	}
}

// Run registers the message handler and blocks until ctx is done
func (s *FeishuServer) Run(ctx context.Context) error {
	s.source.OnMessage(func(msg *feishu.Message) {
		s.handleMessage(ctx, msg)
	})
	return s.source.Start(ctx)
}

// handleMessage handles Feishu messages
func (s *FeishuServer) handleMessage(ctx context.Context, msg *feishu.Message) {
	if msg == nil {
		return
	}
	logger := log.With().Str("component", "server").Str("chat_id", msg.ChatID).Str("msg_id", msg.MsgID).Logger()

	if !s.markSeen(msg.MsgID) {
		logger.Debug().Msg("duplicate message ignored")
		return
	}

	// Bots never enter the pipeline. Replies posted as this app by another
	// process still count as engagement.
	if msg.Sender.IsBot() {
		if bot := s.source.Bot(); bot.OpenID != "" && msg.Sender.SenderID == bot.OpenID {
			s.sink.RecordBotReply(ctx, msg.ChatID, msg.MsgID, msg.Content, s.createTime(msg))
			logger.Debug().Msg("own reply recorded")
			return
		}
		logger.Debug().Msg("bot message ignored")
		return
	}

	logger.Debug().Str("chat_type", msg.ChatType).Str("content", truncate(msg.Content, 50)).Msg("message received")
	s.sink.HandleMessage(ctx, s.toInbound(ctx, msg))
}

func (s *FeishuServer) toInbound(ctx context.Context, msg *feishu.Message) service.InboundMessage {
	chatType := domain.ChatTypeGroup
	if msg.ChatType == string(domain.ChatTypeP2P) {
		chatType = domain.ChatTypeP2P
	}

	in := service.InboundMessage{
		ChatID:     msg.ChatID,
		MsgID:      msg.MsgID,
		Text:       msg.Content,
		ChatType:   chatType,
		Mentioned:  msg.MentionsBot,
		CreateTime: s.createTime(msg),
	}
	if msg.Sender != nil {
		in.UserID = msg.Sender.SenderID
		in.UserName = s.senderName(ctx, msg.ChatID, in.UserID)
	}
	return in
}

func (s *FeishuServer) createTime(msg *feishu.Message) time.Time {
	if msg.CreateTime > 0 {
		return time.UnixMilli(msg.CreateTime)
	}
	return s.clock.Now()
}

func (s *FeishuServer) senderName(ctx context.Context, chatID, userID string) string {
	if s.roster == nil || userID == "" {
		return ""
	}
	members, err := s.roster.GetRoster(ctx, chatID)
	if err != nil {
		log.Debug().Str("component", "server").Str("chat_id", chatID).Err(err).Msg("roster unavailable")
		return ""
	}
	return members[userID].DisplayName
}

// markSeen records msgID and reports whether it was new
func (s *FeishuServer) markSeen(msgID string) bool {
	if msgID == "" {
		return true
	}
	now := s.clock.Now()

	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	// Drop expired records while we hold the lock
	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}

	if _, exists := s.seenMsgs[msgID]; exists {
		return false
	}
	s.seenMsgs[msgID] = now
	return true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
