package data

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
	"github.com/chopstar001/chat-intent-bridge/internal/infra/feishu"
)

// rosterTTL bounds how long a fetched member list is reused
const rosterTTL = 10 * time.Minute

// feishuAPI is the subset of the Feishu client the repository needs
type feishuAPI interface {
	GetChatHistory(ctx context.Context, chatID string, pageSize int) ([]*feishu.HistoryMessage, error)
	GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error)
	Bot() feishu.BotInfo
}

type cachedRoster struct {
	members   map[string]domain.Participant
	fetchedAt time.Time
}

// FeishuRepo serves chat history and rosters from the Feishu API
type FeishuRepo struct {
	client feishuAPI
	clock  clock.Clock

	mu      sync.Mutex
	rosters map[string]cachedRoster
}

// NewFeishuRepo creates a new Feishu repository
func NewFeishuRepo(client feishuAPI, clk clock.Clock) *FeishuRepo {
	return &FeishuRepo{
		client:  client,
		clock:   clk,
		rosters: make(map[string]cachedRoster),
	}
}

// GetChatHistory gets recent chat turns, oldest first
func (r *FeishuRepo) GetChatHistory(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	msgs, err := r.client.GetChatHistory(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}

	// Names are best effort; an unresolved sender falls back to its ID
	roster, _ := r.GetRoster(ctx, chatID)
	botID := r.client.Bot().OpenID

	result := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		createTime := time.Time{}
		if ms, err := strconv.ParseInt(m.CreateTime, 10, 64); err == nil {
			createTime = time.UnixMilli(ms)
		}

		msg := domain.Message{
			ID:         m.MsgID,
			ChatID:     chatID,
			Role:       domain.RoleUser,
			Content:    m.Content,
			CreateTime: createTime,
		}
		if m.Sender != nil {
			msg.SenderID = m.Sender.SenderID
			msg.SenderName = roster[m.Sender.SenderID].DisplayName
			if m.Sender.IsBot() || (botID != "" && m.Sender.SenderID == botID) {
				msg.Role = domain.RoleAssistant
			}
		}
		result = append(result, msg)
	}
	return result, nil
}

// GetRoster returns the chat's members keyed by open_id, plus the bot itself
func (r *FeishuRepo) GetRoster(ctx context.Context, chatID string) (map[string]domain.Participant, error) {
	now := r.clock.Now()

	r.mu.Lock()
	if cached, ok := r.rosters[chatID]; ok && now.Sub(cached.fetchedAt) < rosterTTL {
		r.mu.Unlock()
		return cached.members, nil
	}
	r.mu.Unlock()

	members, err := r.client.GetChatMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}

	roster := make(map[string]domain.Participant, len(members)+1)
	for _, m := range members {
		roster[m.MemberID] = domain.Participant{UserID: m.MemberID, DisplayName: m.Name}
	}
	// The member API lists humans only
	if bot := r.client.Bot(); bot.OpenID != "" {
		roster[bot.OpenID] = domain.Participant{UserID: bot.OpenID, DisplayName: bot.AppName, IsBot: true}
	}

	r.mu.Lock()
	r.rosters[chatID] = cachedRoster{members: roster, fetchedAt: now}
	r.mu.Unlock()
	return roster, nil
}
