package repo

import (
	"context"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
)

// HistoryRepo provides recent chat turns, oldest first
type HistoryRepo interface {
	GetChatHistory(ctx context.Context, chatID string, limit int) ([]domain.Message, error)
}

// RosterRepo provides the participants of a chat keyed by user ID
type RosterRepo interface {
	GetRoster(ctx context.Context, chatID string) (map[string]domain.Participant, error)
}
