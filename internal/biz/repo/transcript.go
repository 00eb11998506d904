package repo

import (
	"context"
	"time"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
)

// TranscriptRepo is the local transcript store.
// It doubles as a HistoryRepo when the chat platform's history API is unavailable.
type TranscriptRepo interface {
	HistoryRepo

	Append(ctx context.Context, msg domain.Message) error
	Count(ctx context.Context, chatID string) (int, error)
	CleanupOld(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
