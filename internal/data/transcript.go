package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// transcriptRepo records chat turns in SQLite
type transcriptRepo struct {
	db *sql.DB
}

var _ repo.TranscriptRepo = (*transcriptRepo)(nil)

// NewTranscriptRepo opens (creating if needed) the transcript database.
// ":memory:" is accepted for tests.
func NewTranscriptRepo(dbPath string) (repo.TranscriptRepo, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			msg_id TEXT NOT NULL,
			role TEXT NOT NULL,
			sender_id TEXT,
			sender_name TEXT,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(chat_id, msg_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create transcript table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcript_chat_created ON transcript(chat_id, created_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &transcriptRepo{db: db}, nil
}

// Append stores one message; a repeated (chat, msg) pair is ignored
func (r *transcriptRepo) Append(ctx context.Context, msg domain.Message) error {
	role := msg.Role
	if role == "" {
		role = domain.RoleUser
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transcript (chat_id, msg_id, role, sender_id, sender_name, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ChatID, msg.ID, string(role), msg.SenderID, msg.SenderName, msg.Content, msg.CreateTime.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// GetChatHistory returns the newest limit messages, oldest first
func (r *transcriptRepo) GetChatHistory(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT msg_id, role, sender_id, sender_name, content, created_at
		FROM transcript
		WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var role string
		var senderID, senderName sql.NullString
		var createdAt int64
		if err := rows.Scan(&m.ID, &role, &senderID, &senderName, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ChatID = chatID
		m.Role = domain.Role(role)
		m.SenderID = senderID.String
		m.SenderName = senderName.String
		m.CreateTime = time.UnixMilli(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Count returns how many messages are stored for chatID
func (r *transcriptRepo) Count(ctx context.Context, chatID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcript WHERE chat_id = ?`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// CleanupOld deletes messages created before the given time
func (r *transcriptRepo) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transcript WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup transcript: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database
func (r *transcriptRepo) Close() error {
	return r.db.Close()
}
