package domain

import "time"

// Role of a history turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of chat history
type Message struct {
	ID         string
	ChatID     string
	Role       Role
	SenderID   string
	SenderName string
	Content    string
	CreateTime time.Time
}

// IsAfter checks if the message is after the specified time
func (m *Message) IsAfter(t time.Time) bool {
	return m.CreateTime.After(t)
}

// Speaker returns the best available label for the sender
func (m *Message) Speaker() string {
	if m.Role == RoleAssistant {
		return "assistant"
	}
	if m.SenderName != "" {
		return m.SenderName
	}
	if m.SenderID != "" {
		return m.SenderID
	}
	return "user"
}

// LastTurns returns at most n messages from the end of history, in order
func LastTurns(history []Message, n int) []Message {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
