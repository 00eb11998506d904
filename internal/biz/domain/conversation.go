package domain

import "time"

// ChatType represents the chat type
type ChatType string

const (
	ChatTypeGroup ChatType = "group"
	ChatTypeP2P   ChatType = "p2p"
)

// MaxRecentParticipants bounds ConversationState.RecentParticipants
const MaxRecentParticipants = 5

// ConversationState is the per-chat engagement record
type ConversationState struct {
	IsActive           bool      `json:"isActive"`
	LastBotReplyAt     time.Time `json:"lastBotReplyAt"`
	MessageCount       int       `json:"messageCount"`
	MentionCount       int       `json:"mentionCount"`
	RecentParticipants []string  `json:"recentParticipants"` // Most recent first, no duplicates
}

// ActiveAt reports whether the assistant replied within timeout of now
func (s *ConversationState) ActiveAt(now time.Time, timeout time.Duration) bool {
	if !s.IsActive || s.LastBotReplyAt.IsZero() {
		return false
	}
	return now.Sub(s.LastBotReplyAt) <= timeout
}

// Touch moves userID to the front of RecentParticipants
func (s *ConversationState) Touch(userID string) {
	if userID == "" {
		return
	}
	list := make([]string, 0, MaxRecentParticipants)
	list = append(list, userID)
	for _, p := range s.RecentParticipants {
		if p == userID {
			continue
		}
		if len(list) == MaxRecentParticipants {
			break
		}
		list = append(list, p)
	}
	s.RecentParticipants = list
}

// Clone returns a copy safe to hand to callers
func (s ConversationState) Clone() ConversationState {
	if s.RecentParticipants != nil {
		s.RecentParticipants = append([]string(nil), s.RecentParticipants...)
	}
	return s
}

// ConversationSignals is the engagement summary embedded in classifier prompts
type ConversationSignals struct {
	Active               bool `json:"active"`
	SecondsSinceBotReply int  `json:"secondsSinceBotReply"` // -1 if the assistant never replied
	MessageCount         int  `json:"messageCount"`
	MentionCount         int  `json:"mentionCount"`
}
