package domain

import "fmt"

// Participant is a chat roster member (value object)
type Participant struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsBot       bool   `json:"isBot,omitempty"`
}

// FormatDisplay formats for prompts
func (p Participant) FormatDisplay() string {
	if p.IsBot {
		return fmt.Sprintf("%s (user_id: %s, bot)", p.DisplayName, p.UserID)
	}
	return fmt.Sprintf("%s (user_id: %s)", p.DisplayName, p.UserID)
}
