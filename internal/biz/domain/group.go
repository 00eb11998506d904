package domain

import "time"

// WindowEntry is one remembered question in a chat's group window
type WindowEntry struct {
	Text   string
	Result ClassificationResult
	SeenAt time.Time
}

// ChatSummary is a generated summary of a chat's transcript
type ChatSummary struct {
	Text                string    `json:"text"`
	BuiltAt             time.Time `json:"builtAt"`
	MessageCountAtBuild int       `json:"messageCountAtBuild"`
}

// GroupWindow holds the recent questions and last summary for one chat
type GroupWindow struct {
	Entries      []WindowEntry // Newest first
	Summary      *ChatSummary
	LastActivity time.Time
}
