package domain

import "time"

// Fragment is one raw inbound update from a chat participant
type Fragment struct {
	ChatID    string
	UserID    string
	Text      string
	ArrivedAt time.Time
	IsCommand bool // Commands are never coalesced

	// Transport details, carried through to the logical message
	MsgID     string
	Mentioned bool
}

// LogicalMessage is the unit the classifier sees: one or more fragments
// from the same participant joined in arrival order
type LogicalMessage struct {
	ID            string
	ChatID        string
	UserID        string
	Text          string
	FragmentCount int
	IsCommand     bool
	FirstAt       time.Time
	LastAt        time.Time
	MsgIDs        []string // Transport IDs of the joined fragments
	Mentioned     bool     // Any fragment mentioned the assistant
}

// FragmentMarkers are the continuation markers users put at fragment edges
// ("so I was thinking..." / "...and then")
var FragmentMarkers = []string{"...", "---"}
