package models

import "time"

// Session is a snapshot of a conversation's state as held by the registry.
// The connection handle itself never leaves the registry.
type Session struct {
	SessionID         string           `json:"session_id"`
	BusinessContextID string           `json:"business_context_id"`
	ParticipantID     string           `json:"participant_id,omitempty"`
	Participant       *ParticipantInfo `json:"participant,omitempty"`
	ConnectionID      string           `json:"connection_id,omitempty"`
	Active            bool             `json:"active"`
	Greeted           bool             `json:"greeted"`
	MessageCount      int              `json:"message_count"`
	Watchers          int              `json:"watchers"`
	CreatedAt         time.Time        `json:"created_at"`
	LastActivityAt    time.Time        `json:"last_activity_at"`
}

// TypingState is the transient typing indicator of one role in one session.
type TypingState struct {
	IsTyping  bool      `json:"is_typing"`
	ExpiresAt time.Time `json:"expires_at"`
}
