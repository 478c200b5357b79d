package dto

import "github.com/unifiedui/livechat-service/internal/domain/models"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status      string            `json:"status"`
	Components  map[string]string `json:"components,omitempty"`
	Sessions    int               `json:"sessions"`
	ActiveTurns int               `json:"active_turns"`
}

// SessionResponse is a live session snapshot with its most recent messages.
type SessionResponse struct {
	Session           models.Session     `json:"session"`
	RecentHistory     []models.Message   `json:"recent_history"`
	ParticipantTyping models.TypingState `json:"participant_typing"`
	AssistantTyping   models.TypingState `json:"assistant_typing"`
}

// GetHistoryResponse represents the archived history of a session.
type GetHistoryResponse struct {
	Messages []models.Message `json:"messages"`
	Total    int64            `json:"total"`
	Limit    int64            `json:"limit"`
	Offset   int64            `json:"offset"`
}

// ListBusinessContextsResponse lists configured business contexts.
type ListBusinessContextsResponse struct {
	Businesses []models.BusinessContext `json:"businesses"`
	Total      int                      `json:"total"`
}
