// Package responder defines the reply generation interface used by the message pipeline.
package responder

import (
	"context"

	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// Type represents the responder backend.
type Type string

const (
	// TypeOpenAI uses the OpenAI chat completions API.
	TypeOpenAI Type = "openai"
	// TypeAnthropic uses the Anthropic messages API.
	TypeAnthropic Type = "anthropic"
	// TypeHTTP posts the request to an external HTTP service.
	TypeHTTP Type = "http"
	// TypeEcho answers locally without any backend.
	TypeEcho Type = "echo"
)

// ReplyRequest is everything a backend needs to produce one assistant reply.
type ReplyRequest struct {
	SessionID   string                  `json:"session_id"`
	Business    *models.BusinessContext `json:"business,omitempty"`
	Participant *models.ParticipantInfo `json:"participant,omitempty"`
	// History is the recent log, oldest first, including the message being answered.
	History []models.Message `json:"history"`
	// Message is the user text being answered. Empty for a greeting turn.
	Message  string `json:"message,omitempty"`
	Greeting bool   `json:"greeting,omitempty"`
}

// Reply is a generated assistant reply.
type Reply struct {
	Text        string         `json:"text"`
	Intent      string         `json:"intent"`
	Confidence  float64        `json:"confidence"`
	BookingData map[string]any `json:"bookingData,omitempty"`
}

// Responder produces assistant replies.
type Responder interface {
	GenerateReply(ctx context.Context, req *ReplyRequest) (*Reply, error)
}
