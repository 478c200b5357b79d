// Package testutils provides test utilities and helpers.
package testutils

import (
	"time"

	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// Test constants
const (
	TestSessionID         = "sess-test-123"
	TestBusinessContextID = "biz-test-456"
	TestParticipantID     = "cust-test-789"
)

// NewTestBusinessContext creates a business context with default values.
func NewTestBusinessContext() *models.BusinessContext {
	return &models.BusinessContext{
		ID:             TestBusinessContextID,
		Name:           "Test Salon",
		Description:    "Hair and beauty salon",
		Greeting:       "Welcome the visitor and offer help with bookings.",
		Timezone:       "Europe/Berlin",
		BookingEnabled: true,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}

// NewTestParticipant creates a participant with one passthrough field.
func NewTestParticipant() *models.ParticipantInfo {
	return &models.ParticipantInfo{
		ID:     TestParticipantID,
		Name:   "Ada",
		Email:  "ada@example.com",
		Locale: "en",
		Extra:  map[string]any{"plan": "gold"},
	}
}

// NewTestMessage creates a user message with default values.
func NewTestMessage(content string) *models.Message {
	now := time.Now().UTC()
	return &models.Message{
		ID:        models.NewMessageID(now),
		SessionID: TestSessionID,
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: now,
	}
}

// NewTestAssistantMessage creates an assistant message with metadata.
func NewTestAssistantMessage(content string) *models.Message {
	msg := NewTestMessage(content)
	msg.Role = models.RoleAssistant
	msg.Metadata = &models.MessageMetadata{Intent: "general", Confidence: 0.9, ProcessingTimeMs: 12}
	return msg
}
