// Package models contains the domain models of the chat service.
package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageLength is the maximum message length in characters after trimming.
const MaxMessageLength = 1000

// Role identifies the author of a message.
type Role string

const (
	// RoleUser is the human participant.
	RoleUser Role = "user"
	// RoleAssistant is the server-side responder.
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Intent values with special handling.
const (
	IntentError   = "error"
	IntentGreet   = "greeting"
	IntentBooking = "booking"
)

// MessageMetadata is attached to assistant messages only.
type MessageMetadata struct {
	Intent           string  `json:"intent" bson:"intent"`
	Confidence       float64 `json:"confidence" bson:"confidence"`
	ProcessingTimeMs int64   `json:"processing_time_ms" bson:"processingTimeMs"`
}

// Message is a single immutable entry in a session's conversation log.
type Message struct {
	ID        string           `json:"id" bson:"_id"`
	SessionID string           `json:"session_id" bson:"sessionId"`
	Role      Role             `json:"role" bson:"role"`
	Content   string           `json:"content" bson:"content"`
	Timestamp time.Time        `json:"timestamp" bson:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// NewMessageID returns an identifier of the form msg_<unixnano>_<8 hex>.
// IDs created later sort after IDs created earlier within one process.
func NewMessageID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("msg_%d_%s", at.UnixNano(), suffix)
}

// NormalizeContent trims surrounding whitespace and reports the rune count of the result.
func NormalizeContent(raw string) (string, int) {
	text := strings.TrimSpace(raw)
	return text, utf8.RuneCountInString(text)
}

// IsBookingIntent reports whether the intent belongs to the booking class.
func IsBookingIntent(intent string) bool {
	return strings.HasPrefix(strings.ToLower(intent), IntentBooking)
}
