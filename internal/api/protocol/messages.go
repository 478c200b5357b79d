// Package protocol defines the websocket frames exchanged between chat clients and the server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// Message types from client to server.
const (
	TypeJoin        = "join"
	TypeWatch       = "watch"
	TypeMessage     = "message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypeTerminate   = "terminate"
	TypePing        = "ping"
)

// Message types from server to client. TypeMessage is used in both directions.
const (
	TypeJoined                  = "joined"
	TypeTyping                  = "typing"
	TypeBookingIntent           = "booking_intent"
	TypeParticipantDisconnected = "participant_disconnected"
	TypeSessionReplaced         = "session_replaced"
	TypeError                   = "error"
	TypePong                    = "pong"
)

// Close reasons attached to server initiated closures.
const (
	CloseReasonReplaced    = "session_replaced"
	CloseReasonJoinTimeout = "join_timeout"
	CloseReasonTerminated  = "session_terminated"
	CloseReasonShutdown    = "server_shutdown"
	CloseReasonSlowClient  = "slow_client"
)

// BaseMessage contains common fields for all frames.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	SessionID string `json:"session_id,omitempty"`
}

// FrameType returns the frame's type discriminator.
func (b BaseMessage) FrameType() string {
	return b.Type
}

// Frame is implemented by every frame in this package.
type Frame interface {
	FrameType() string
}

// JoinMessage binds the sending connection to a session as its participant.
type JoinMessage struct {
	BaseMessage
	BusinessContextID string                  `json:"business_context_id"`
	ParticipantID     string                  `json:"participant_id,omitempty"`
	Participant       *models.ParticipantInfo `json:"participant,omitempty"`
}

// Validate checks the fields a join cannot do without.
func (m *JoinMessage) Validate() error {
	if m.SessionID == "" || m.BusinessContextID == "" {
		return fmt.Errorf("session_id and business_context_id are required")
	}
	return nil
}

// WatchMessage attaches the sending connection to a session as an observer.
type WatchMessage struct {
	BaseMessage
}

// Validate checks that a session is named.
func (m *WatchMessage) Validate() error {
	if m.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	return nil
}

// ChatMessage carries user text from client to server.
type ChatMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// TypingMessage is either typing_start or typing_stop.
type TypingMessage struct {
	BaseMessage
}

// IsTyping reports whether the frame starts typing.
func (m TypingMessage) IsTyping() bool {
	return m.Type == TypeTypingStart
}

// TerminateMessage asks the server to destroy the session.
type TerminateMessage struct {
	BaseMessage
}

// PingMessage is the client health probe.
type PingMessage struct {
	BaseMessage
}

// JoinedMessage acknowledges a join with the most recent history.
type JoinedMessage struct {
	BaseMessage
	RecentHistory []models.Message `json:"recent_history"`
}

// MessageEvent delivers one log entry to clients.
type MessageEvent struct {
	BaseMessage
	Message models.Message `json:"message"`
}

// TypingEvent reports a typing transition of one role.
type TypingEvent struct {
	BaseMessage
	Role     models.Role `json:"role"`
	IsTyping bool        `json:"is_typing"`
}

// BookingIntentEvent hands structured booking data to the user view.
type BookingIntentEvent struct {
	BaseMessage
	BookingData map[string]any `json:"booking_data"`
}

// ParticipantDisconnectedEvent tells observers the participant's connection went away.
type ParticipantDisconnectedEvent struct {
	BaseMessage
	ParticipantID string `json:"participant_id,omitempty"`
}

// SessionReplacedEvent is the last frame a replaced connection receives.
type SessionReplacedEvent struct {
	BaseMessage
}

// ErrorMessage reports a failed request. Only code and message are ever sent.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMessage answers a ping.
type PongMessage struct {
	BaseMessage
	Timestamp int64 `json:"timestamp"`
}

func base(typ, sessionID string) BaseMessage {
	return BaseMessage{Type: typ, Ts: time.Now().UnixMilli(), SessionID: sessionID}
}

// NewJoined builds a joined frame.
func NewJoined(sessionID string, history []models.Message) *JoinedMessage {
	if history == nil {
		history = []models.Message{}
	}
	return &JoinedMessage{BaseMessage: base(TypeJoined, sessionID), RecentHistory: history}
}

// NewMessageEvent builds a message frame.
func NewMessageEvent(msg models.Message) *MessageEvent {
	return &MessageEvent{BaseMessage: base(TypeMessage, msg.SessionID), Message: msg}
}

// NewTypingEvent builds a typing frame.
func NewTypingEvent(sessionID string, role models.Role, isTyping bool) *TypingEvent {
	return &TypingEvent{BaseMessage: base(TypeTyping, sessionID), Role: role, IsTyping: isTyping}
}

// NewBookingIntent builds a booking_intent frame.
func NewBookingIntent(sessionID string, data map[string]any) *BookingIntentEvent {
	return &BookingIntentEvent{BaseMessage: base(TypeBookingIntent, sessionID), BookingData: data}
}

// NewParticipantDisconnected builds a participant_disconnected frame.
func NewParticipantDisconnected(sessionID, participantID string) *ParticipantDisconnectedEvent {
	return &ParticipantDisconnectedEvent{
		BaseMessage:   base(TypeParticipantDisconnected, sessionID),
		ParticipantID: participantID,
	}
}

// NewSessionReplaced builds a session_replaced frame.
func NewSessionReplaced(sessionID string) *SessionReplacedEvent {
	return &SessionReplacedEvent{BaseMessage: base(TypeSessionReplaced, sessionID)}
}

// NewError builds an error frame.
func NewError(sessionID, code, message string) *ErrorMessage {
	return &ErrorMessage{BaseMessage: base(TypeError, sessionID), Code: code, Message: message}
}

// NewPong builds a pong frame.
func NewPong() *PongMessage {
	b := base(TypePong, "")
	return &PongMessage{BaseMessage: b, Timestamp: b.Ts}
}

// NewJoin builds a join frame.
func NewJoin(sessionID, businessContextID, participantID string, participant *models.ParticipantInfo) *JoinMessage {
	return &JoinMessage{
		BaseMessage:       base(TypeJoin, sessionID),
		BusinessContextID: businessContextID,
		ParticipantID:     participantID,
		Participant:       participant,
	}
}

// NewWatch builds a watch frame.
func NewWatch(sessionID string) *WatchMessage {
	return &WatchMessage{BaseMessage: base(TypeWatch, sessionID)}
}

// NewChat builds a client message frame.
func NewChat(sessionID, text string) *ChatMessage {
	return &ChatMessage{BaseMessage: base(TypeMessage, sessionID), Text: text}
}

// NewTyping builds a typing_start or typing_stop frame.
func NewTyping(sessionID string, isTyping bool) *TypingMessage {
	typ := TypeTypingStop
	if isTyping {
		typ = TypeTypingStart
	}
	return &TypingMessage{BaseMessage: base(typ, sessionID)}
}

// NewTerminate builds a terminate frame.
func NewTerminate(sessionID string) *TerminateMessage {
	return &TerminateMessage{BaseMessage: base(TypeTerminate, sessionID)}
}

// NewPing builds a ping frame.
func NewPing() *PingMessage {
	return &PingMessage{BaseMessage: base(TypePing, "")}
}

// Decode parses a raw client frame into its typed form.
func Decode(data []byte) (Frame, error) {
	var b BaseMessage
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid JSON frame: %w", err)
	}

	var frame Frame
	switch b.Type {
	case TypeJoin:
		frame = &JoinMessage{}
	case TypeWatch:
		frame = &WatchMessage{}
	case TypeMessage:
		frame = &ChatMessage{}
	case TypeTypingStart, TypeTypingStop:
		frame = &TypingMessage{}
	case TypeTerminate:
		frame = &TerminateMessage{}
	case TypePing:
		frame = &PingMessage{}
	case "":
		return nil, fmt.Errorf("frame type is required")
	default:
		return nil, fmt.Errorf("unknown frame type: %s", b.Type)
	}

	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("invalid %s frame: %w", b.Type, err)
	}
	if v, ok := frame.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s frame: %w", b.Type, err)
		}
	}
	return frame, nil
}

// DecodeServer parses a raw server frame. It is used by clients.
func DecodeServer(data []byte) (Frame, error) {
	var b BaseMessage
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid JSON frame: %w", err)
	}

	var frame Frame
	switch b.Type {
	case TypeJoined:
		frame = &JoinedMessage{}
	case TypeMessage:
		frame = &MessageEvent{}
	case TypeTyping:
		frame = &TypingEvent{}
	case TypeBookingIntent:
		frame = &BookingIntentEvent{}
	case TypeParticipantDisconnected:
		frame = &ParticipantDisconnectedEvent{}
	case TypeSessionReplaced:
		frame = &SessionReplacedEvent{}
	case TypeError:
		frame = &ErrorMessage{}
	case TypePong:
		frame = &PongMessage{}
	default:
		return nil, fmt.Errorf("unknown frame type: %s", b.Type)
	}

	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("invalid %s frame: %w", b.Type, err)
	}
	return frame, nil
}
