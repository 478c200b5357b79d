// Package client is a reconnecting chat client that speaks the websocket protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
	domainerrors "github.com/unifiedui/livechat-service/internal/domain/errors"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

const (
	// DefaultMaxRetries is how many automatic reconnects follow a failure before parking.
	DefaultMaxRetries = 5
	// DefaultRetryDelay is the fixed pause before each automatic reconnect.
	DefaultRetryDelay = time.Second
	// DefaultPingInterval is how often a connected client sends a health probe.
	DefaultPingInterval = 30 * time.Second
	// DefaultTypingTimeout ends a typing burst after this much idle time.
	DefaultTypingTimeout = 3 * time.Second

	ioTimeout = 10 * time.Second
)

var (
	// ErrNotConnected is returned by sends while the client is not connected.
	ErrNotConnected = errors.New("client is not connected")
	// ErrTurnInFlight is returned while the assistant has not answered the previous message.
	ErrTurnInFlight = errors.New("waiting for the assistant to reply")
)

// State is a connection state of the client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Event is either a state transition or a frame received from the server.
type Event struct {
	State State
	Frame protocol.Frame
	Err   error
}

// Config holds the configuration for the client.
type Config struct {
	URL               string
	SessionID         string
	BusinessContextID string
	ParticipantID     string
	Participant       *models.ParticipantInfo

	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	TypingTimeout    time.Duration
	MaxMessageLength int
	// EventBuffer is the capacity of the Events channel. Events are dropped when it is full.
	EventBuffer int

	Dialer *websocket.Dialer
	Logger *zerolog.Logger
}

// link is one websocket connection and everything tied to its lifetime.
type link struct {
	ws      *websocket.Conn
	gen     uint64
	done    chan struct{}
	writeMu sync.Mutex
	// closedBy holds a server close reason that ends the session without retrying.
	closedBy string
}

// Client keeps one chat session alive across transport failures.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger
	events chan Event

	mu         sync.Mutex
	state      State
	link       *link
	gen        uint64
	retries    int
	parked     bool
	retryTimer *time.Timer
	messages   []models.Message
	awaiting   bool
	typing     bool
	typingSeq  uint64
	typingStop *time.Timer
}

// New creates a disconnected client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if cfg.BusinessContextID == "" {
		return nil, fmt.Errorf("business context id is required")
	}

	c := &Client{
		cfg:    *cfg,
		dialer: cfg.Dialer,
		logger: log.Logger,
		state:  StateDisconnected,
	}
	if c.cfg.MaxRetries <= 0 {
		c.cfg.MaxRetries = DefaultMaxRetries
	}
	if c.cfg.RetryDelay <= 0 {
		c.cfg.RetryDelay = DefaultRetryDelay
	}
	if c.cfg.PingInterval <= 0 {
		c.cfg.PingInterval = DefaultPingInterval
	}
	if c.cfg.TypingTimeout <= 0 {
		c.cfg.TypingTimeout = DefaultTypingTimeout
	}
	if c.cfg.MaxMessageLength <= 0 {
		c.cfg.MaxMessageLength = models.MaxMessageLength
	}
	if c.cfg.EventBuffer <= 0 {
		c.cfg.EventBuffer = 256
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{HandshakeTimeout: ioTimeout}
	}
	if cfg.Logger != nil {
		c.logger = *cfg.Logger
	}
	c.logger = c.logger.With().Str("component", "chat_client").Str("session_id", cfg.SessionID).Logger()
	c.events = make(chan Event, c.cfg.EventBuffer)
	return c, nil
}

// Events delivers state transitions and server frames in order.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the local conversation log.
func (c *Client) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// AwaitingReply reports whether an assistant turn is in flight.
func (c *Client) AwaitingReply() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting
}

// Connect dials the server and joins the session. A failed attempt moves the
// client to StateError and schedules an automatic retry.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.parked = false
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting, nil)
	c.mu.Unlock()

	return c.dial(ctx, gen)
}

// Retry resumes a client parked in StateError and resets its retry budget.
func (c *Client) Retry(ctx context.Context) error {
	c.mu.Lock()
	c.retries = 0
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()
	return c.Connect(ctx)
}

// Close disconnects without retrying.
func (c *Client) Close() {
	c.mu.Lock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.gen++
	l := c.detachLocked()
	c.parked = false
	c.retries = 0
	if c.state != StateDisconnected {
		c.setStateLocked(StateDisconnected, nil)
	}
	c.mu.Unlock()

	if l != nil {
		l.writeMu.Lock()
		_ = l.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(500*time.Millisecond))
		l.writeMu.Unlock()
		_ = l.ws.Close()
	}
}

// SendMessage sends user text. It is rejected locally unless the client is
// connected and the previous message was answered.
func (c *Client) SendMessage(text string) error {
	c.mu.Lock()
	if c.state != StateConnected || c.link == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.awaiting {
		c.mu.Unlock()
		return ErrTurnInFlight
	}

	trimmed, length := models.NormalizeContent(text)
	if length == 0 {
		c.mu.Unlock()
		return domainerrors.NewEmptyMessageError()
	}
	if length > c.cfg.MaxMessageLength {
		c.mu.Unlock()
		return domainerrors.NewMessageTooLongError(c.cfg.MaxMessageLength)
	}

	l := c.link
	stopTyping := c.endTypingLocked()
	c.awaiting = true
	c.mu.Unlock()

	if stopTyping {
		_ = c.write(l, protocol.NewTyping(c.cfg.SessionID, false))
	}
	if err := c.write(l, protocol.NewChat(c.cfg.SessionID, trimmed)); err != nil {
		c.mu.Lock()
		c.awaiting = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// Typing records a keystroke. The first keystroke of a burst sends typing_start;
// typing_stop follows once input has been idle for the typing timeout.
func (c *Client) Typing() error {
	c.mu.Lock()
	if c.state != StateConnected || c.link == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	l := c.link
	start := !c.typing
	c.typing = true
	c.typingSeq++
	seq := c.typingSeq
	if c.typingStop != nil {
		c.typingStop.Stop()
	}
	c.typingStop = time.AfterFunc(c.cfg.TypingTimeout, func() { c.typingIdle(seq) })
	c.mu.Unlock()

	if start {
		return c.write(l, protocol.NewTyping(c.cfg.SessionID, true))
	}
	return nil
}

// Terminate asks the server to destroy the session.
func (c *Client) Terminate() error {
	c.mu.Lock()
	l := c.link
	if c.state != StateConnected || l == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()
	return c.write(l, protocol.NewTerminate(c.cfg.SessionID))
}

func (c *Client) typingIdle(seq uint64) {
	c.mu.Lock()
	if seq != c.typingSeq || !c.typing || c.link == nil {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.typingStop = nil
	l := c.link
	c.mu.Unlock()

	_ = c.write(l, protocol.NewTyping(c.cfg.SessionID, false))
}

// endTypingLocked ends the current burst and reports whether typing_stop must be sent.
func (c *Client) endTypingLocked() bool {
	if c.typingStop != nil {
		c.typingStop.Stop()
		c.typingStop = nil
	}
	c.typingSeq++
	was := c.typing
	c.typing = false
	return was
}

func (c *Client) dial(ctx context.Context, gen uint64) error {
	ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		err = fmt.Errorf("dial chat websocket: %w", err)
		c.fail(gen, err, false)
		return err
	}

	l := &link{ws: ws, gen: gen, done: make(chan struct{})}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = ws.Close()
		return ErrNotConnected
	}
	c.link = l
	c.mu.Unlock()

	join := protocol.NewJoin(c.cfg.SessionID, c.cfg.BusinessContextID, c.cfg.ParticipantID, c.cfg.Participant)
	if err := c.write(l, join); err != nil {
		err = fmt.Errorf("send join: %w", err)
		c.fail(gen, err, false)
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.setStateLocked(StateConnected, nil)
	c.mu.Unlock()

	go c.readLoop(l)
	go c.pingLoop(l)
	return nil
}

// fail tears down the link of generation gen. Unless terminal, it schedules a
// retry while the retry budget lasts and parks the client otherwise.
func (c *Client) fail(gen uint64, err error, terminal bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state == StateDisconnected {
		return
	}

	c.gen++
	failed := c.gen
	if l := c.detachLocked(); l != nil {
		_ = l.ws.Close()
	}
	c.setStateLocked(StateError, err)

	if terminal || c.retries >= c.cfg.MaxRetries {
		c.parked = true
		c.logger.Warn().Err(err).Int("retries", c.retries).Msg("connection failed, waiting for manual retry")
		return
	}

	c.retries++
	c.logger.Info().Err(err).Int("attempt", c.retries).Dur("delay", c.cfg.RetryDelay).Msg("connection failed, retrying")
	c.retryTimer = time.AfterFunc(c.cfg.RetryDelay, func() {
		c.mu.Lock()
		if failed != c.gen || c.state != StateError || c.parked {
			c.mu.Unlock()
			return
		}
		c.retryTimer = nil
		c.gen++
		next := c.gen
		c.setStateLocked(StateConnecting, nil)
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		defer cancel()
		_ = c.dial(ctx, next)
	})
}

// ended handles a server initiated closure that must not be retried.
func (c *Client) ended(gen uint64, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.gen++
	if l := c.detachLocked(); l != nil {
		_ = l.ws.Close()
	}
	c.retries = 0
	c.setStateLocked(StateDisconnected, fmt.Errorf("closed by server: %s", reason))
}

// detachLocked drops the current link and all state tied to it.
func (c *Client) detachLocked() *link {
	l := c.link
	c.link = nil
	if l != nil {
		close(l.done)
	}
	c.awaiting = false
	c.endTypingLocked()
	return l
}

func (c *Client) setStateLocked(s State, err error) {
	c.state = s
	c.emit(Event{State: s, Err: err})
}

// emit never blocks. Callers may hold c.mu.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn().Str("state", string(ev.State)).Msg("event buffer full, dropping event")
	}
}

func (c *Client) write(l *link, frame protocol.Frame) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := l.ws.SetWriteDeadline(time.Now().Add(ioTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := l.ws.WriteJSON(frame); err != nil {
		return fmt.Errorf("write %s: %w", frame.FrameType(), err)
	}
	return nil
}

func (c *Client) readLoop(l *link) {
	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			c.readFailed(l, err)
			return
		}

		frame, err := protocol.DecodeServer(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("ignoring undecodable server frame")
			continue
		}
		c.handle(l, frame)
	}
}

func (c *Client) readFailed(l *link, err error) {
	reason := l.closedBy
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Text != "" {
		reason = closeErr.Text
	}

	switch reason {
	case protocol.CloseReasonReplaced, protocol.CloseReasonTerminated:
		c.ended(l.gen, reason)
	default:
		c.fail(l.gen, fmt.Errorf("connection lost: %w", err), false)
	}
}

func (c *Client) handle(l *link, frame protocol.Frame) {
	c.mu.Lock()
	if l.gen != c.gen {
		c.mu.Unlock()
		return
	}

	terminal := false
	switch f := frame.(type) {
	case *protocol.JoinedMessage:
		c.messages = append([]models.Message(nil), f.RecentHistory...)
		c.retries = 0
		n := len(f.RecentHistory)
		c.awaiting = n > 0 && f.RecentHistory[n-1].Role == models.RoleUser
	case *protocol.MessageEvent:
		c.appendLocked(f.Message)
		if f.Message.Role == models.RoleAssistant {
			c.awaiting = false
		}
	case *protocol.SessionReplacedEvent:
		l.closedBy = protocol.CloseReasonReplaced
	case *protocol.ErrorMessage:
		switch f.Code {
		case domainerrors.ErrCodeBusinessNotConfigured:
			terminal = true
		case domainerrors.ErrCodeEmptyMessage, domainerrors.ErrCodeMessageTooLong,
			domainerrors.ErrCodeSessionBusy, domainerrors.ErrCodeSessionNotFound,
			domainerrors.ErrCodeInvalidMessage:
			c.awaiting = false
		}
	}
	c.emit(Event{Frame: frame})
	c.mu.Unlock()

	if terminal {
		c.fail(l.gen, errors.New("business is not configured for chat"), true)
	}
}

// appendLocked adds msg unless the log already holds it.
func (c *Client) appendLocked(msg models.Message) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == msg.ID {
			return
		}
	}
	c.messages = append(c.messages, msg)
}

func (c *Client) pingLoop(l *link) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := c.write(l, protocol.NewPing()); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}
