// Package typing tracks transient typing indicators per session and role.
package typing

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
	"github.com/unifiedui/livechat-service/internal/domain/models"
	"github.com/unifiedui/livechat-service/internal/services/chat/registry"
)

// DefaultTimeout is how long a typing indicator lives without a refresh.
const DefaultTimeout = 3 * time.Second

// Broadcaster delivers typing frames to a session's connections.
type Broadcaster interface {
	Broadcast(sessionID string, frame protocol.Frame, audience registry.Audience) (int, error)
}

// Coordinator owns the typing state of every session.
type Coordinator interface {
	// Start marks role as typing and (re)arms its auto-stop timer.
	Start(sessionID string, role models.Role)
	// Stop clears the indicator immediately.
	Stop(sessionID string, role models.Role)
	// IsTyping reports the current indicator.
	IsTyping(sessionID string, role models.Role) bool
	// State returns the indicator and its expiry.
	State(sessionID string, role models.Role) models.TypingState
	// Clear drops all state of a session without broadcasting.
	Clear(sessionID string)
}

// Config holds the configuration for the coordinator.
type Config struct {
	Broadcaster Broadcaster
	Timeout     time.Duration
	Logger      *zerolog.Logger
}

type state struct {
	typing    bool
	expiresAt time.Time
	timer     *time.Timer
	gen       uint64
}

// sessionTyping holds both roles of one session. mu guards the state; sendMu
// keeps broadcasts in transition order without blocking readers.
type sessionTyping struct {
	mu      sync.Mutex
	sendMu  sync.Mutex
	roles   map[models.Role]*state
	removed bool
}

type coordinator struct {
	broadcaster Broadcaster
	timeout     time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionTyping
}

// NewCoordinator creates a typing coordinator.
func NewCoordinator(cfg *Config) (Coordinator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &coordinator{
		broadcaster: cfg.Broadcaster,
		timeout:     timeout,
		logger:      logger.With().Str("component", "typing").Logger(),
		sessions:    make(map[string]*sessionTyping),
	}, nil
}

// session returns the live holder for sessionID, creating it when asked.
func (c *coordinator) session(sessionID string, create bool) *sessionTyping {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[sessionID]
	if !ok && create {
		s = &sessionTyping{roles: make(map[models.Role]*state)}
		c.sessions[sessionID] = s
	}
	return s
}

// lock returns the locked holder of sessionID, skipping holders removed by Clear.
func (c *coordinator) lock(sessionID string, create bool) *sessionTyping {
	for {
		s := c.session(sessionID, create)
		if s == nil {
			return nil
		}
		s.mu.Lock()
		if !s.removed {
			return s
		}
		s.mu.Unlock()
	}
}

// publish releases s.mu and sends the transition, if any, in order.
func (c *coordinator) publish(s *sessionTyping, sessionID string, role models.Role, changed, isTyping bool) {
	if !changed {
		s.mu.Unlock()
		return
	}
	s.sendMu.Lock()
	s.mu.Unlock()
	defer s.sendMu.Unlock()
	c.broadcast(sessionID, role, isTyping)
}

func (c *coordinator) Start(sessionID string, role models.Role) {
	s := c.lock(sessionID, true)

	st, ok := s.roles[role]
	if !ok {
		st = &state{}
		s.roles[role] = st
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.gen++
	gen := st.gen
	st.expiresAt = time.Now().Add(c.timeout)
	st.timer = time.AfterFunc(c.timeout, func() { c.expire(s, sessionID, role, st, gen) })

	changed := !st.typing
	st.typing = true
	c.publish(s, sessionID, role, changed, true)
}

func (c *coordinator) Stop(sessionID string, role models.Role) {
	s := c.lock(sessionID, false)
	if s == nil {
		return
	}

	st, ok := s.roles[role]
	changed := ok && st.typing
	if changed {
		reset(st)
	}
	c.publish(s, sessionID, role, changed, false)
}

func (c *coordinator) expire(s *sessionTyping, sessionID string, role models.Role, st *state, gen uint64) {
	s.mu.Lock()
	changed := !s.removed && s.roles[role] == st && st.gen == gen && st.typing
	if changed {
		c.logger.Debug().Str("session_id", sessionID).Str("role", string(role)).Msg("typing expired")
		reset(st)
	}
	c.publish(s, sessionID, role, changed, false)
}

func reset(st *state) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.gen++
	st.typing = false
	st.expiresAt = time.Time{}
}

func (c *coordinator) IsTyping(sessionID string, role models.Role) bool {
	return c.State(sessionID, role).IsTyping
}

func (c *coordinator) State(sessionID string, role models.Role) models.TypingState {
	s := c.lock(sessionID, false)
	if s == nil {
		return models.TypingState{}
	}
	defer s.mu.Unlock()

	st, ok := s.roles[role]
	if !ok {
		return models.TypingState{}
	}
	return models.TypingState{IsTyping: st.typing, ExpiresAt: st.expiresAt}
}

func (c *coordinator) Clear(sessionID string) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	delete(c.sessions, sessionID)
	c.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = true
	for _, st := range s.roles {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
}

// broadcast sends the transition to the opposite role's view only.
func (c *coordinator) broadcast(sessionID string, role models.Role, isTyping bool) {
	audience := registry.AudienceParticipant
	if role == models.RoleUser {
		audience = registry.AudienceObservers
	}

	frame := protocol.NewTypingEvent(sessionID, role, isTyping)
	if _, err := c.broadcaster.Broadcast(sessionID, frame, audience); err != nil {
		c.logger.Debug().Err(err).Str("session_id", sessionID).Msg("typing broadcast skipped")
	}
}
