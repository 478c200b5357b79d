// Package registry holds the live chat sessions, their connection bindings and message logs.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
	domainerrors "github.com/unifiedui/livechat-service/internal/domain/errors"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// Conn is a connection handle that can be bound to a session.
// Send must not block; Close must be safe to call more than once.
type Conn interface {
	ID() string
	Send(frame protocol.Frame) error
	Close(reason string)
}

// Audience selects which connections of a session receive a broadcast.
type Audience int

const (
	// AudienceAll reaches the participant and every observer.
	AudienceAll Audience = iota
	// AudienceParticipant reaches only the bound participant connection.
	AudienceParticipant
	// AudienceObservers reaches only observers.
	AudienceObservers
)

// Binding describes who is joining a session.
type Binding struct {
	BusinessContextID string
	ParticipantID     string
	Participant       *models.ParticipantInfo
}

// Config holds the configuration for the registry.
type Config struct {
	Logger *zerolog.Logger
	// Clock overrides time.Now, mostly for tests.
	Clock func() time.Time
}

type entry struct {
	mu       sync.Mutex
	session  models.Session
	conn     Conn
	watchers map[string]Conn
	log      []models.Message
	deleted  bool
}

// Registry is the single source of truth for session state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	now    func() time.Time
	logger zerolog.Logger
}

// New creates an empty registry.
func New(cfg *Config) *Registry {
	r := &Registry{
		sessions: make(map[string]*entry),
		now:      time.Now,
		logger:   log.Logger,
	}
	if cfg != nil {
		if cfg.Clock != nil {
			r.now = cfg.Clock
		}
		if cfg.Logger != nil {
			r.logger = *cfg.Logger
		}
	}
	r.logger = r.logger.With().Str("component", "registry").Logger()
	return r
}

// lookup returns the live entry for sessionID, locked. Callers must unlock it.
func (r *Registry) lookup(sessionID string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, false
	}
	return e, true
}

// Bind attaches conn to sessionID, creating the session on first bind.
// A previously bound connection is told it was replaced and closed asynchronously.
func (r *Registry) Bind(sessionID string, conn Conn, b Binding) (models.Session, error) {
	if sessionID == "" {
		return models.Session{}, domainerrors.NewInvalidMessageError("session_id is required")
	}
	if conn == nil {
		return models.Session{}, fmt.Errorf("connection is required")
	}

	for {
		r.mu.Lock()
		e, ok := r.sessions[sessionID]
		if !ok {
			now := r.now()
			e = &entry{
				session: models.Session{
					SessionID:      sessionID,
					CreatedAt:      now,
					LastActivityAt: now,
				},
				watchers: make(map[string]Conn),
			}
			r.sessions[sessionID] = e
		}
		r.mu.Unlock()

		e.mu.Lock()
		if e.deleted {
			// Lost a race with the reaper; the map no longer holds e.
			e.mu.Unlock()
			continue
		}

		old := e.conn
		e.conn = conn
		e.session.Active = true
		e.session.ConnectionID = conn.ID()
		e.session.BusinessContextID = b.BusinessContextID
		e.session.ParticipantID = b.ParticipantID
		e.session.Participant = nil
		if b.Participant != nil {
			e.session.Participant = b.Participant.Clone()
		}
		e.session.LastActivityAt = r.now()
		snapshot := e.snapshot()
		e.mu.Unlock()

		if old != nil && old.ID() != conn.ID() {
			r.logger.Info().
				Str("session_id", sessionID).
				Str("conn_id", old.ID()).
				Str("replaced_by", conn.ID()).
				Msg("connection replaced")
			_ = old.Send(protocol.NewSessionReplaced(sessionID))
			go old.Close(protocol.CloseReasonReplaced)
		}
		return snapshot, nil
	}
}

// Unbind marks the session inactive. Unknown or already unbound sessions are left untouched.
func (r *Registry) Unbind(sessionID string) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return
	}
	defer e.mu.Unlock()
	r.unbindLocked(e)
}

// UnbindConnection unbinds the session only while connID is its bound connection.
// It reports whether an unbind took place.
func (r *Registry) UnbindConnection(sessionID, connID string) bool {
	e, ok := r.lookup(sessionID)
	if !ok {
		return false
	}
	defer e.mu.Unlock()
	if e.conn == nil || e.conn.ID() != connID {
		return false
	}
	r.unbindLocked(e)
	return true
}

func (r *Registry) unbindLocked(e *entry) {
	if !e.session.Active {
		return
	}
	e.conn = nil
	e.session.Active = false
	e.session.ConnectionID = ""
	e.session.LastActivityAt = r.now()
}

// IsBound reports whether connID is the connection currently bound to sessionID.
func (r *Registry) IsBound(sessionID, connID string) bool {
	e, ok := r.lookup(sessionID)
	if !ok {
		return false
	}
	defer e.mu.Unlock()
	return e.conn != nil && e.conn.ID() == connID
}

// Get returns a snapshot of the session.
func (r *Registry) Get(sessionID string) (models.Session, bool) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return models.Session{}, false
	}
	defer e.mu.Unlock()
	return e.snapshot(), true
}

// Touch records activity on the session.
func (r *Registry) Touch(sessionID string) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return
	}
	defer e.mu.Unlock()
	e.session.LastActivityAt = r.now()
}

// Append adds a message to the session log with a server assigned ID and timestamp.
// Timestamps are strictly increasing within a session even if the clock is not.
func (r *Registry) Append(sessionID string, role models.Role, content string, meta *models.MessageMetadata) (models.Message, error) {
	if !role.IsValid() {
		return models.Message{}, fmt.Errorf("invalid role: %q", role)
	}

	e, ok := r.lookup(sessionID)
	if !ok {
		return models.Message{}, domainerrors.NewSessionNotFoundError(sessionID)
	}
	defer e.mu.Unlock()

	ts := r.now()
	if n := len(e.log); n > 0 {
		if last := e.log[n-1].Timestamp; !ts.After(last) {
			ts = last.Add(time.Microsecond)
		}
	}

	msg := models.Message{
		ID:        models.NewMessageID(ts),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: ts,
	}
	if meta != nil && role == models.RoleAssistant {
		m := *meta
		msg.Metadata = &m
	}

	e.log = append(e.log, msg)
	e.session.LastActivityAt = ts
	return msg, nil
}

// Recent returns up to n of the latest messages, oldest first.
func (r *Registry) Recent(sessionID string, n int) []models.Message {
	e, ok := r.lookup(sessionID)
	if !ok {
		return nil
	}
	defer e.mu.Unlock()

	start := 0
	if n >= 0 && len(e.log) > n {
		start = len(e.log) - n
	}
	out := make([]models.Message, len(e.log)-start)
	copy(out, e.log[start:])
	return out
}

// ClaimGreeting returns true exactly once per session, and only while its log is empty.
func (r *Registry) ClaimGreeting(sessionID string) bool {
	e, ok := r.lookup(sessionID)
	if !ok {
		return false
	}
	defer e.mu.Unlock()
	if e.session.Greeted || len(e.log) > 0 {
		return false
	}
	e.session.Greeted = true
	return true
}

// Broadcast sends frame to the selected connections of the session and returns how many accepted it.
// Frames for one session are handed out in call order.
func (r *Registry) Broadcast(sessionID string, frame protocol.Frame, audience Audience) (int, error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return 0, domainerrors.NewSessionNotFoundError(sessionID)
	}
	defer e.mu.Unlock()

	delivered := 0
	send := func(c Conn) {
		if err := c.Send(frame); err != nil {
			r.logger.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("conn_id", c.ID()).
				Str("type", frame.FrameType()).
				Msg("failed to deliver frame")
			return
		}
		delivered++
	}

	if audience != AudienceObservers && e.conn != nil {
		send(e.conn)
	}
	if audience != AudienceParticipant {
		for _, id := range sortedKeys(e.watchers) {
			send(e.watchers[id])
		}
	}
	return delivered, nil
}

// Watch attaches an observer connection to an existing session.
func (r *Registry) Watch(sessionID string, conn Conn) error {
	e, ok := r.lookup(sessionID)
	if !ok {
		return domainerrors.NewSessionNotFoundError(sessionID)
	}
	defer e.mu.Unlock()
	e.watchers[conn.ID()] = conn
	return nil
}

// Unwatch detaches an observer connection.
func (r *Registry) Unwatch(sessionID, connID string) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return
	}
	defer e.mu.Unlock()
	delete(e.watchers, connID)
}

// Terminate destroys the session immediately and closes every connection attached to it.
func (r *Registry) Terminate(sessionID string) bool {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return false
	}
	e.deleted = true
	conns := make([]Conn, 0, len(e.watchers)+1)
	if e.conn != nil {
		conns = append(conns, e.conn)
	}
	for _, w := range e.watchers {
		conns = append(conns, w)
	}
	e.conn = nil
	e.watchers = nil
	e.log = nil
	e.mu.Unlock()

	for _, c := range conns {
		go c.Close(protocol.CloseReasonTerminated)
	}
	r.logger.Info().Str("session_id", sessionID).Msg("session terminated")
	return true
}

// InactiveSince lists unbound sessions whose last activity is before cutoff.
func (r *Registry) InactiveSince(cutoff time.Time) []string {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.sessions))
	for id, e := range r.sessions {
		entries[id] = e
	}
	r.mu.RUnlock()

	var ids []string
	for id, e := range entries {
		e.mu.Lock()
		if !e.deleted && e.expiredLocked(cutoff) {
			ids = append(ids, id)
		}
		e.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// DeleteIfInactive removes the session if it is still unbound and idle since before cutoff.
// A session that was rebound or touched in the meantime survives.
func (r *Registry) DeleteIfInactive(sessionID string, cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted || !e.expiredLocked(cutoff) {
		return false
	}
	e.deleted = true
	e.log = nil
	delete(r.sessions, sessionID)
	return true
}

// Len returns the number of sessions held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (e *entry) expiredLocked(cutoff time.Time) bool {
	return !e.session.Active && e.session.LastActivityAt.Before(cutoff)
}

func (e *entry) snapshot() models.Session {
	s := e.session
	s.Participant = e.session.Participant.Clone()
	s.MessageCount = len(e.log)
	s.Watchers = len(e.watchers)
	return s
}

func sortedKeys(m map[string]Conn) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
