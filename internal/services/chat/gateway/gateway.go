// Package gateway maps transport events onto session registry and pipeline operations.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
	"github.com/unifiedui/livechat-service/internal/core/business"
	domainerrors "github.com/unifiedui/livechat-service/internal/domain/errors"
	"github.com/unifiedui/livechat-service/internal/domain/models"
	"github.com/unifiedui/livechat-service/internal/services/chat/pipeline"
	"github.com/unifiedui/livechat-service/internal/services/chat/registry"
	"github.com/unifiedui/livechat-service/internal/services/chat/typing"
)

const (
	// DefaultJoinGrace is how long a new transport may stay silent before it must join.
	DefaultJoinGrace = 10 * time.Second
	// DefaultResolveTimeout bounds business context resolution during join.
	DefaultResolveTimeout = 5 * time.Second
	// DefaultHistoryLimit is how many messages a joined frame carries.
	DefaultHistoryLimit = 20
)

type role int

const (
	roleNone role = iota
	roleParticipant
	roleObserver
)

// Config holds the configuration for the gateway.
type Config struct {
	Registry *registry.Registry
	Pipeline pipeline.Service
	Typing   typing.Coordinator
	Resolver business.Resolver

	JoinGrace      time.Duration
	ResolveTimeout time.Duration
	HistoryLimit   int
	Logger         *zerolog.Logger
}

type connState struct {
	conn registry.Conn

	mu            sync.Mutex
	sessionID     string
	participantID string
	role          role
	joined        bool
	grace         *time.Timer
}

func (s *connState) binding() (string, role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, s.role
}

// Gateway tracks live transports and routes their frames.
type Gateway struct {
	registry *registry.Registry
	pipeline pipeline.Service
	typing   typing.Coordinator
	resolver business.Resolver

	joinGrace      time.Duration
	resolveTimeout time.Duration
	historyLimit   int
	logger         zerolog.Logger

	mu    sync.Mutex
	conns map[string]*connState
}

// New creates a gateway.
func New(cfg *Config) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg.Typing == nil {
		return nil, fmt.Errorf("typing coordinator is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("business resolver is required")
	}

	g := &Gateway{
		registry:       cfg.Registry,
		pipeline:       cfg.Pipeline,
		typing:         cfg.Typing,
		resolver:       cfg.Resolver,
		joinGrace:      cfg.JoinGrace,
		resolveTimeout: cfg.ResolveTimeout,
		historyLimit:   cfg.HistoryLimit,
		logger:         log.Logger,
		conns:          make(map[string]*connState),
	}
	if g.joinGrace <= 0 {
		g.joinGrace = DefaultJoinGrace
	}
	if g.resolveTimeout <= 0 {
		g.resolveTimeout = DefaultResolveTimeout
	}
	if g.historyLimit <= 0 {
		g.historyLimit = DefaultHistoryLimit
	}
	if cfg.Logger != nil {
		g.logger = *cfg.Logger
	}
	g.logger = g.logger.With().Str("component", "gateway").Logger()

	return g, nil
}

// OnConnect registers a transport and arms its join grace timer.
func (g *Gateway) OnConnect(conn registry.Conn) {
	st := &connState{conn: conn}
	st.grace = time.AfterFunc(g.joinGrace, func() {
		st.mu.Lock()
		joined := st.joined
		st.mu.Unlock()
		if !joined {
			g.logger.Info().Str("conn_id", conn.ID()).Msg("no join within grace period")
			conn.Close(protocol.CloseReasonJoinTimeout)
		}
	})

	g.mu.Lock()
	g.conns[conn.ID()] = st
	g.mu.Unlock()

	g.logger.Debug().Str("conn_id", conn.ID()).Msg("transport connected")
}

// Handle dispatches a decoded client frame.
func (g *Gateway) Handle(ctx context.Context, conn registry.Conn, frame protocol.Frame) {
	switch f := frame.(type) {
	case *protocol.JoinMessage:
		g.OnJoinRequest(ctx, conn, f)
	case *protocol.WatchMessage:
		g.OnWatchRequest(conn, f)
	case *protocol.ChatMessage:
		g.OnMessage(ctx, conn, f)
	case *protocol.TypingMessage:
		g.OnTyping(conn, f)
	case *protocol.TerminateMessage:
		g.OnTerminate(conn, f)
	case *protocol.PingMessage:
		g.OnPing(conn)
	default:
		g.reject(conn, "", domainerrors.NewInvalidMessageError("unsupported frame: "+frame.FrameType()))
	}
}

// OnJoinRequest binds the transport to a session as its participant.
// A failed business resolution leaves the transport open and unbound.
func (g *Gateway) OnJoinRequest(ctx context.Context, conn registry.Conn, req *protocol.JoinMessage) {
	st := g.state(conn)
	st.markJoined()

	if req.SessionID == "" || req.BusinessContextID == "" {
		g.reject(conn, req.SessionID, domainerrors.NewInvalidMessageError("session_id and business_context_id are required"))
		return
	}

	logger := g.logger.With().
		Str("session_id", req.SessionID).
		Str("conn_id", conn.ID()).
		Str("business_context_id", req.BusinessContextID).
		Logger()

	resolveCtx, cancel := context.WithTimeout(ctx, g.resolveTimeout)
	bc, err := g.resolver.ResolveContext(resolveCtx, req.BusinessContextID)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("join rejected")
		g.reject(conn, req.SessionID, domainerrors.NewBusinessNotConfiguredError(req.BusinessContextID, err))
		return
	}

	if current, r := st.binding(); r != roleParticipant || current != req.SessionID {
		g.detach(st)
	}

	participantID := req.ParticipantID
	if participantID == "" && req.Participant != nil {
		participantID = req.Participant.ID
	}
	sess, err := g.registry.Bind(req.SessionID, conn, registry.Binding{
		BusinessContextID: bc.ID,
		ParticipantID:     participantID,
		Participant:       req.Participant,
	})
	if err != nil {
		logger.Error().Err(err).Msg("bind failed")
		g.reject(conn, req.SessionID, err)
		return
	}

	st.mu.Lock()
	st.sessionID = sess.SessionID
	st.participantID = participantID
	st.role = roleParticipant
	st.mu.Unlock()

	history := g.registry.Recent(sess.SessionID, g.historyLimit)
	if err := conn.Send(protocol.NewJoined(sess.SessionID, history)); err != nil {
		logger.Warn().Err(err).Msg("failed to send joined")
	}
	logger.Info().Int("history", len(history)).Msg("session joined")

	if g.registry.ClaimGreeting(sess.SessionID) {
		if err := g.pipeline.Greet(ctx, sess.SessionID); err != nil {
			logger.Warn().Err(err).Msg("greeting not queued")
		}
	}
}

// OnWatchRequest attaches the transport to an existing session as an observer.
func (g *Gateway) OnWatchRequest(conn registry.Conn, req *protocol.WatchMessage) {
	st := g.state(conn)
	st.markJoined()

	g.detach(st)
	if err := g.registry.Watch(req.SessionID, conn); err != nil {
		g.reject(conn, req.SessionID, err)
		return
	}

	st.mu.Lock()
	st.sessionID = req.SessionID
	st.role = roleObserver
	st.mu.Unlock()

	history := g.registry.Recent(req.SessionID, g.historyLimit)
	_ = conn.Send(protocol.NewJoined(req.SessionID, history))
	g.logger.Info().Str("session_id", req.SessionID).Str("conn_id", conn.ID()).Msg("observer attached")
}

// OnMessage submits user text to the pipeline.
func (g *Gateway) OnMessage(ctx context.Context, conn registry.Conn, req *protocol.ChatMessage) {
	sessionID, ok := g.boundSession(conn, req.SessionID)
	if !ok {
		g.reject(conn, req.SessionID, domainerrors.NewSessionNotFoundError(req.SessionID))
		return
	}

	g.typing.Stop(sessionID, models.RoleUser)
	if err := g.pipeline.Submit(ctx, sessionID, req.Text); err != nil {
		g.reject(conn, sessionID, err)
	}
}

// OnTyping forwards the participant's typing indicator to observers.
func (g *Gateway) OnTyping(conn registry.Conn, req *protocol.TypingMessage) {
	sessionID, ok := g.boundSession(conn, req.SessionID)
	if !ok {
		g.reject(conn, req.SessionID, domainerrors.NewSessionNotFoundError(req.SessionID))
		return
	}

	g.registry.Touch(sessionID)
	if req.IsTyping() {
		g.typing.Start(sessionID, models.RoleUser)
	} else {
		g.typing.Stop(sessionID, models.RoleUser)
	}
}

// OnPing answers the client health probe.
func (g *Gateway) OnPing(conn registry.Conn) {
	if sessionID, ok := g.boundSession(conn, ""); ok {
		g.registry.Touch(sessionID)
	}
	_ = conn.Send(protocol.NewPong())
}

// OnTerminate destroys the session the transport is bound to.
func (g *Gateway) OnTerminate(conn registry.Conn, req *protocol.TerminateMessage) {
	sessionID, ok := g.boundSession(conn, req.SessionID)
	if !ok {
		g.reject(conn, req.SessionID, domainerrors.NewSessionNotFoundError(req.SessionID))
		return
	}
	g.TerminateSession(sessionID)
}

// TerminateSession destroys a session with its log and typing state.
func (g *Gateway) TerminateSession(sessionID string) bool {
	if !g.registry.Terminate(sessionID) {
		return false
	}
	g.typing.Clear(sessionID)
	return true
}

// OnDisconnect forgets the transport. A bound participant is unbound and observers are told.
func (g *Gateway) OnDisconnect(conn registry.Conn) {
	g.mu.Lock()
	st, ok := g.conns[conn.ID()]
	delete(g.conns, conn.ID())
	g.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	if st.grace != nil {
		st.grace.Stop()
	}
	st.mu.Unlock()

	g.detach(st)
	g.logger.Debug().Str("conn_id", conn.ID()).Msg("transport disconnected")
}

// Connections returns the number of live transports.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Shutdown closes every live transport with reason.
func (g *Gateway) Shutdown(reason string) {
	g.mu.Lock()
	conns := make([]registry.Conn, 0, len(g.conns))
	for _, st := range g.conns {
		conns = append(conns, st.conn)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.Close(reason)
	}
}

// detach releases whatever session the transport currently holds.
func (g *Gateway) detach(st *connState) {
	st.mu.Lock()
	sessionID, r, participantID := st.sessionID, st.role, st.participantID
	st.sessionID, st.role, st.participantID = "", roleNone, ""
	st.mu.Unlock()

	switch r {
	case roleObserver:
		g.registry.Unwatch(sessionID, st.conn.ID())
	case roleParticipant:
		if !g.registry.UnbindConnection(sessionID, st.conn.ID()) {
			return
		}
		g.typing.Stop(sessionID, models.RoleUser)
		frame := protocol.NewParticipantDisconnected(sessionID, participantID)
		if _, err := g.registry.Broadcast(sessionID, frame, registry.AudienceObservers); err != nil {
			g.logger.Debug().Err(err).Str("session_id", sessionID).Msg("disconnect not broadcast")
		}
		g.logger.Info().Str("session_id", sessionID).Str("conn_id", st.conn.ID()).Msg("participant disconnected")
	}
}

// boundSession returns the session the transport is bound to as participant.
// A non-empty claimed ID must match it.
func (g *Gateway) boundSession(conn registry.Conn, claimed string) (string, bool) {
	g.mu.Lock()
	st, ok := g.conns[conn.ID()]
	g.mu.Unlock()
	if !ok {
		return "", false
	}

	sessionID, r := st.binding()
	if r != roleParticipant || (claimed != "" && claimed != sessionID) {
		return "", false
	}
	return sessionID, g.registry.IsBound(sessionID, conn.ID())
}

func (g *Gateway) state(conn registry.Conn) *connState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.conns[conn.ID()]
	if !ok {
		st = &connState{conn: conn}
		g.conns[conn.ID()] = st
	}
	return st
}

func (s *connState) markJoined() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = true
	if s.grace != nil {
		s.grace.Stop()
		s.grace = nil
	}
}

// reject sends the client-safe view of err to conn.
func (g *Gateway) reject(conn registry.Conn, sessionID string, err error) {
	code, message := domainerrors.ClientView(err)
	g.logger.Debug().Err(err).Str("conn_id", conn.ID()).Str("code", code).Msg("request rejected")
	if sendErr := conn.Send(protocol.NewError(sessionID, code, message)); sendErr != nil {
		g.logger.Debug().Err(sendErr).Str("conn_id", conn.ID()).Msg("failed to send error")
	}
}
