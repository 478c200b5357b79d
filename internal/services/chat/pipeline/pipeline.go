// Package pipeline validates user messages and runs each conversation turn through the responder.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
	"github.com/unifiedui/livechat-service/internal/core/business"
	"github.com/unifiedui/livechat-service/internal/core/docdb"
	"github.com/unifiedui/livechat-service/internal/core/responder"
	domainerrors "github.com/unifiedui/livechat-service/internal/domain/errors"
	"github.com/unifiedui/livechat-service/internal/domain/models"
	"github.com/unifiedui/livechat-service/internal/services/chat/registry"
	"github.com/unifiedui/livechat-service/internal/services/chat/typing"
)

const (
	// DefaultHistoryLimit is how many messages the responder sees.
	DefaultHistoryLimit = 20
	// DefaultResponderTimeout bounds a single responder call.
	DefaultResponderTimeout = 20 * time.Second
	// DefaultQueueSize is how many turns may wait per session.
	DefaultQueueSize = 8
	// DefaultArchiveTimeout bounds a single archive write.
	DefaultArchiveTimeout = 5 * time.Second

	// ApologyText replaces the reply whenever the responder fails.
	ApologyText = "Sorry, I'm having trouble answering right now. Please try again in a moment."
)

// Service accepts user messages and greeting requests for bound sessions.
type Service interface {
	// Submit validates rawText and queues a turn. Rejected messages leave no trace.
	Submit(ctx context.Context, sessionID, rawText string) error

	// Greet queues a greeting turn with no user message.
	Greet(ctx context.Context, sessionID string) error

	// Drain stops accepting turns and waits for queued ones.
	Drain(ctx context.Context) error

	// Pending returns the number of sessions with a turn queued or running.
	Pending() int
}

// Config holds the configuration for the pipeline.
type Config struct {
	Registry  *registry.Registry
	Typing    typing.Coordinator
	Responder responder.Responder
	Resolver  business.Resolver
	// Archive is optional; when set every message is written through to it.
	Archive docdb.MessagesCollection

	MaxMessageLength int
	HistoryLimit     int
	ResponderTimeout time.Duration
	QueueSize        int
	Logger           *zerolog.Logger
}

type service struct {
	registry  *registry.Registry
	typing    typing.Coordinator
	responder responder.Responder
	resolver  business.Resolver
	archive   docdb.MessagesCollection

	maxLength    int
	historyLimit int
	timeout      time.Duration
	queue        *turnQueue
	logger       zerolog.Logger
}

// NewService creates a new message pipeline.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Typing == nil {
		return nil, fmt.Errorf("typing coordinator is required")
	}
	if cfg.Responder == nil {
		return nil, fmt.Errorf("responder is required")
	}

	s := &service{
		registry:     cfg.Registry,
		typing:       cfg.Typing,
		responder:    cfg.Responder,
		resolver:     cfg.Resolver,
		archive:      cfg.Archive,
		maxLength:    cfg.MaxMessageLength,
		historyLimit: cfg.HistoryLimit,
		timeout:      cfg.ResponderTimeout,
		logger:       log.Logger,
	}
	if s.maxLength <= 0 {
		s.maxLength = models.MaxMessageLength
	}
	if s.historyLimit <= 0 {
		s.historyLimit = DefaultHistoryLimit
	}
	if s.timeout <= 0 {
		s.timeout = DefaultResponderTimeout
	}
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	}
	s.logger = s.logger.With().Str("component", "pipeline").Logger()

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s.queue = newTurnQueue(queueSize, s.process)

	return s, nil
}

func (s *service) Submit(_ context.Context, sessionID, rawText string) error {
	if !s.isActive(sessionID) {
		return domainerrors.NewSessionNotFoundError(sessionID)
	}

	text, n := models.NormalizeContent(rawText)
	if n == 0 {
		return domainerrors.NewEmptyMessageError()
	}
	if n > s.maxLength {
		return domainerrors.NewMessageTooLongError(s.maxLength)
	}

	return s.enqueue(&turn{sessionID: sessionID, text: text})
}

func (s *service) Greet(_ context.Context, sessionID string) error {
	if !s.isActive(sessionID) {
		return domainerrors.NewSessionNotFoundError(sessionID)
	}
	return s.enqueue(&turn{sessionID: sessionID, greeting: true})
}

func (s *service) Drain(ctx context.Context) error {
	return s.queue.Stop(ctx)
}

func (s *service) Pending() int {
	return s.queue.Pending()
}

func (s *service) isActive(sessionID string) bool {
	sess, ok := s.registry.Get(sessionID)
	return ok && sess.Active
}

func (s *service) enqueue(t *turn) error {
	err := s.queue.Enqueue(t)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errQueueFull):
		s.logger.Warn().Str("session_id", t.sessionID).Msg("turn queue full")
		return domainerrors.NewSessionBusyError(t.sessionID)
	default:
		return domainerrors.NewServiceUnavailableError("message pipeline", err)
	}
}

// process runs one turn to completion. It always ends with exactly one
// assistant message unless the session disappeared in the meantime.
func (s *service) process(t *turn) {
	logger := s.logger.With().Str("session_id", t.sessionID).Bool("greeting", t.greeting).Logger()
	s.registry.Touch(t.sessionID)

	if !t.greeting {
		msg, err := s.registry.Append(t.sessionID, models.RoleUser, t.text, nil)
		if err != nil {
			logger.Info().Err(err).Msg("session gone before turn started")
			return
		}
		s.deliver(msg, logger)
	}

	s.typing.Start(t.sessionID, models.RoleAssistant)
	stopKeepalive := s.keepTyping(t.sessionID)
	reply, meta, ok := s.generate(t, logger)
	stopKeepalive()

	msg, err := s.registry.Append(t.sessionID, models.RoleAssistant, reply.Text, meta)
	if err != nil {
		s.typing.Clear(t.sessionID)
		logger.Info().Err(err).Msg("session deleted before reply completed, reply dropped")
		return
	}
	s.deliver(msg, logger)
	s.typing.Stop(t.sessionID, models.RoleAssistant)

	if ok && models.IsBookingIntent(reply.Intent) && len(reply.BookingData) > 0 {
		frame := protocol.NewBookingIntent(t.sessionID, reply.BookingData)
		if _, err := s.registry.Broadcast(t.sessionID, frame, registry.AudienceAll); err != nil {
			logger.Debug().Err(err).Msg("booking intent not delivered")
		}
	}
}

// generate calls the responder. On any failure it returns the apology reply and ok=false.
func (s *service) generate(t *turn, logger zerolog.Logger) (*responder.Reply, *models.MessageMetadata, bool) {
	req := &responder.ReplyRequest{
		SessionID: t.sessionID,
		History:   s.registry.Recent(t.sessionID, s.historyLimit),
		Message:   t.text,
		Greeting:  t.greeting,
	}
	if sess, found := s.registry.Get(t.sessionID); found {
		req.Participant = sess.Participant
		req.Business = s.resolve(sess.BusinessContextID, logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.responder.GenerateReply(ctx, req)
	if err == nil {
		err = responder.Validate(reply)
	}
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		logger.Error().Err(err).Int64("elapsed_ms", elapsed).Msg("responder failed, sending apology")
		return &responder.Reply{Text: ApologyText, Intent: models.IntentError},
			&models.MessageMetadata{Intent: models.IntentError, Confidence: 0, ProcessingTimeMs: elapsed},
			false
	}

	reply.Text = truncate(reply.Text, s.maxLength)
	logger.Debug().Str("intent", reply.Intent).Int64("elapsed_ms", elapsed).Msg("reply generated")
	return reply, &models.MessageMetadata{
		Intent:           reply.Intent,
		Confidence:       reply.Confidence,
		ProcessingTimeMs: elapsed,
	}, true
}

func (s *service) resolve(businessContextID string, logger zerolog.Logger) *models.BusinessContext {
	if s.resolver == nil || businessContextID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	bc, err := s.resolver.ResolveContext(ctx, businessContextID)
	if err != nil {
		logger.Warn().Err(err).Str("business_context_id", businessContextID).Msg("replying without business context")
		return nil
	}
	return bc
}

// keepTyping refreshes the assistant typing indicator until the returned func is called.
func (s *service) keepTyping(sessionID string) func() {
	interval := typing.DefaultTimeout / 2
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.typing.Start(sessionID, models.RoleAssistant)
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// deliver broadcasts msg to the session and writes it through to the archive.
func (s *service) deliver(msg models.Message, logger zerolog.Logger) {
	if _, err := s.registry.Broadcast(msg.SessionID, protocol.NewMessageEvent(msg), registry.AudienceAll); err != nil {
		logger.Debug().Err(err).Str("message_id", msg.ID).Msg("message not broadcast")
	}

	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultArchiveTimeout)
	defer cancel()
	if err := s.archive.Add(ctx, &msg); err != nil {
		logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to archive message")
	}
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
