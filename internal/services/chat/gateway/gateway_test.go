package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
	"github.com/unifiedui/livechat-service/internal/core/business"
	"github.com/unifiedui/livechat-service/internal/core/responder"
	domainerrors "github.com/unifiedui/livechat-service/internal/domain/errors"
	"github.com/unifiedui/livechat-service/internal/domain/models"
	"github.com/unifiedui/livechat-service/internal/services/chat/gateway"
	"github.com/unifiedui/livechat-service/internal/services/chat/pipeline"
	"github.com/unifiedui/livechat-service/internal/services/chat/registry"
	"github.com/unifiedui/livechat-service/internal/services/chat/typing"
	"github.com/unifiedui/livechat-service/tests/mocks"
	"github.com/unifiedui/livechat-service/tests/testutils"
)

type responderFunc func(ctx context.Context, req *responder.ReplyRequest) (*responder.Reply, error)

func (f responderFunc) GenerateReply(ctx context.Context, req *responder.ReplyRequest) (*responder.Reply, error) {
	return f(ctx, req)
}

type fixture struct {
	reg     *registry.Registry
	typing  typing.Coordinator
	gateway *gateway.Gateway
}

func setup(t *testing.T, joinGrace time.Duration) *fixture {
	t.Helper()

	reg := registry.New(&registry.Config{Logger: testutils.NopLogger()})
	coord, err := typing.NewCoordinator(&typing.Config{Broadcaster: reg, Logger: testutils.NopLogger()})
	require.NoError(t, err)

	reply := responderFunc(func(_ context.Context, req *responder.ReplyRequest) (*responder.Reply, error) {
		if req.Greeting {
			return &responder.Reply{Text: "Welcome!", Intent: models.IntentGreet, Confidence: 1}, nil
		}
		return &responder.Reply{Text: "re: " + req.Message, Intent: "general", Confidence: 0.8}, nil
	})

	resolver := &mocks.MockResolver{}
	resolver.On("ResolveContext", mock.Anything, testutils.TestBusinessContextID).
		Return(testutils.NewTestBusinessContext(), nil).Maybe()
	resolver.On("ResolveContext", mock.Anything, mock.Anything).
		Return(nil, business.ErrNotConfigured).Maybe()

	p, err := pipeline.NewService(&pipeline.Config{
		Registry:  reg,
		Typing:    coord,
		Responder: reply,
		Resolver:  resolver,
		Logger:    testutils.NopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Drain(ctx)
	})

	g, err := gateway.New(&gateway.Config{
		Registry:  reg,
		Pipeline:  p,
		Typing:    coord,
		Resolver:  resolver,
		JoinGrace: joinGrace,
		Logger:    testutils.NopLogger(),
	})
	require.NoError(t, err)

	return &fixture{reg: reg, typing: coord, gateway: g}
}

func joinFrame(sessionID, businessID string) *protocol.JoinMessage {
	return &protocol.JoinMessage{
		BaseMessage:       protocol.BaseMessage{Type: protocol.TypeJoin, SessionID: sessionID},
		BusinessContextID: businessID,
		ParticipantID:     testutils.TestParticipantID,
		Participant:       testutils.NewTestParticipant(),
	}
}

func chatFrame(sessionID, text string) *protocol.ChatMessage {
	return &protocol.ChatMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeMessage, SessionID: sessionID},
		Text:        text,
	}
}

func (f *fixture) join(t *testing.T) *testutils.FakeConn {
	t.Helper()
	conn := testutils.NewFakeConn()
	f.gateway.OnConnect(conn)
	f.gateway.Handle(context.Background(), conn, joinFrame(testutils.TestSessionID, testutils.TestBusinessContextID))
	conn.WaitForType(t, protocol.TypeJoined, 1)
	return conn
}

func errorCodes(conn *testutils.FakeConn) []string {
	var codes []string
	for _, f := range conn.FramesOfType(protocol.TypeError) {
		codes = append(codes, f.(*protocol.ErrorMessage).Code)
	}
	return codes
}

func TestNew_Validation(t *testing.T) {
	_, err := gateway.New(nil)
	assert.EqualError(t, err, "config is required")

	_, err = gateway.New(&gateway.Config{})
	assert.EqualError(t, err, "registry is required")
}

func TestJoin_FirstJoinGreets(t *testing.T) {
	// Arrange
	f := setup(t, time.Minute)

	// Act
	conn := f.join(t)

	// Assert
	joined := conn.FramesOfType(protocol.TypeJoined)[0].(*protocol.JoinedMessage)
	assert.Equal(t, testutils.TestSessionID, joined.SessionID)
	assert.Empty(t, joined.RecentHistory)

	greeting := conn.WaitForType(t, protocol.TypeMessage, 1)[0].(*protocol.MessageEvent)
	assert.Equal(t, models.RoleAssistant, greeting.Message.Role)
	assert.Equal(t, "Welcome!", greeting.Message.Content)

	sess, ok := f.reg.Get(testutils.TestSessionID)
	require.True(t, ok)
	assert.True(t, sess.Active)
	assert.Equal(t, testutils.TestParticipantID, sess.ParticipantID)
	assert.Equal(t, "Ada", sess.Participant.Name)
}

func TestJoin_ReconnectGetsHistoryWithoutSecondGreeting(t *testing.T) {
	// Arrange
	f := setup(t, time.Minute)
	first := f.join(t)
	first.WaitForType(t, protocol.TypeMessage, 1)
	f.gateway.Handle(context.Background(), first, chatFrame(testutils.TestSessionID, "Hi"))
	first.WaitForType(t, protocol.TypeMessage, 3)
	first.WaitForType(t, protocol.TypeTyping, 4)

	// Act
	second := f.join(t)

	// Assert
	assert.Equal(t, protocol.CloseReasonReplaced, first.WaitClosed(t))
	assert.Len(t, first.FramesOfType(protocol.TypeSessionReplaced), 1)

	joined := second.FramesOfType(protocol.TypeJoined)[0].(*protocol.JoinedMessage)
	require.Len(t, joined.RecentHistory, 3)
	assert.Equal(t, "Welcome!", joined.RecentHistory[0].Content)
	assert.Equal(t, "Hi", joined.RecentHistory[1].Content)
	assert.Equal(t, "re: Hi", joined.RecentHistory[2].Content)

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, second.FramesOfType(protocol.TypeMessage))
}

func TestJoin_UnknownBusinessLeavesConnectionOpen(t *testing.T) {
	// Arrange
	f := setup(t, time.Minute)
	conn := testutils.NewFakeConn()
	f.gateway.OnConnect(conn)

	// Act
	f.gateway.Handle(context.Background(), conn, joinFrame(testutils.TestSessionID, "unknown-biz"))

	// Assert
	assert.Equal(t, []string{domainerrors.ErrCodeBusinessNotConfigured}, errorCodes(conn))
	closed, _ := conn.Closed()
	assert.False(t, closed)
	_, ok := f.reg.Get(testutils.TestSessionID)
	assert.False(t, ok)

	f.gateway.Handle(context.Background(), conn, chatFrame(testutils.TestSessionID, "hello?"))
	assert.Equal(t, domainerrors.ErrCodeSessionNotFound, errorCodes(conn)[1])
}

func TestJoin_MissingFields(t *testing.T) {
	f := setup(t, time.Minute)
	conn := testutils.NewFakeConn()
	f.gateway.OnConnect(conn)

	f.gateway.Handle(context.Background(), conn, joinFrame("", testutils.TestBusinessContextID))

	assert.Equal(t, []string{domainerrors.ErrCodeInvalidMessage}, errorCodes(conn))
}

func TestJoinGrace_ClosesSilentTransport(t *testing.T) {
	f := setup(t, 30*time.Millisecond)
	conn := testutils.NewFakeConn()

	f.gateway.OnConnect(conn)

	assert.Equal(t, protocol.CloseReasonJoinTimeout, conn.WaitClosed(t))
}

func TestJoinGrace_JoinCancelsTimer(t *testing.T) {
	f := setup(t, 30*time.Millisecond)

	conn := f.join(t)
	time.Sleep(80 * time.Millisecond)

	closed, _ := conn.Closed()
	assert.False(t, closed)
}

func TestMessage_UnboundTransport(t *testing.T) {
	f := setup(t, time.Minute)
	conn := testutils.NewFakeConn()
	f.gateway.OnConnect(conn)

	f.gateway.Handle(context.Background(), conn, chatFrame(testutils.TestSessionID, "hi"))
	f.gateway.Handle(context.Background(), conn, &protocol.TypingMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeTypingStart, SessionID: testutils.TestSessionID},
	})

	assert.Equal(t, []string{domainerrors.ErrCodeSessionNotFound, domainerrors.ErrCodeSessionNotFound}, errorCodes(conn))
}

func TestMessage_ForeignSessionIsRejected(t *testing.T) {
	f := setup(t, time.Minute)
	conn := f.join(t)

	f.gateway.Handle(context.Background(), conn, chatFrame("someone-else", "hi"))

	assert.Equal(t, []string{domainerrors.ErrCodeSessionNotFound}, errorCodes(conn))
}

func TestMessage_ValidationErrorFrame(t *testing.T) {
	f := setup(t, time.Minute)
	conn := f.join(t)
	conn.WaitForType(t, protocol.TypeMessage, 1)

	f.gateway.Handle(context.Background(), conn, chatFrame(testutils.TestSessionID, "   "))

	assert.Equal(t, []string{domainerrors.ErrCodeEmptyMessage}, errorCodes(conn))
	assert.Len(t, f.reg.Recent(testutils.TestSessionID, 20), 1)
}

func TestTyping_ReachesObserversOnly(t *testing.T) {
	// Arrange
	f := setup(t, time.Minute)
	participant := f.join(t)
	participant.WaitForType(t, protocol.TypeTyping, 2)
	observer := testutils.NewFakeConn()
	f.gateway.OnConnect(observer)
	f.gateway.Handle(context.Background(), observer, &protocol.WatchMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeWatch, SessionID: testutils.TestSessionID},
	})
	observer.WaitForType(t, protocol.TypeJoined, 1)

	// Act
	f.gateway.Handle(context.Background(), participant, &protocol.TypingMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeTypingStart, SessionID: testutils.TestSessionID},
	})

	// Assert
	ev := observer.WaitForType(t, protocol.TypeTyping, 1)[0].(*protocol.TypingEvent)
	assert.Equal(t, models.RoleUser, ev.Role)
	assert.True(t, ev.IsTyping)
	assert.Len(t, participant.FramesOfType(protocol.TypeTyping), 2)
	assert.True(t, f.typing.IsTyping(testutils.TestSessionID, models.RoleUser))
}

func TestDisconnect_NotifiesObserversAndKeepsSession(t *testing.T) {
	// Arrange
	f := setup(t, time.Minute)
	participant := f.join(t)
	observer := testutils.NewFakeConn()
	f.gateway.OnConnect(observer)
	f.gateway.OnWatchRequest(observer, &protocol.WatchMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeWatch, SessionID: testutils.TestSessionID},
	})

	// Act
	f.gateway.OnDisconnect(participant)

	// Assert
	ev := observer.WaitForType(t, protocol.TypeParticipantDisconnected, 1)[0].(*protocol.ParticipantDisconnectedEvent)
	assert.Equal(t, testutils.TestParticipantID, ev.ParticipantID)
	sess, ok := f.reg.Get(testutils.TestSessionID)
	require.True(t, ok)
	assert.False(t, sess.Active)
	assert.Equal(t, 1, f.gateway.Connections())
}

func TestDisconnect_ReplacedConnectionDoesNotUnbindSuccessor(t *testing.T) {
	f := setup(t, time.Minute)
	first := f.join(t)
	second := f.join(t)

	f.gateway.OnDisconnect(first)

	assert.True(t, f.reg.IsBound(testutils.TestSessionID, second.ID()))
	sess, _ := f.reg.Get(testutils.TestSessionID)
	assert.True(t, sess.Active)
}

func TestPing(t *testing.T) {
	f := setup(t, time.Minute)
	conn := testutils.NewFakeConn()
	f.gateway.OnConnect(conn)

	f.gateway.Handle(context.Background(), conn, &protocol.PingMessage{BaseMessage: protocol.BaseMessage{Type: protocol.TypePing}})

	pong := conn.FramesOfType(protocol.TypePong)
	require.Len(t, pong, 1)
	assert.NotZero(t, pong[0].(*protocol.PongMessage).Timestamp)
}

func TestTerminate(t *testing.T) {
	// Arrange
	f := setup(t, time.Minute)
	conn := f.join(t)
	conn.WaitForType(t, protocol.TypeTyping, 2)

	// Act
	f.gateway.Handle(context.Background(), conn, &protocol.TerminateMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeTerminate, SessionID: testutils.TestSessionID},
	})

	// Assert
	assert.Equal(t, protocol.CloseReasonTerminated, conn.WaitClosed(t))
	_, ok := f.reg.Get(testutils.TestSessionID)
	assert.False(t, ok)
	assert.False(t, f.gateway.TerminateSession(testutils.TestSessionID))
}

func TestWatch_UnknownSession(t *testing.T) {
	f := setup(t, time.Minute)
	conn := testutils.NewFakeConn()
	f.gateway.OnConnect(conn)

	f.gateway.OnWatchRequest(conn, &protocol.WatchMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeWatch, SessionID: "nope"},
	})

	assert.Equal(t, []string{domainerrors.ErrCodeSessionNotFound}, errorCodes(conn))
}

func TestHandle_UnsupportedFrame(t *testing.T) {
	f := setup(t, time.Minute)
	conn := testutils.NewFakeConn()

	f.gateway.Handle(context.Background(), conn, protocol.NewPong())

	assert.Equal(t, []string{domainerrors.ErrCodeInvalidMessage}, errorCodes(conn))
}

func TestShutdown_ClosesAllTransports(t *testing.T) {
	f := setup(t, time.Minute)
	joined := f.join(t)
	idle := testutils.NewFakeConn()
	f.gateway.OnConnect(idle)

	f.gateway.Shutdown(protocol.CloseReasonShutdown)

	assert.Equal(t, protocol.CloseReasonShutdown, joined.WaitClosed(t))
	assert.Equal(t, protocol.CloseReasonShutdown, idle.WaitClosed(t))
}
