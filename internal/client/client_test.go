package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
	"github.com/unifiedui/livechat-service/internal/client"
	domainerrors "github.com/unifiedui/livechat-service/internal/domain/errors"
	"github.com/unifiedui/livechat-service/internal/domain/models"
	"github.com/unifiedui/livechat-service/tests/testutils"
)

type serverConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *serverConn) send(frame protocol.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteJSON(frame)
}

// fakeServer is a scripted chat server.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	refuse    atomic.Bool
	autoReply atomic.Bool
	dials     atomic.Int32

	mu       sync.Mutex
	conns    []*serverConn
	history  []models.Message
	received []protocol.Frame
	joinErr  string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t}
	fs.autoReply.Store(true)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.dials.Add(1)
		if fs.refuse.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := &serverConn{ws: ws}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()
		fs.serve(conn)
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) serve(conn *serverConn) {
	defer conn.ws.Close()
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		fs.mu.Lock()
		fs.received = append(fs.received, frame)
		history := append([]models.Message(nil), fs.history...)
		joinErr := fs.joinErr
		fs.mu.Unlock()

		switch f := frame.(type) {
		case *protocol.JoinMessage:
			if joinErr != "" {
				conn.send(protocol.NewError(f.SessionID, joinErr, "nope"))
				continue
			}
			conn.send(protocol.NewJoined(f.SessionID, history))
		case *protocol.ChatMessage:
			if !fs.autoReply.Load() {
				continue
			}
			user := newMessage(models.RoleUser, f.Text, nil)
			conn.send(protocol.NewMessageEvent(*user))
			reply := newMessage(models.RoleAssistant, "re: "+f.Text, &models.MessageMetadata{Intent: "general", Confidence: 0.9})
			conn.send(protocol.NewMessageEvent(*reply))
		case *protocol.PingMessage:
			conn.send(protocol.NewPong())
		}
	}
}

// last returns the most recent server side connection.
func (fs *fakeServer) last() *serverConn {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NotEmpty(fs.t, fs.conns)
	return fs.conns[len(fs.conns)-1]
}

func (fs *fakeServer) count(typ string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for _, f := range fs.received {
		if f.FrameType() == typ {
			n++
		}
	}
	return n
}

func (fs *fakeServer) types() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, len(fs.received))
	for i, f := range fs.received {
		out[i] = f.FrameType()
	}
	return out
}

func newMessage(role models.Role, content string, meta *models.MessageMetadata) *models.Message {
	now := time.Now().UTC()
	return &models.Message{
		ID:        models.NewMessageID(now),
		SessionID: testutils.TestSessionID,
		Role:      role,
		Content:   content,
		Timestamp: now,
		Metadata:  meta,
	}
}

func newClient(t *testing.T, fs *fakeServer, mutate func(cfg *client.Config)) *client.Client {
	t.Helper()
	cfg := &client.Config{
		URL:               fs.url(),
		SessionID:         testutils.TestSessionID,
		BusinessContextID: testutils.TestBusinessContextID,
		ParticipantID:     testutils.TestParticipantID,
		RetryDelay:        10 * time.Millisecond,
		PingInterval:      time.Hour,
		TypingTimeout:     time.Hour,
		Logger:            testutils.NopLogger(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	c, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func waitState(t *testing.T, c *client.Client, want client.State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want },
		2*time.Second, 5*time.Millisecond, "state stayed %s, want %s", c.State(), want)
}

func waitJoined(t *testing.T, fs *fakeServer, c *client.Client, joins int) {
	t.Helper()
	waitState(t, c, client.StateConnected)
	require.Eventually(t, func() bool { return fs.count(protocol.TypeJoin) >= joins },
		2*time.Second, 5*time.Millisecond)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *client.Config
	}{
		{name: "nil config", cfg: nil},
		{name: "missing url", cfg: &client.Config{SessionID: "s", BusinessContextID: "b"}},
		{name: "missing session", cfg: &client.Config{URL: "ws://x", BusinessContextID: "b"}},
		{name: "missing business", cfg: &client.Config{URL: "ws://x", SessionID: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := client.New(tt.cfg)
			assert.Error(t, err)
			assert.Nil(t, c)
		})
	}
}

func TestClient_ConnectReplacesLogWithHistory(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	old := newMessage(models.RoleUser, "earlier", nil)
	answer := newMessage(models.RoleAssistant, "answer", nil)
	fs.history = []models.Message{*old, *answer}
	c := newClient(t, fs, nil)

	// Act
	require.NoError(t, c.Connect(context.Background()))

	// Assert
	waitJoined(t, fs, c, 1)
	require.Eventually(t, func() bool { return len(c.Messages()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "earlier", c.Messages()[0].Content)
	assert.False(t, c.AwaitingReply())

	ev := <-c.Events()
	assert.Equal(t, client.StateConnecting, ev.State)
	ev = <-c.Events()
	assert.Equal(t, client.StateConnected, ev.State)
}

func TestClient_HistoryEndingWithUserMessageAwaitsReply(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	fs.history = []models.Message{*newMessage(models.RoleUser, "still waiting", nil)}
	c := newClient(t, fs, nil)

	// Act
	require.NoError(t, c.Connect(context.Background()))

	// Assert
	waitJoined(t, fs, c, 1)
	require.Eventually(t, c.AwaitingReply, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.SendMessage("hello"), client.ErrTurnInFlight)
}

func TestClient_SendMessage_RequiresConnection(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, nil)

	// Act
	err := c.SendMessage("hello")

	// Assert
	assert.ErrorIs(t, err, client.ErrNotConnected)
	assert.ErrorIs(t, c.Typing(), client.ErrNotConnected)
	assert.ErrorIs(t, c.Terminate(), client.ErrNotConnected)
	assert.Equal(t, int32(0), fs.dials.Load())
}

func TestClient_SendMessage_LocalValidation(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantCode string
	}{
		{name: "empty", text: "", wantCode: domainerrors.ErrCodeEmptyMessage},
		{name: "whitespace", text: " \n\t ", wantCode: domainerrors.ErrCodeEmptyMessage},
		{name: "too long", text: strings.Repeat("a", 1001), wantCode: domainerrors.ErrCodeMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			fs := newFakeServer(t)
			c := newClient(t, fs, nil)
			require.NoError(t, c.Connect(context.Background()))
			waitJoined(t, fs, c, 1)

			// Act
			err := c.SendMessage(tt.text)

			// Assert
			assert.True(t, domainerrors.HasCode(err, tt.wantCode), "got %v", err)
			assert.False(t, c.AwaitingReply())
			assert.Equal(t, 0, fs.count(protocol.TypeMessage))
		})
	}
}

func TestClient_SendMessage_OneTurnInFlight(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	fs.autoReply.Store(false)
	c := newClient(t, fs, nil)
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)

	// Act
	first := c.SendMessage("  hello  ")
	second := c.SendMessage("again")

	// Assert
	require.NoError(t, first)
	assert.ErrorIs(t, second, client.ErrTurnInFlight)
	require.Eventually(t, func() bool { return fs.count(protocol.TypeMessage) == 1 }, 2*time.Second, 5*time.Millisecond)

	fs.mu.Lock()
	sent := fs.received[len(fs.received)-1].(*protocol.ChatMessage)
	fs.mu.Unlock()
	assert.Equal(t, "hello", sent.Text)

	// The assistant reply releases the turn.
	reply := newMessage(models.RoleAssistant, "hi there", nil)
	fs.last().send(protocol.NewMessageEvent(*reply))
	require.Eventually(t, func() bool { return !c.AwaitingReply() }, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, c.SendMessage("again"))
}

func TestClient_ErrorFrameReleasesTurn(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	fs.autoReply.Store(false)
	c := newClient(t, fs, nil)
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)
	require.NoError(t, c.SendMessage("hello"))

	// Act
	fs.last().send(protocol.NewError(testutils.TestSessionID, domainerrors.ErrCodeSessionBusy, "busy"))

	// Assert
	require.Eventually(t, func() bool { return !c.AwaitingReply() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, client.StateConnected, c.State())
}

func TestClient_ConversationRoundTrip(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, nil)
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)

	// Act
	require.NoError(t, c.SendMessage("hello"))

	// Assert
	require.Eventually(t, func() bool { return len(c.Messages()) == 2 }, 2*time.Second, 5*time.Millisecond)
	msgs := c.Messages()
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "re: hello", msgs[1].Content)
	assert.False(t, c.AwaitingReply())
}

func TestClient_TypingDebounce(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, func(cfg *client.Config) { cfg.TypingTimeout = 50 * time.Millisecond })
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)

	// Act
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Typing())
	}

	// Assert
	require.Eventually(t, func() bool { return fs.count(protocol.TypeTypingStop) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, fs.count(protocol.TypeTypingStart))
	assert.Equal(t, []string{protocol.TypeJoin, protocol.TypeTypingStart, protocol.TypeTypingStop}, fs.types())
}

func TestClient_SendStopsTyping(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, nil)
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)
	require.NoError(t, c.Typing())

	// Act
	require.NoError(t, c.SendMessage("hello"))

	// Assert
	require.Eventually(t, func() bool { return fs.count(protocol.TypeMessage) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{protocol.TypeJoin, protocol.TypeTypingStart, protocol.TypeTypingStop, protocol.TypeMessage}, fs.types())
}

func TestClient_PingsWhileConnected(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, func(cfg *client.Config) { cfg.PingInterval = 20 * time.Millisecond })

	// Act
	require.NoError(t, c.Connect(context.Background()))

	// Assert
	require.Eventually(t, func() bool { return fs.count(protocol.TypePing) >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, client.StateConnected, c.State())
}

func TestClient_ReconnectsAfterTransportLoss(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, nil)
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)

	// Act
	_ = fs.last().ws.Close()

	// Assert
	require.Eventually(t, func() bool { return fs.count(protocol.TypeJoin) == 2 }, 2*time.Second, 5*time.Millisecond)
	waitState(t, c, client.StateConnected)

	var states []client.State
	for len(c.Events()) > 0 {
		if ev := <-c.Events(); ev.Frame == nil {
			states = append(states, ev.State)
		}
	}
	assert.Contains(t, states, client.StateError)
	assert.Equal(t, client.StateConnected, states[len(states)-1])
}

func TestClient_ParksAfterRetriesAndResumesOnRetry(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, func(cfg *client.Config) { cfg.MaxRetries = 2 })
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)

	// Act
	fs.refuse.Store(true)
	_ = fs.last().ws.Close()

	// Assert: one initial dial plus two automatic retries.
	require.Eventually(t, func() bool { return fs.dials.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	waitState(t, c, client.StateError)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), fs.dials.Load())
	assert.Equal(t, client.StateError, c.State())

	fs.refuse.Store(false)
	require.NoError(t, c.Retry(context.Background()))
	waitJoined(t, fs, c, 2)
}

func TestClient_ConnectFailureRetries(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	fs.refuse.Store(true)
	c := newClient(t, fs, func(cfg *client.Config) { cfg.MaxRetries = 1 })

	// Act
	err := c.Connect(context.Background())

	// Assert
	require.Error(t, err)
	require.Eventually(t, func() bool { return fs.dials.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	waitState(t, c, client.StateError)
}

func TestClient_ServerCloseReasons(t *testing.T) {
	tests := []struct {
		name      string
		reason    string
		wantState client.State
	}{
		{name: "replaced", reason: protocol.CloseReasonReplaced, wantState: client.StateDisconnected},
		{name: "terminated", reason: protocol.CloseReasonTerminated, wantState: client.StateDisconnected},
		{name: "shutdown", reason: protocol.CloseReasonShutdown, wantState: client.StateConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			fs := newFakeServer(t)
			c := newClient(t, fs, nil)
			require.NoError(t, c.Connect(context.Background()))
			waitJoined(t, fs, c, 1)
			conn := fs.last()

			// Act
			conn.mu.Lock()
			_ = conn.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, tt.reason),
				time.Now().Add(time.Second))
			conn.mu.Unlock()

			// Assert
			if tt.wantState == client.StateDisconnected {
				waitState(t, c, client.StateDisconnected)
				time.Sleep(50 * time.Millisecond)
				assert.Equal(t, 1, fs.count(protocol.TypeJoin))
				return
			}
			require.Eventually(t, func() bool { return fs.count(protocol.TypeJoin) == 2 }, 2*time.Second, 5*time.Millisecond)
			waitState(t, c, tt.wantState)
		})
	}
}

func TestClient_SessionReplacedFrameEndsSession(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, nil)
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)
	conn := fs.last()

	// Act
	conn.send(protocol.NewSessionReplaced(testutils.TestSessionID))
	time.Sleep(20 * time.Millisecond)
	_ = conn.ws.Close()

	// Assert
	waitState(t, c, client.StateDisconnected)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, fs.count(protocol.TypeJoin))
}

func TestClient_BusinessNotConfiguredParks(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	fs.joinErr = domainerrors.ErrCodeBusinessNotConfigured
	c := newClient(t, fs, nil)

	// Act
	require.NoError(t, c.Connect(context.Background()))

	// Assert
	waitState(t, c, client.StateError)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fs.dials.Load())
	assert.Equal(t, client.StateError, c.State())
}

func TestClient_CloseDoesNotReconnect(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, nil)
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)

	// Act
	c.Close()

	// Assert
	assert.Equal(t, client.StateDisconnected, c.State())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fs.dials.Load())
	assert.ErrorIs(t, c.SendMessage("hello"), client.ErrNotConnected)
}

func TestClient_Terminate(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, nil)
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)

	// Act
	err := c.Terminate()

	// Assert
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fs.count(protocol.TypeTerminate) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestClient_EventsCarryFrames(t *testing.T) {
	// Arrange
	fs := newFakeServer(t)
	c := newClient(t, fs, nil)
	require.NoError(t, c.Connect(context.Background()))
	waitJoined(t, fs, c, 1)

	// Act
	fs.last().send(protocol.NewBookingIntent(testutils.TestSessionID, map[string]any{"service": "haircut"}))

	// Assert
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if booking, ok := ev.Frame.(*protocol.BookingIntentEvent); ok {
				assert.Equal(t, "haircut", booking.BookingData["service"])
				return
			}
		case <-deadline:
			t.Fatal(errors.New("booking_intent event not delivered"))
		}
	}
}
