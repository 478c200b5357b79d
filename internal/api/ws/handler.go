// Package ws serves the chat protocol over websocket connections.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
	domainerrors "github.com/unifiedui/livechat-service/internal/domain/errors"
	"github.com/unifiedui/livechat-service/internal/services/chat/registry"
)

const (
	// DefaultReadLimit caps the size of a single inbound frame. It sits well above
	// the largest legal chat frame (1000 runes, each up to 12 bytes once JSON
	// escaped, plus the envelope) so over-length text is rejected as
	// MESSAGE_TOO_LONG with the connection kept. Larger frames close the socket.
	DefaultReadLimit = 64 * 1024
	// DefaultSendBuffer is how many outbound frames may be queued per connection.
	DefaultSendBuffer = 64
	// DefaultWriteTimeout bounds a single socket write.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultPongWait is how long the server waits for any inbound traffic.
	DefaultPongWait = 60 * time.Second
)

// Gateway receives transport lifecycle events and decoded frames.
type Gateway interface {
	OnConnect(conn registry.Conn)
	Handle(ctx context.Context, conn registry.Conn, frame protocol.Frame)
	OnDisconnect(conn registry.Conn)
}

// Config holds the configuration for the websocket handler.
type Config struct {
	Gateway      Gateway
	ReadLimit    int64
	SendBuffer   int
	WriteTimeout time.Duration
	PongWait     time.Duration
	// AllowedOrigins restricts browser origins; empty allows all.
	AllowedOrigins []string
	Logger         *zerolog.Logger
}

// Handler upgrades HTTP requests and pumps frames between sockets and the gateway.
type Handler struct {
	gateway      Gateway
	upgrader     websocket.Upgrader
	readLimit    int64
	sendBuffer   int
	writeTimeout time.Duration
	pongWait     time.Duration
	logger       zerolog.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(cfg *Config) (*Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	h := &Handler{
		gateway:      cfg.Gateway,
		readLimit:    cfg.ReadLimit,
		sendBuffer:   cfg.SendBuffer,
		writeTimeout: cfg.WriteTimeout,
		pongWait:     cfg.PongWait,
		logger:       log.Logger,
	}
	if h.readLimit <= 0 {
		h.readLimit = DefaultReadLimit
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = DefaultSendBuffer
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = DefaultWriteTimeout
	}
	if h.pongWait <= 0 {
		h.pongWait = DefaultPongWait
	}
	if cfg.Logger != nil {
		h.logger = *cfg.Logger
	}
	h.logger = h.logger.With().Str("component", "ws").Logger()

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 || allowed["*"] {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}

	return h, nil
}

// Serve handles GET /ws.
// @Summary Chat websocket
// @Description Upgrades to a websocket speaking the JSON chat protocol
// @Tags Chat
// @Success 101 "Switching protocols"
// @Router /ws [get]
func (h *Handler) Serve(c *gin.Context) {
	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConn(uuid.NewString(), socket, h.sendBuffer)
	h.gateway.OnConnect(conn)

	go h.writePump(conn)
	go h.readPump(conn)
}

func (h *Handler) readPump(conn *Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		conn.Close("")
		h.gateway.OnDisconnect(conn)
	}()

	conn.ws.SetReadLimit(h.readLimit)
	_ = conn.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("websocket read failed")
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(h.pongWait))

		frame, err := protocol.Decode(data)
		if err != nil {
			code, message := domainerrors.ClientView(domainerrors.NewInvalidMessageError(err.Error()))
			_ = conn.Send(protocol.NewError("", code, message))
			continue
		}
		h.gateway.Handle(ctx, conn, frame)
	}
}

func (h *Handler) writePump(conn *Conn) {
	pingInterval := h.pongWait * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.ws.Close()
	}()

	for {
		select {
		case data := <-conn.send:
			if err := h.write(conn, websocket.TextMessage, data); err != nil {
				conn.Close("")
				return
			}

		case <-ticker.C:
			if err := h.write(conn, websocket.PingMessage, nil); err != nil {
				conn.Close("")
				return
			}

		case <-conn.quit:
			h.flush(conn)
			reason := conn.CloseReason()
			_ = h.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(closeCode(reason), reason))
			if reason != "" {
				h.logger.Debug().Str("conn_id", conn.ID()).Str("reason", reason).Msg("connection closed by server")
			}
			return
		}
	}
}

// flush writes whatever frames are still queued.
func (h *Handler) flush(conn *Conn) {
	for {
		select {
		case data := <-conn.send:
			if err := h.write(conn, websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h *Handler) write(conn *Conn, messageType int, data []byte) error {
	_ = conn.ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return conn.ws.WriteMessage(messageType, data)
}
