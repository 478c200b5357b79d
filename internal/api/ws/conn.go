package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
)

var (
	// ErrConnClosed is returned by Send after Close.
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowClient is returned by Send when the outbound buffer is full.
	ErrSlowClient = errors.New("client is not reading fast enough")
)

// Conn is a websocket transport. Outbound frames are queued and written by a single writer goroutine.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	quit chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	reason    string
}

func newConn(id string, ws *websocket.Conn, bufferSize int) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, bufferSize),
		quit: make(chan struct{}),
	}
}

// ID returns the connection ID.
func (c *Conn) ID() string {
	return c.id
}

// Send queues frame without blocking. A full buffer closes the connection.
func (c *Conn) Send(frame protocol.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-c.quit:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.quit:
		return ErrConnClosed
	default:
		go c.Close(protocol.CloseReasonSlowClient)
		return ErrSlowClient
	}
}

// Close asks the writer to flush queued frames and close the socket with reason.
// Only the first reason is kept.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.quit)
	})
}

// CloseReason returns the reason passed to Close.
func (c *Conn) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// closeCode maps a close reason onto a websocket close code.
func closeCode(reason string) int {
	switch reason {
	case protocol.CloseReasonJoinTimeout:
		return websocket.ClosePolicyViolation
	case protocol.CloseReasonShutdown:
		return websocket.CloseGoingAway
	case protocol.CloseReasonSlowClient:
		return websocket.CloseTryAgainLater
	default:
		return websocket.CloseNormalClosure
	}
}
