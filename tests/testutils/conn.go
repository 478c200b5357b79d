package testutils

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
)

// FakeConn is an in-memory connection handle that records every frame it is sent.
type FakeConn struct {
	id string

	mu      sync.Mutex
	frames  []protocol.Frame
	closed  bool
	reason  string
	sendErr error
	closeCh chan struct{}
}

// NewFakeConn creates a FakeConn with a random ID.
func NewFakeConn() *FakeConn {
	return &FakeConn{id: "conn-" + uuid.NewString()[:8], closeCh: make(chan struct{})}
}

// ID returns the connection ID.
func (c *FakeConn) ID() string {
	return c.id
}

// Send records the frame.
func (c *FakeConn) Send(frame protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	c.frames = append(c.frames, frame)
	return nil
}

// Close marks the connection closed with reason. Only the first reason is kept.
func (c *FakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason
	close(c.closeCh)
}

// FailSends makes every further Send return err.
func (c *FakeConn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Closed reports whether Close was called and with which reason.
func (c *FakeConn) Closed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.reason
}

// Frames returns a copy of all recorded frames.
func (c *FakeConn) Frames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// FramesOfType returns the recorded frames of the given type.
func (c *FakeConn) FramesOfType(typ string) []protocol.Frame {
	var out []protocol.Frame
	for _, f := range c.Frames() {
		if f.FrameType() == typ {
			out = append(out, f)
		}
	}
	return out
}

// Types returns the type of every recorded frame in order.
func (c *FakeConn) Types() []string {
	frames := c.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.FrameType()
	}
	return out
}

// WaitForType blocks until at least n frames of typ were recorded.
func (c *FakeConn) WaitForType(t *testing.T, typ string, n int) []protocol.Frame {
	t.Helper()
	var frames []protocol.Frame
	require.Eventually(t, func() bool {
		frames = c.FramesOfType(typ)
		return len(frames) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %q frames, got types %v", n, typ, c.Types())
	return frames
}

// WaitClosed blocks until the connection is closed and returns the reason.
func (c *FakeConn) WaitClosed(t *testing.T) string {
	t.Helper()
	select {
	case <-c.closeCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %s was not closed", c.id)
	}
	_, reason := c.Closed()
	return reason
}
