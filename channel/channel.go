// Package channel implements the Framed Channel (C1): a bidirectional
// byte-framed connection with message boundaries, channel-level
// ping/pong, and a half-open closing state, shared by both the
// gateway and client sides of the wire protocol.
package channel

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telnet2/sessiongw/wire"
)

// ErrClosed is returned by Send once the channel has been closed or
// terminated.
var ErrClosed = errors.New("channel: closed")

const writeWait = 10 * time.Second

// Channel wraps a gorilla websocket connection with the send/receive and
// liveness primitives the gateway dispatcher and client session manager
// both depend on.
type Channel struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closing bool
	closed  bool

	onMessage func(wire.Frame)
	onClose   func(code int, reason string)
	onError   func(error)
	onPong    func()

	readOnce sync.Once
}

// New wraps an already-upgraded websocket connection.
func New(conn *websocket.Conn) *Channel {
	c := &Channel{conn: conn}
	conn.SetPongHandler(func(string) error {
		if c.onPong != nil {
			c.onPong()
		}
		return nil
	})
	return c
}

// OnMessage registers the callback invoked for every decoded inbound frame.
func (c *Channel) OnMessage(cb func(wire.Frame)) { c.onMessage = cb }

// OnClose registers the callback invoked once the read loop observes a
// close, whether initiated locally or by the peer.
func (c *Channel) OnClose(cb func(code int, reason string)) { c.onClose = cb }

// OnError registers the callback invoked for read-path errors that are
// not a clean close.
func (c *Channel) OnError(cb func(error)) { c.onError = cb }

// OnPong registers the callback invoked when a channel-level pong is
// observed.
func (c *Channel) OnPong(cb func()) { c.onPong = cb }

// Serve runs the blocking read loop. It returns once the connection is
// closed, either locally or remotely. Callers typically run this in its
// own goroutine.
func (c *Channel) Serve() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			code := wire.CloseNormal
			reason := err.Error()
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
				reason = ce.Text
			}
			c.Terminate()
			if c.onClose != nil {
				c.onClose(code, reason)
			}
			return
		}

		var frame wire.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			if c.onError != nil {
				c.onError(err)
			}
			continue
		}

		if c.onMessage != nil {
			c.onMessage(frame)
		}
	}
}

// Send writes a single frame as a JSON text message.
func (c *Channel) Send(f wire.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a channel-level ping control frame.
func (c *Channel) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close performs a graceful shutdown: it sends a close control frame with
// the given code and reason, then marks the channel closing. The actual
// TCP teardown happens when the peer's acknowledging close is observed
// by Serve, or after a short grace period elapses.
func (c *Channel) Close(code int, reason string) error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closing = true
	msg := websocket.FormatCloseMessage(code, reason)
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.writeMu.Unlock()

	go func() {
		time.Sleep(2 * time.Second)
		c.Terminate()
	}()
	return err
}

// Terminate performs an abortive close: the underlying connection is
// closed immediately with no close handshake.
func (c *Channel) Terminate() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// IsClosing reports whether Close has been called but Terminate has not
// yet run.
func (c *Channel) IsClosing() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.closing && !c.closed
}
