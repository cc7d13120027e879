package gateway

import (
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/telnet2/sessiongw/channel"
	"github.com/telnet2/sessiongw/wire"
)

// serveConn wires a freshly upgraded websocket into a conn, registers
// it, and blocks until the channel closes — spec.md §4.6's dispatch
// tables run from the channel's OnMessage callback, so inbound frames
// on this connection are processed strictly in receive order (§5).
func (d *Dispatcher) serveConn(wsConn *websocket.Conn, kind connKind, userID string) {
	ch := channel.New(wsConn)
	c := newConn(newConnID(), kind, userID, ch)
	d.registerConn(c)

	table := d.assistantTable()
	if kind == connKindPTY {
		table = d.ptyTable()
	}

	ch.OnMessage(func(f wire.Frame) {
		handler, ok := table[f.Type]
		if !ok {
			d.Logger.Printf("gateway: unknown frame type %q on conn %s, ignoring", f.Type, c.id)
			d.sendError(c, f.SessionID, fmt.Sprintf("unknown frame type %q", f.Type))
			return
		}
		handler(c, f)
	})

	ch.OnClose(func(code int, reason string) {
		d.onConnClosed(c)
	})

	ch.OnError(func(err error) {
		d.Logger.Printf("gateway: frame decode error on conn %s: %v", c.id, err)
		d.sendError(c, "", fmt.Sprintf("malformed frame: %v", err))
	})

	ch.OnPong(func() {
		c.liveness.touchPong()
	})

	ch.Serve()
}

// onConnClosed implements the "connection lost" row of spec.md §4.5's
// transition tables: assistant Logical Sessions are preserved so a
// reconnecting client can resume; PTY sessions are torn down because
// their state is unrecoverable.
func (d *Dispatcher) onConnClosed(c *conn) {
	d.unregisterConn(c.id)

	for _, sessionID := range c.sessionIDs() {
		if c.kind == connKindPTY {
			d.stopPTYSession(sessionID)
		}
		// Assistant sessions are left registered; ClearActiveProcess is
		// not called here because the child may still be running and
		// its own exit callback will clear it.
	}
}

type frameHandler func(c *conn, f wire.Frame)
