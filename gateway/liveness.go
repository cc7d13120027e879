package gateway

import (
	"context"
	"time"

	"github.com/telnet2/sessiongw/wire"
)

// runLivenessLoop implements spec.md §4.6 bullet 7's dual-timer check:
// a channel-level ping/pong cycle on every tick, plus an
// application-level heartbeat staleness check for assistant
// connections. It runs for the lifetime of the dispatcher, stopping
// when ctx is cancelled by Stop.
func (d *Dispatcher) runLivenessLoop(ctx context.Context) {
	ticker := time.NewTicker(d.Cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkLiveness()
		}
	}
}

func (d *Dispatcher) checkLiveness() {
	for _, c := range d.connSnapshot() {
		wasAlive := c.liveness.checkAndArm()
		if !wasAlive {
			d.terminateConn(c)
			continue
		}

		if c.kind == connKindAssistant && c.liveness.heartbeatAge() > 2*d.Cfg.HeartbeatInterval {
			d.terminateConn(c)
			continue
		}

		if err := c.ch.Ping(); err != nil {
			d.terminateConn(c)
		}
	}
}

// terminateConn drops a connection that failed its liveness check: PTY
// sessions are torn down immediately since their state cannot be
// recovered, assistant sessions are left registered for a future
// reconnect (spec.md §4.5's "connection lost" row).
func (d *Dispatcher) terminateConn(c *conn) {
	d.unregisterConn(c.id)

	for _, sessionID := range c.sessionIDs() {
		if c.kind == connKindPTY {
			d.stopPTYSession(sessionID)
		}
	}

	c.ch.Close(wire.CloseNormal, "liveness check failed")
}
