package gateway

import (
	"sync"
	"time"

	"github.com/telnet2/sessiongw/channel"
)

// connKind mirrors the classification in spec.md §4.6 bullet 3.
type connKind string

const (
	connKindAssistant connKind = "assistant"
	connKindPTY       connKind = "pty"
)

// liveness tracks the two independent timers spec.md §4.6 bullet 7
// describes: the channel-level ping/pong and the application-level
// heartbeat.
type liveness struct {
	mu            sync.Mutex
	lastHeartbeat time.Time
	isAlive       bool
}

func (l *liveness) touchHeartbeat() {
	l.mu.Lock()
	l.lastHeartbeat = time.Now()
	l.isAlive = true
	l.mu.Unlock()
}

func (l *liveness) touchPong() {
	l.mu.Lock()
	l.isAlive = true
	l.mu.Unlock()
}

func (l *liveness) checkAndArm() (wasAlive bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	wasAlive = l.isAlive
	l.isAlive = false
	return wasAlive
}

func (l *liveness) heartbeatAge() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastHeartbeat.IsZero() {
		return 0
	}
	return time.Since(l.lastHeartbeat)
}

// conn is a single accepted Connection (the entity from spec.md §3).
type conn struct {
	id       string
	kind     connKind
	userID   string
	ch       *channel.Channel
	liveness liveness

	mu              sync.Mutex
	boundSessionIDs map[string]bool
}

func newConn(id string, kind connKind, userID string, ch *channel.Channel) *conn {
	return &conn{
		id:              id,
		kind:            kind,
		userID:          userID,
		ch:              ch,
		boundSessionIDs: make(map[string]bool),
		liveness:        liveness{lastHeartbeat: time.Now(), isAlive: true},
	}
}

func (c *conn) bind(sessionID string) {
	c.mu.Lock()
	c.boundSessionIDs[sessionID] = true
	c.mu.Unlock()
}

func (c *conn) unbind(sessionID string) {
	c.mu.Lock()
	delete(c.boundSessionIDs, sessionID)
	c.mu.Unlock()
}

func (c *conn) sessionIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.boundSessionIDs))
	for id := range c.boundSessionIDs {
		out = append(out, id)
	}
	return out
}
