// Package client implements the Client Session Manager (C8): the
// connection lifecycle, per-session local state, offline queue, and
// heartbeat timer that spec.md §4.8 describes for a browser client,
// reworked as an importable Go package so cmd/gateway-client and other
// Go programs can drive a gateway connection directly.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/telnet2/sessiongw/channel"
	"github.com/telnet2/sessiongw/wire"
)

const (
	heartbeatInterval       = 15 * time.Second
	reconnectBaseDelay      = 3 * time.Second
	reconnectMaxDelay       = 30 * time.Second
	maxReconnectAttempts    = 9
	reconnectFailureMessage = "Máximo de tentativas de reconexão atingido"
)

// Options configures a Client.
type Options struct {
	// ControlBaseURL is the HTTP origin serving the terminal-port and
	// current-user sibling endpoints, e.g. "http://localhost:8080".
	ControlBaseURL string
	HTTPClient     *http.Client
}

// UpdateListener is notified whenever connection or session state
// changes, letting a UI observe the client without polling. sessionID
// is empty for connection-wide updates.
type UpdateListener func(sessionID string)

type pendingFrame struct {
	seq   int64
	frame wire.Frame
}

// Client is the Client Session Manager (C8).
type Client struct {
	opts Options

	mu             sync.Mutex
	sessions       map[string]*LocalSession
	order          []string
	current        string
	status         ConnectionStatus
	reconnectState ReconnectStatus
	reconnectTries int
	lastError      string
	closed         bool

	ch         *channel.Channel
	pending    []pendingFrame
	pendingSeq int64

	heartbeatCancel context.CancelFunc
	reconnectCancel context.CancelFunc

	onUpdate UpdateListener
}

// New returns a disconnected Client.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		opts:           opts,
		sessions:       make(map[string]*LocalSession),
		status:         StatusClosed,
		reconnectState: ReconnectIdle,
	}
}

// OnUpdate registers the listener invoked after any observable state change.
func (c *Client) OnUpdate(fn UpdateListener) { c.onUpdate = fn }

func (c *Client) notify(sessionID string) {
	if c.onUpdate != nil {
		c.onUpdate(sessionID)
	}
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ReconnectStatus returns whether a reconnect attempt is in progress.
func (c *Client) ReconnectStatus() ReconnectStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectState
}

// LastError returns the most recent connection-level error message.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// PendingMessagesCount returns the size of the offline queue.
func (c *Client) PendingMessagesCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Session returns a copy of a local session's current state.
func (c *Client) Session(sessionID string) (LocalSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return LocalSession{}, false
	}
	return *s, true
}

// Connect implements the connection procedure from spec.md §4.8
// bullets 1-3: fetch the bound port, fetch the authenticated userId,
// then open the channel.
func (c *Client) Connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)

	port, err := c.fetchPort(ctx)
	if err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("client: fetch terminal port: %w", err)
	}

	userID, err := c.fetchUserID(ctx)
	if err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("client: fetch current user: %w", err)
	}

	return c.dial(port, userID)
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.notify("")
}

func (c *Client) fetchPort(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.ControlBaseURL+"/api/terminal-port", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body struct {
		Port int `json:"port"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Port, nil
}

func (c *Client) fetchUserID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.ControlBaseURL+"/api/current-user", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Authenticated bool   `json:"authenticated"`
		UserID        string `json:"userId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if !body.Authenticated {
		return "", fmt.Errorf("not authenticated")
	}
	return body.UserID, nil
}

// dial opens the websocket at the resolved port and wires the channel.
func (c *Client) dial(port int, userID string) error {
	base, err := url.Parse(c.opts.ControlBaseURL)
	if err != nil {
		return err
	}

	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}

	wsURL := url.URL{
		Scheme:   scheme,
		Host:     fmt.Sprintf("%s:%d", base.Hostname(), port),
		Path:     "/ws",
		RawQuery: url.Values{"type": {"claude-code"}, "userId": {userID}}.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return err
	}

	ch := channel.New(conn)
	ch.OnMessage(c.handleMessage)
	ch.OnClose(func(code int, reason string) { c.handleClose() })
	ch.OnError(func(error) {})

	c.mu.Lock()
	if c.heartbeatCancel != nil {
		c.heartbeatCancel()
	}
	c.ch = ch
	c.status = StatusOpen
	c.reconnectState = ReconnectIdle
	c.reconnectTries = 0
	c.lastError = ""
	c.mu.Unlock()
	c.notify("")

	go ch.Serve()

	c.flushPending()
	c.startHeartbeat()

	return nil
}

// handleMessage implements spec.md §4.8 bullet 5: append to the local
// session's message log and derive its state from the frame kind.
func (c *Client) handleMessage(f wire.Frame) {
	c.mu.Lock()
	sess, ok := c.sessions[f.SessionID]
	if ok {
		sess.Messages = append(sess.Messages, MessageEntry{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Frame:     f,
		})

		switch f.Type {
		case wire.TypeSessionStarted:
			var payload wire.SessionStartedPayload
			_ = f.DecodeMetadata(&payload)
			if payload.Status == wire.StatusSuccess {
				sess.State = SessionActive
			} else {
				sess.State = SessionError
			}
		case wire.TypeSessionStopped:
			sess.State = SessionInactive
		case wire.TypeError:
			sess.State = SessionError
		case wire.TypeProcessExit:
			var payload wire.ProcessExitPayload
			if err := json.Unmarshal([]byte(f.Data), &payload); err == nil && payload.ResumeToken != "" {
				sess.ResumeToken = payload.ResumeToken
			}
		}
	}
	c.mu.Unlock()
	c.notify(f.SessionID)
}

// handleClose implements spec.md §4.8 bullet 6: on an unexpected close
// with a non-empty local session list, schedule a reconnect.
func (c *Client) handleClose() {
	c.mu.Lock()
	wasClosedByUs := c.closed
	c.status = StatusClosed
	hasSessions := len(c.order) > 0
	c.mu.Unlock()
	c.notify("")

	if wasClosedByUs || !hasSessions {
		return
	}
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	c.reconnectState = ReconnectReconnecting
	c.reconnectTries++
	attempt := c.reconnectTries
	c.mu.Unlock()
	c.notify("")

	if attempt > maxReconnectAttempts {
		c.mu.Lock()
		c.status = StatusError
		c.reconnectState = ReconnectIdle
		c.lastError = reconnectFailureMessage
		c.mu.Unlock()
		c.notify("")
		return
	}

	delay := reconnectDelay(attempt)
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.reconnectCancel = cancel
	c.mu.Unlock()

	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		if err := c.Connect(context.Background()); err != nil {
			c.scheduleReconnect()
		}
	}()
}

// reconnectDelay implements the 3s, 6s, 12s, 24s, ... backoff capped at 30s.
func reconnectDelay(attempt int) time.Duration {
	d := reconnectBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if d > reconnectMaxDelay {
		d = reconnectMaxDelay
	}
	return d
}

func (c *Client) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.heartbeatCancel = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				empty := len(c.order) == 0
				ch := c.ch
				c.mu.Unlock()
				if empty || ch == nil {
					continue
				}
				ch.Send(wire.Frame{Type: wire.TypeHeartbeat, Timestamp: time.Now().UnixMilli()})
			}
		}
	}()
}

// send enqueues f if the channel is not open, otherwise sends it
// immediately, falling back to the queue on a write failure. Heartbeats
// never go through send — they're generated internally by the
// heartbeat loop and are never queued, per spec.md §4.8.
func (c *Client) send(f wire.Frame) {
	c.mu.Lock()
	if c.status != StatusOpen || c.ch == nil {
		c.pendingSeq++
		c.pending = append(c.pending, pendingFrame{seq: c.pendingSeq, frame: f})
		c.mu.Unlock()
		return
	}
	ch := c.ch
	c.mu.Unlock()

	if err := ch.Send(f); err != nil {
		c.mu.Lock()
		c.pendingSeq++
		c.pending = append(c.pending, pendingFrame{seq: c.pendingSeq, frame: f})
		c.mu.Unlock()
	}
}

// flushPending drains the offline queue in insertion order, per
// spec.md §4.8's pending-queue contract.
func (c *Client) flushPending() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	ch := c.ch
	c.mu.Unlock()

	for _, p := range batch {
		if err := ch.Send(p.frame); err != nil {
			c.mu.Lock()
			c.pending = append(c.pending, p)
			c.mu.Unlock()
		}
	}
}

// CreateSession implements spec.md §4.8: pick a fresh sessionId,
// optimistically add local state, then send start_session.
func (c *Client) CreateSession(workspacePath, command string) string {
	sessionID := uuid.NewString()

	c.mu.Lock()
	c.sessions[sessionID] = &LocalSession{
		SessionID:     sessionID,
		WorkspacePath: workspacePath,
		State:         SessionConnecting,
	}
	c.order = append(c.order, sessionID)
	c.mu.Unlock()
	c.notify(sessionID)

	c.send(wire.Frame{Type: wire.TypeStartSession, SessionID: sessionID}.
		WithMetadata(wire.StartSessionPayload{WorkspacePath: workspacePath, Command: command}))

	return sessionID
}

// CloseSession sends stop_session and drops the session from local state.
func (c *Client) CloseSession(sessionID string) {
	c.send(wire.Frame{Type: wire.TypeStopSession, SessionID: sessionID})

	c.mu.Lock()
	delete(c.sessions, sessionID)
	for i, id := range c.order {
		if id == sessionID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.current == sessionID {
		c.current = ""
	}
	c.mu.Unlock()
	c.notify(sessionID)
}

// SendCommand builds an input frame, appends it to the session's local
// messages immediately for UI feedback, then enqueues or sends it.
func (c *Client) SendCommand(sessionID, data string, imageIDs []string) {
	c.mu.Lock()
	if sess, ok := c.sessions[sessionID]; ok {
		sess.Messages = append(sess.Messages, MessageEntry{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Frame:     wire.Frame{Type: wire.TypeInput, SessionID: sessionID, Data: data},
		})
	}
	c.mu.Unlock()
	c.notify(sessionID)

	c.send(wire.Frame{Type: wire.TypeInput, SessionID: sessionID, Data: data}.
		WithMetadata(wire.InputPayload{ImageIDs: imageIDs}))
}

// SelectSession changes which session the UI treats as current; it has
// no effect on the wire.
func (c *Client) SelectSession(sessionID string) {
	c.mu.Lock()
	c.current = sessionID
	c.mu.Unlock()
	c.notify(sessionID)
}

// Close cancels all timers and closes the channel cleanly, per
// spec.md §4.8's cancellation contract.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.status = StatusClosed
	ch := c.ch
	if c.heartbeatCancel != nil {
		c.heartbeatCancel()
	}
	if c.reconnectCancel != nil {
		c.reconnectCancel()
	}
	c.mu.Unlock()

	if ch != nil {
		ch.Close(wire.CloseNormal, "client shutdown")
	}
}
