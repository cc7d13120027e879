package client

import (
	"time"

	"github.com/telnet2/sessiongw/wire"
)

// ConnectionStatus is the Client Session Manager's connection-level
// state machine from spec.md §4.8.
type ConnectionStatus string

const (
	StatusConnecting ConnectionStatus = "connecting"
	StatusOpen       ConnectionStatus = "open"
	StatusClosed     ConnectionStatus = "closed"
	StatusError      ConnectionStatus = "error"
)

// ReconnectStatus tracks whether a reconnect attempt is currently scheduled.
type ReconnectStatus string

const (
	ReconnectIdle         ReconnectStatus = "idle"
	ReconnectReconnecting ReconnectStatus = "reconnecting"
)

// SessionState is a local session's derived status, updated from
// inbound frame kinds per spec.md §4.8 bullet 5.
type SessionState string

const (
	SessionConnecting SessionState = "connecting"
	SessionActive     SessionState = "active"
	SessionInactive   SessionState = "inactive"
	SessionError      SessionState = "error"
)

// MessageEntry is one frame appended to a local session's message log,
// for UI rendering.
type MessageEntry struct {
	ID        string
	Timestamp time.Time
	Frame     wire.Frame
}

// LocalSession mirrors the UI's view of one logical session: its
// derived state, its message history, and the last resume token
// observed for it.
type LocalSession struct {
	SessionID     string
	WorkspacePath string
	State         SessionState
	Messages      []MessageEntry
	ResumeToken   string
}
