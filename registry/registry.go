// Package registry implements the Session Registry (C5): the
// sessionId -> LogicalSession map plus the activeCommand map
// (sessionId -> processId), guarded as a single consistent unit per
// spec.md §4.5 and §5 ("a coarse lock over the full registry is
// acceptable at the expected scale").
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by lookups for an unknown sessionId.
var ErrSessionNotFound = errors.New("registry: session not found")

// ErrSessionExists is returned when a caller tries to create a
// sessionId that is already registered (spec.md invariant: start_session
// accepted twice consecutively is rejected on the second attempt).
var ErrSessionExists = errors.New("registry: session already exists")

// Kind mirrors supervisor.Kind without importing it, keeping the
// registry free of a dependency on process-spawning mechanics.
type Kind string

const (
	KindAssistant Kind = "assistant"
	KindPTY       Kind = "pty"
)

// Status is the Logical Session's client-visible lifecycle state.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusError      Status = "error"
)

// Session is the Logical Session entity from spec.md §3.
type Session struct {
	SessionID     string
	Kind          Kind
	WorkspacePath string
	UserID        string
	CreatedAt     time.Time
	Status        Status
	ResumeToken   string // assistant only
	LastActivity  time.Time

	// connID identifies the Connection currently bound to this session
	// (invariant 4: one Connection per sessionId at a time). The
	// registry only stores it, via CreateSession and Rebind; frames for
	// the session are not checked against it.
	connID string
}

// Registry owns every Logical Session and every live ProcessHandle
// reference (by id only — the actual supervisor.Handle lives in the
// Process Supervisor; the registry stores back-edges as plain
// identifiers per the ownership discipline in spec.md §9).
type Registry struct {
	mu sync.Mutex

	sessions      map[string]*Session
	activeCommand map[string]string // sessionId -> processId, absence = idle
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		sessions:      make(map[string]*Session),
		activeCommand: make(map[string]string),
	}
}

// CreateSession registers a new Logical Session. It fails with
// ErrSessionExists if sessionID is already registered — the registry
// never reassigns a client-chosen sessionId (invariant 1).
func (r *Registry) CreateSession(sessionID string, kind Kind, workspacePath, userID, connID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}

	sess := &Session{
		SessionID:     sessionID,
		Kind:          kind,
		WorkspacePath: workspacePath,
		UserID:        userID,
		CreatedAt:     time.Now(),
		Status:        StatusConnecting,
		LastActivity:  time.Now(),
		connID:        connID,
	}
	r.sessions[sessionID] = sess
	return sess, nil
}

// Get returns a copy of the session's current state.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// SetStatus updates a session's status.
func (r *Registry) SetStatus(sessionID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.Status = status
	return nil
}

// SetResumeToken captures a resume token, per invariant 6: it is only
// ever written here by the demuxer (C7) observing a startup event,
// never accepted directly from a client frame.
func (r *Registry) SetResumeToken(sessionID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.ResumeToken = token
	return nil
}

// Touch updates LastActivity to now.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.LastActivity = time.Now()
	}
}

// Rebind updates the Connection bound to sessionID, used when a client
// reconnects and re-binds an existing assistant session.
func (r *Registry) Rebind(sessionID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.connID = connID
	return nil
}

// BoundConnection returns the Connection id currently bound to sessionID.
func (r *Registry) BoundConnection(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	return s.connID, true
}

// Remove deletes a session and its active-command binding.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	delete(r.activeCommand, sessionID)
}

// ActiveProcess returns the processId currently bound to sessionID, if
// the session is not idle.
func (r *Registry) ActiveProcess(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, ok := r.activeCommand[sessionID]
	return pid, ok
}

// SetActiveProcess records processId as the active command for
// sessionID. Enforces invariant 2 (at most one active child) only in
// cooperation with the caller checking ActiveProcess first and the
// supervisor's liveness check — the registry itself just stores the
// binding.
func (r *Registry) SetActiveProcess(sessionID, processID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeCommand[sessionID] = processID
}

// ClearActiveProcess removes the active-command binding for sessionID,
// leaving the Logical Session itself intact (invariant 7: child exit
// alone does not destroy an assistant Logical Session).
func (r *Registry) ClearActiveProcess(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.activeCommand, sessionID)
}

// SessionsForConnection returns every sessionId currently bound to
// connID, in no particular order.
func (r *Registry) SessionsForConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id, s := range r.sessions {
		if s.connID == connID {
			out = append(out, id)
		}
	}
	return out
}
