package supervisor

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// Kind distinguishes the two flavors of child process the supervisor
// owns, matching the Logical Session kinds in the data model.
type Kind string

const (
	// KindAssistant is a piped-stdio child running the assistant CLI.
	KindAssistant Kind = "assistant"
	// KindPTY is a child running an interactive shell under a
	// pseudo-terminal.
	KindPTY Kind = "pty"
)

// Handle is the Process Supervisor's record of one spawned child. It is
// ephemeral: created on spawn, destroyed on exit or explicit Stop.
type Handle struct {
	ID    string // processId (assistant) or sessionId (pty)
	Kind  Kind
	OSPID int

	cmd *exec.Cmd

	// Assistant-only streams.
	stdin  io.WriteCloser
	stderr io.ReadCloser
	stdout io.ReadCloser

	// PTY-only master end.
	ptyMaster *os.File
	cols      int
	rows      int

	StartedAt time.Time

	killed       int32        // atomic bool
	lastActivity atomic.Value // time.Time, touched by write, PTY output read, PTY resize

	done     chan struct{}
	doneOnce sync.Once
}

func (h *Handle) closeDone() {
	h.doneOnce.Do(func() { close(h.done) })
}

// Killed reports whether Stop has already been invoked for this handle.
func (h *Handle) Killed() bool {
	return atomic.LoadInt32(&h.killed) == 1
}

func (h *Handle) markKilled() {
	atomic.StoreInt32(&h.killed, 1)
}

func (h *Handle) touch() {
	h.lastActivity.Store(time.Now())
}

// LastActivity returns the last time this handle was written to or, for
// PTY handles, had output read from it or was resized. Assistant stdout
// and stderr reads do not update it.
func (h *Handle) LastActivity() time.Time {
	v := h.lastActivity.Load()
	if v == nil {
		return h.StartedAt
	}
	return v.(time.Time)
}

// Cols and Rows report the PTY's last known geometry. Zero for
// assistant handles.
func (h *Handle) Cols() int { return h.cols }
func (h *Handle) Rows() int { return h.rows }
