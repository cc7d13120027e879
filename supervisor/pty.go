package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
)

// PTYCallbacks receives the single merged data stream and terminal exit
// event for one PTY child, matching spec.md §4.4: PTY stdout/stderr are
// not split, unlike the assistant path.
type PTYCallbacks struct {
	OnData func(chunk []byte)
	OnExit func(code *int, signal string)
}

// SpawnPty starts the supervisor's DefaultShell under a pseudo-terminal
// of the given geometry, cwd set to workspacePath. sessionID must not
// already be registered; for PTY sessions sessionID doubles as the
// processId (one shell per tab, per the data model's Child Process
// Handle invariant).
func (s *Supervisor) SpawnPty(sessionID, workspacePath string, cols, rows int, cb PTYCallbacks) (*Handle, error) {
	cmd := exec.Command(s.DefaultShell)
	cmd.Dir = workspacePath
	cmd.Env = append(os.Environ(),
		"TERM=xterm-color",
		"COLORTERM=truecolor",
		"PWD="+workspacePath,
	)

	master, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	h := &Handle{
		ID:        sessionID,
		Kind:      KindPTY,
		OSPID:     cmd.Process.Pid,
		cmd:       cmd,
		ptyMaster: master,
		cols:      cols,
		rows:      rows,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
	h.touch()

	if err := s.register(sessionID, h); err != nil {
		master.Close()
		cmd.Process.Kill()
		return nil, err
	}

	go func() {
		streamPTY(master, h.touch, cb.OnData)
		err := cmd.Wait()
		s.unregister(sessionID)
		h.closeDone()

		code, signal := exitStatus(err)
		if cb.OnExit != nil {
			cb.OnExit(code, signal)
		}
	}()

	return h, nil
}

// streamPTY copies from master to cb, touching activity on every read so
// a session actively streaming output (a long-running build, `tail -f`)
// is not mistaken for idle by the eviction sweep.
func streamPTY(master *os.File, touch func(), cb func([]byte)) {
	buf := make([]byte, 4096)
	for {
		n, err := master.Read(buf)
		if n > 0 {
			touch()
			if cb != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				cb(chunk)
			}
		}
		if err != nil {
			return
		}
	}
}

// resizePTY applies new geometry to both the OS pty and the handle's
// cached dimensions. It prefers the library's resize call over sending a
// synthetic SIGWINCH, per the open question in spec.md §9.
func (s *Supervisor) resizePTY(h *Handle, cols, rows int) (bool, error) {
	if h.ptyMaster == nil {
		return false, fmt.Errorf("supervisor: pty master closed for %s", h.ID)
	}
	if err := pty.Setsize(h.ptyMaster, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return false, err
	}
	h.cols, h.rows = cols, rows
	return true, nil
}
