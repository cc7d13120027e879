package gateway

import (
	"encoding/json"

	"github.com/telnet2/sessiongw/registry"
	"github.com/telnet2/sessiongw/supervisor"
	"github.com/telnet2/sessiongw/wire"
)

func (d *Dispatcher) ptyTable() map[string]frameHandler {
	return map[string]frameHandler{
		wire.TypeInput: d.handlePTYInput,
	}
}

// handlePTYInput implements spec.md §4.6 bullet 6: an `input` frame's
// Data is either a JSON control object (init/resize/close) or raw
// terminal bytes to write to the shell's stdin.
func (d *Dispatcher) handlePTYInput(c *conn, f wire.Frame) {
	var ctl wire.PTYControl
	if json.Valid([]byte(f.Data)) {
		if err := json.Unmarshal([]byte(f.Data), &ctl); err == nil && ctl.Action != "" {
			d.handlePTYControl(c, f.SessionID, ctl)
			return
		}
	}

	if _, err := d.Supervisor.Write(f.SessionID, []byte(f.Data)); err != nil {
		d.sendError(c, f.SessionID, err.Error())
		return
	}
	d.Registry.Touch(f.SessionID)
}

func (d *Dispatcher) handlePTYControl(c *conn, sessionID string, ctl wire.PTYControl) {
	switch ctl.Action {
	case wire.PTYActionInit:
		d.initPTYSession(c, sessionID, ctl)
	case wire.PTYActionResize:
		if _, err := d.Supervisor.Resize(sessionID, ctl.Cols, ctl.Rows); err != nil {
			d.sendError(c, sessionID, err.Error())
		}
	case wire.PTYActionClose:
		d.stopPTYSession(sessionID)
		c.unbind(sessionID)
	}
}

func (d *Dispatcher) initPTYSession(c *conn, sessionID string, ctl wire.PTYControl) {
	workspacePath := ctl.WorkspacePath
	if workspacePath == "" && ctl.WorkspaceName != "" && d.Workspaces != nil {
		ref, err := d.Workspaces.LookupWorkspace(ctl.WorkspaceName)
		if err != nil {
			d.sendError(c, sessionID, err.Error())
			return
		}
		workspacePath = ref.AbsolutePath
	}

	scoped, err := d.Scoper.Scope(workspacePath)
	if err != nil {
		d.sendError(c, sessionID, ErrWorkspaceEscapeMessage)
		return
	}

	if _, err := d.Registry.CreateSession(sessionID, registry.KindPTY, scoped, c.userID, c.id); err != nil {
		d.sendError(c, sessionID, "session already exists")
		return
	}
	c.bind(sessionID)

	cols, rows := ctl.Cols, ctl.Rows
	if cols == 0 {
		cols = d.Cfg.PTYDefaultCols
	}
	if rows == 0 {
		rows = d.Cfg.PTYDefaultRows
	}

	_, err = d.Supervisor.SpawnPty(sessionID, scoped, cols, rows, supervisor.PTYCallbacks{
		OnData: func(chunk []byte) {
			d.send(c, wire.Frame{Type: wire.TypeOutput, SessionID: sessionID, Data: string(chunk)})
		},
		OnExit: func(code *int, signal string) {
			d.Registry.Remove(sessionID)
			d.send(c, wire.Frame{Type: wire.TypeExit, SessionID: sessionID, Data: exitLine(code, signal)})
		},
	})
	if err != nil {
		d.Registry.Remove(sessionID)
		d.sendError(c, sessionID, err.Error())
		return
	}

	d.Registry.SetStatus(sessionID, registry.StatusActive)
}

// stopPTYSession implements the "active -> close" and "connection lost"
// PTY transitions from spec.md §4.5: the child is signaled and the
// session dropped unconditionally, since a PTY's state cannot be
// recovered.
func (d *Dispatcher) stopPTYSession(sessionID string) {
	d.Supervisor.Stop(sessionID)
	d.Registry.Remove(sessionID)
}

func exitLine(code *int, signal string) string {
	if signal != "" {
		return "process terminated by signal " + signal
	}
	if code != nil {
		return "process exited"
	}
	return "process exited"
}
