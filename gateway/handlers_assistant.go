package gateway

import (
	"encoding/json"
	"time"

	"github.com/telnet2/sessiongw/demux"
	"github.com/telnet2/sessiongw/registry"
	"github.com/telnet2/sessiongw/supervisor"
	"github.com/telnet2/sessiongw/wire"
)

func (d *Dispatcher) assistantTable() map[string]frameHandler {
	return map[string]frameHandler{
		wire.TypeHeartbeat:    d.handleHeartbeat,
		wire.TypeStartSession: d.handleStartSession,
		wire.TypeStopSession:  d.handleStopSession,
		wire.TypeInput:        d.handleInput,
		wire.TypeUploadImage:  d.handleUploadImage,
		wire.TypeExit:         d.handleExit,
	}
}

func (d *Dispatcher) send(c *conn, f wire.Frame) {
	if err := c.ch.Send(f); err != nil {
		d.Logger.Printf("gateway: send to conn %s failed: %v", c.id, err)
	}
}

func (d *Dispatcher) sendError(c *conn, sessionID, message string) {
	d.send(c, wire.Frame{Type: wire.TypeError, SessionID: sessionID, Data: message})
}

func (d *Dispatcher) handleHeartbeat(c *conn, f wire.Frame) {
	for _, sid := range c.sessionIDs() {
		d.Registry.Touch(sid)
	}
	c.liveness.touchHeartbeat()
	d.send(c, wire.Frame{Type: wire.TypeHeartbeat, Timestamp: time.Now().UnixMilli()})
}

// handleStartSession implements spec.md §4.6's start_session row: path
// scoping, argv sanitization, session-uniqueness, and the first spawn.
func (d *Dispatcher) handleStartSession(c *conn, f wire.Frame) {
	var payload wire.StartSessionPayload
	if err := f.DecodeMetadata(&payload); err != nil {
		d.replySessionStarted(c, f.SessionID, false, "invalid start_session payload")
		return
	}

	scoped, err := d.Scoper.Scope(payload.WorkspacePath)
	if err != nil {
		d.replySessionStarted(c, f.SessionID, false, ErrWorkspaceEscapeMessage)
		return
	}

	argv, err := d.Sanitizer.Sanitize(payload.Command)
	if err != nil {
		d.replySessionStarted(c, f.SessionID, false, err.Error())
		return
	}

	sess, err := d.Registry.CreateSession(f.SessionID, registry.KindAssistant, scoped, c.userID, c.id)
	if err != nil {
		d.replySessionStarted(c, f.SessionID, false, "session already exists")
		return
	}
	c.bind(f.SessionID)

	processID := newProcessID(f.SessionID)
	finalArgv := d.appendImageArgs(argv, c.userID, payload.ImageIDs)

	if err := d.spawnAssistant(c, sess.SessionID, processID, scoped, finalArgv); err != nil {
		d.Registry.Remove(f.SessionID)
		d.replySessionStarted(c, f.SessionID, false, err.Error())
		return
	}

	d.Registry.SetActiveProcess(f.SessionID, processID)
	d.replySessionStarted(c, f.SessionID, true, "")
}

func (d *Dispatcher) replySessionStarted(c *conn, sessionID string, success bool, message string) {
	status := wire.StatusSuccess
	if !success {
		status = wire.StatusError
	}
	d.send(c, wire.Frame{
		Type:      wire.TypeSessionStarted,
		SessionID: sessionID,
	}.WithMetadata(wire.SessionStartedPayload{Status: status, Message: message}))
}

// handleInput implements the sequential blocking invariant (spec.md
// invariant 2) and the resume-token propagation (invariant 6).
func (d *Dispatcher) handleInput(c *conn, f wire.Frame) {
	sess, ok := d.Registry.Get(f.SessionID)
	if !ok {
		d.sendError(c, f.SessionID, ErrSessionNotFoundMessage)
		return
	}

	if pid, active := d.Registry.ActiveProcess(f.SessionID); active {
		if h, alive := d.Supervisor.Get(pid); alive && !h.Killed() {
			d.sendError(c, f.SessionID, ErrCommandActiveMessage)
			return
		}
	}

	var payload wire.InputPayload
	_ = f.DecodeMetadata(&payload)

	argv, err := d.Sanitizer.Sanitize("") // subsequent commands reuse the session's default binary
	if err != nil {
		d.sendError(c, f.SessionID, err.Error())
		return
	}
	argv = d.appendResumeArg(argv, sess.ResumeToken)
	argv = d.appendImageArgs(argv, c.userID, payload.ImageIDs)

	processID := newProcessID(f.SessionID)
	if err := d.spawnAssistant(c, f.SessionID, processID, sess.WorkspacePath, argv); err != nil {
		d.sendError(c, f.SessionID, err.Error())
		return
	}
	d.Registry.SetActiveProcess(f.SessionID, processID)

	// The command text itself is delivered over stdin rather than argv,
	// so free-form prompt text is never interpreted as CLI flags.
	if _, err := d.Supervisor.Write(processID, []byte(f.Data+"\n")); err != nil {
		d.Logger.Printf("gateway: write input to %s failed: %v", processID, err)
	}
}

func (d *Dispatcher) appendResumeArg(argv []string, resumeToken string) []string {
	if resumeToken == "" {
		return argv
	}
	return append(argv, d.Cfg.ResumeTokenFlag, resumeToken)
}

func (d *Dispatcher) appendImageArgs(argv []string, userID string, imageIDs []string) []string {
	for _, id := range imageIDs {
		path, err := d.Images.Resolve(userID, id)
		if err != nil {
			continue
		}
		argv = append(argv, d.Cfg.ImageFlag, path)
	}
	return argv
}

// spawnAssistant wires a newly spawned assistant child through the
// Output Demuxer (C7) and back into outbound frames, preserving the
// ordering guarantee from spec.md §5: no interleaving between a stdout
// frame and the later process_exit frame for the same session.
func (d *Dispatcher) spawnAssistant(c *conn, sessionID, processID, workspacePath string, argv []string) error {
	dem := demux.New(demux.Callbacks{
		OnResumeToken: func(token string) {
			d.Registry.SetResumeToken(sessionID, token)
			d.Registry.SetStatus(sessionID, registry.StatusActive)
		},
		OnClaudeResponse: func(line string) {
			d.send(c, wire.Frame{Type: wire.TypeClaudeResponse, SessionID: sessionID, Data: line})
		},
		OnRawLine: func(line string) {
			d.send(c, wire.Frame{Type: wire.TypeStdout, SessionID: sessionID, Data: line})
		},
	})

	_, err := d.Supervisor.SpawnAssistant(processID, workspacePath, argv, supervisor.AssistantCallbacks{
		OnStdout: dem.Feed,
		OnStderr: func(chunk []byte) {
			d.send(c, wire.Frame{Type: wire.TypeError, SessionID: sessionID, Data: string(chunk)})
		},
		OnExit: func(code *int, signal string) {
			dem.Flush()
			d.Registry.ClearActiveProcess(sessionID)

			sess, _ := d.Registry.Get(sessionID)
			exitPayload := wire.ProcessExitPayload{Code: code, Signal: signal, ResumeToken: sess.ResumeToken}
			data, _ := json.Marshal(exitPayload)
			d.send(c, wire.Frame{Type: wire.TypeProcessExit, SessionID: sessionID, Data: string(data)})
			d.send(c, wire.Frame{Type: wire.TypeMessage, SessionID: sessionID, Data: wire.MessageComplete})
		},
	})
	return err
}

func (d *Dispatcher) handleStopSession(c *conn, f wire.Frame) {
	d.stopAssistantSession(c, f.SessionID, true)
}

func (d *Dispatcher) stopAssistantSession(c *conn, sessionID string, reply bool) {
	_, ok := d.Registry.Get(sessionID)
	if !ok {
		if reply {
			d.send(c, wire.Frame{Type: wire.TypeSessionStopped, SessionID: sessionID}.
				WithMetadata(wire.SessionStoppedPayload{Message: ErrSessionNotFoundMessage}))
		}
		return
	}

	if pid, active := d.Registry.ActiveProcess(sessionID); active {
		d.Supervisor.Stop(pid)
	}
	d.Registry.ClearActiveProcess(sessionID)
	d.Registry.Remove(sessionID)
	c.unbind(sessionID)

	if reply {
		d.send(c, wire.Frame{Type: wire.TypeSessionStopped, SessionID: sessionID})
	}
}

func (d *Dispatcher) handleUploadImage(c *conn, f wire.Frame) {
	var payload wire.UploadImagePayload
	if err := f.DecodeMetadata(&payload); err != nil {
		d.replyUploadImage(c, f.SessionID, "", err.Error())
		return
	}

	id, err := d.Images.Put(c.userID, payload.ImageData.Filename, payload.ImageData.MimeType, payload.ImageData.Data)
	if err != nil {
		d.replyUploadImage(c, f.SessionID, "", err.Error())
		return
	}
	d.replyUploadImage(c, f.SessionID, id, "")
}

func (d *Dispatcher) replyUploadImage(c *conn, sessionID, imageID, errMsg string) {
	status := wire.StatusSuccess
	if errMsg != "" {
		status = wire.StatusError
	}
	d.send(c, wire.Frame{Type: wire.TypeUploadImage, SessionID: sessionID}.
		WithMetadata(wire.UploadImageResultPayload{Status: status, Data: imageID, Message: errMsg}))
}

// handleExit implements spec.md §4.6's exit row: treat as stop_session,
// remove the binding, and close the channel.
func (d *Dispatcher) handleExit(c *conn, f wire.Frame) {
	d.stopAssistantSession(c, f.SessionID, false)
	c.ch.Close(wire.CloseNormal, "client exit")
}
