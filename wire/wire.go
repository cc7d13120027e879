// Package wire defines the JSON frame types exchanged over the gateway's
// framed channel (C1) between a client and the gateway dispatcher (C6).
package wire

import "encoding/json"

// Frame kinds, client -> gateway (assistant path).
const (
	TypeStartSession = "start_session"
	TypeStopSession  = "stop_session"
	TypeInput        = "input"
	TypeHeartbeat    = "heartbeat"
	TypeUploadImage  = "upload_image"
	TypeExit         = "exit"
)

// Frame kinds, gateway -> client (assistant path).
const (
	TypeSessionStarted = "session_started"
	TypeSessionStopped = "session_stopped"
	TypeStdout         = "stdout"
	TypeError          = "error"
	TypeClaudeResponse = "claude_response"
	TypeProcessExit    = "process_exit"
	TypeMessage        = "message"
)

// Frame kinds shared with the PTY path.
const (
	TypeOutput = "output"
)

// PTY control actions carried inside an `input` frame's Data as JSON.
const (
	PTYActionInit   = "init"
	PTYActionResize = "resize"
	PTYActionClose  = "close"
)

// Status values used in session_started / upload_image replies.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Frame is the common envelope for every message exchanged over the
// channel. Data carries an opaque string payload whose meaning depends on
// Type; Metadata carries kind-specific structured extras, deferred as
// raw JSON so each handler decodes it into its own payload type. Both
// are optional and mutually exclusive in practice (most frame kinds use
// one or the other).
type Frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      string          `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// WithMetadata marshals v and attaches it as f's Metadata, returning f
// for chaining.
func (f Frame) WithMetadata(v interface{}) Frame {
	data, err := json.Marshal(v)
	if err != nil {
		return f
	}
	f.Metadata = data
	return f
}

// DecodeMetadata unmarshals f.Metadata into v. It is a no-op returning
// nil if f.Metadata is empty.
func (f Frame) DecodeMetadata(v interface{}) error {
	if len(f.Metadata) == 0 {
		return nil
	}
	return json.Unmarshal(f.Metadata, v)
}

// StartSessionPayload is carried by a start_session frame. It is decoded
// from Frame.Metadata.
type StartSessionPayload struct {
	WorkspacePath string   `json:"workspacePath"`
	Command       string   `json:"command,omitempty"`
	ImageIDs      []string `json:"imageIds,omitempty"`
}

// SessionStartedPayload is carried by a session_started frame's Metadata.
type SessionStartedPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SessionStoppedPayload is carried by a session_stopped frame's Metadata.
type SessionStoppedPayload struct {
	ExitCode *int   `json:"exitCode,omitempty"`
	Message  string `json:"message,omitempty"`
}

// InputPayload is carried by an input frame's Metadata; Data holds the
// raw command text for backward-compatible readers.
type InputPayload struct {
	ImageIDs []string `json:"imageIds,omitempty"`
}

// UploadImagePayload is carried by an upload_image frame's Metadata.
type UploadImagePayload struct {
	ImageData ImageData `json:"imageData"`
}

// ImageData is the base64-encoded inline image payload.
type ImageData struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// UploadImageResultPayload is carried by the upload_image reply's Metadata.
type UploadImageResultPayload struct {
	Status  string `json:"status"`
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ProcessExitPayload is the JSON encoded into a process_exit frame's Data.
type ProcessExitPayload struct {
	Code        *int   `json:"code"`
	Signal      string `json:"signal,omitempty"`
	ResumeToken string `json:"resumeToken,omitempty"`
}

// MessageComplete is the literal Data string of the completion marker
// frame that follows process_exit.
const MessageComplete = "claude-complete"

// PTYControl is the JSON control object carried by an `input` frame's
// Data on the PTY path when the client is not sending raw terminal
// bytes.
type PTYControl struct {
	Action        string `json:"action"`
	WorkspaceName string `json:"workspaceName,omitempty"`
	WorkspacePath string `json:"workspacePath,omitempty"`
	Cols          int    `json:"cols,omitempty"`
	Rows          int    `json:"rows,omitempty"`
}

// Close codes used by the Framed Channel (C1), mirroring RFC 6455.
const (
	CloseNormal             = 1000
	CloseUnsupportedPayload = 1002
	ClosePolicyViolation    = 1008
)
