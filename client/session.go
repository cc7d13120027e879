package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/telnet2/sessiongw/channel"
	"github.com/telnet2/sessiongw/wire"
)

// PTYOptions configures a PTYSession dial.
type PTYOptions struct {
	ControlBaseURL string
	HTTPClient     *http.Client
	WorkspaceName  string
	WorkspacePath  string
	Cols           int
	Rows           int
}

// PTYSession is the client-side counterpart of the PTY path (spec.md
// §4.6's second connection kind): a bare channel carrying raw terminal
// bytes in `output` frames and accepting raw bytes or PTYControl JSON
// in `input` frames. It has no reconnect/heartbeat/offline-queue
// machinery of its own — a dropped PTY connection means a dead shell,
// per spec.md §4.5, so there is nothing to resume.
type PTYSession struct {
	sessionID string
	ch        *channel.Channel

	onOutput func([]byte)
	onExit   func(string)
}

// DialPTY opens a PTY-path connection and sends the `init` PTYControl
// frame that asks the gateway to spawn the shell.
func DialPTY(ctx context.Context, opts PTYOptions) (*PTYSession, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	port, userID, err := fetchPortAndUser(ctx, opts.ControlBaseURL, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(opts.ControlBaseURL)
	if err != nil {
		return nil, err
	}
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}

	wsURL := url.URL{
		Scheme:   scheme,
		Host:     fmt.Sprintf("%s:%d", base.Hostname(), port),
		Path:     "/ws",
		RawQuery: url.Values{"userId": {userID}}.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial pty: %w", err)
	}

	s := &PTYSession{
		sessionID: uuid.NewString(),
		ch:        channel.New(conn),
	}

	s.ch.OnMessage(func(f wire.Frame) {
		switch f.Type {
		case wire.TypeOutput:
			if s.onOutput != nil {
				s.onOutput([]byte(f.Data))
			}
		case wire.TypeExit, wire.TypeError:
			if s.onExit != nil {
				s.onExit(f.Data)
			}
		}
	})

	go s.ch.Serve()

	ctl := wire.PTYControl{
		Action:        wire.PTYActionInit,
		WorkspaceName: opts.WorkspaceName,
		WorkspacePath: opts.WorkspacePath,
		Cols:          opts.Cols,
		Rows:          opts.Rows,
	}
	data, err := json.Marshal(ctl)
	if err != nil {
		return nil, err
	}
	if err := s.ch.Send(wire.Frame{Type: wire.TypeInput, SessionID: s.sessionID, Data: string(data)}); err != nil {
		return nil, fmt.Errorf("client: send pty init: %w", err)
	}

	return s, nil
}

// OnOutput registers the callback invoked with raw terminal bytes.
func (s *PTYSession) OnOutput(cb func([]byte)) { s.onOutput = cb }

// OnExit registers the callback invoked once the shell exits or errors.
func (s *PTYSession) OnExit(cb func(string)) { s.onExit = cb }

// Write forwards raw keystroke bytes to the shell's stdin.
func (s *PTYSession) Write(data []byte) error {
	return s.ch.Send(wire.Frame{Type: wire.TypeInput, SessionID: s.sessionID, Data: string(data)})
}

// Resize forwards a terminal resize as a PTYControl frame.
func (s *PTYSession) Resize(cols, rows int) error {
	ctl := wire.PTYControl{Action: wire.PTYActionResize, Cols: cols, Rows: rows}
	data, err := json.Marshal(ctl)
	if err != nil {
		return err
	}
	return s.ch.Send(wire.Frame{Type: wire.TypeInput, SessionID: s.sessionID, Data: string(data)})
}

// Close sends the close control frame then tears down the channel.
func (s *PTYSession) Close() error {
	ctl := wire.PTYControl{Action: wire.PTYActionClose}
	data, _ := json.Marshal(ctl)
	s.ch.Send(wire.Frame{Type: wire.TypeInput, SessionID: s.sessionID, Data: string(data)})
	return s.ch.Close(wire.CloseNormal, "client exit")
}

func fetchPortAndUser(ctx context.Context, controlBaseURL string, httpClient *http.Client) (int, string, error) {
	portReq, err := http.NewRequestWithContext(ctx, http.MethodGet, controlBaseURL+"/api/terminal-port", nil)
	if err != nil {
		return 0, "", err
	}
	portResp, err := httpClient.Do(portReq)
	if err != nil {
		return 0, "", err
	}
	defer portResp.Body.Close()

	var portBody struct {
		Port int `json:"port"`
	}
	if err := json.NewDecoder(portResp.Body).Decode(&portBody); err != nil {
		return 0, "", err
	}

	userReq, err := http.NewRequestWithContext(ctx, http.MethodGet, controlBaseURL+"/api/current-user", nil)
	if err != nil {
		return 0, "", err
	}
	userResp, err := httpClient.Do(userReq)
	if err != nil {
		return 0, "", err
	}
	defer userResp.Body.Close()

	var userBody struct {
		Authenticated bool   `json:"authenticated"`
		UserID        string `json:"userId"`
	}
	if err := json.NewDecoder(userResp.Body).Decode(&userBody); err != nil {
		return 0, "", err
	}
	if !userBody.Authenticated {
		return 0, "", fmt.Errorf("not authenticated")
	}

	return portBody.Port, userBody.UserID, nil
}
