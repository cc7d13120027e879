package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/telnet2/sessiongw/wire"
)

func TestDialPTYSendsInitControlFrame(t *testing.T) {
	ts := newTestServer(t, "user1")
	defer ts.srv.Close()

	sess, err := DialPTY(context.Background(), PTYOptions{
		ControlBaseURL: ts.controlBaseURL(),
		WorkspacePath:  "/ws/a",
		Cols:           80,
		Rows:           24,
	})
	if err != nil {
		t.Fatalf("DialPTY: %v", err)
	}
	defer sess.Close()

	select {
	case f := <-ts.received:
		var ctl wire.PTYControl
		if err := json.Unmarshal([]byte(f.Data), &ctl); err != nil {
			t.Fatalf("unmarshal init control: %v", err)
		}
		if ctl.Action != wire.PTYActionInit || ctl.WorkspacePath != "/ws/a" || ctl.Cols != 80 || ctl.Rows != 24 {
			t.Fatalf("init control = %+v, want init/ /ws/a /80x24", ctl)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the pty init frame")
	}
}

func TestPTYSessionWriteForwardsRawBytes(t *testing.T) {
	ts := newTestServer(t, "user1")
	defer ts.srv.Close()

	sess, err := DialPTY(context.Background(), PTYOptions{ControlBaseURL: ts.controlBaseURL()})
	if err != nil {
		t.Fatalf("DialPTY: %v", err)
	}
	defer sess.Close()

	<-ts.received // the init control frame

	if err := sess.Write([]byte("ls -la\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case f := <-ts.received:
		if f.Data != "ls -la\n" {
			t.Fatalf("received data = %q, want %q", f.Data, "ls -la\n")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the forwarded keystrokes")
	}
}

func TestPTYSessionInvokesOutputAndExitCallbacks(t *testing.T) {
	ts := newTestServer(t, "user1")
	defer ts.srv.Close()

	sess, err := DialPTY(context.Background(), PTYOptions{ControlBaseURL: ts.controlBaseURL()})
	if err != nil {
		t.Fatalf("DialPTY: %v", err)
	}
	defer sess.Close()

	serverConn := <-ts.connected
	<-ts.received // the init control frame

	output := make(chan []byte, 1)
	sess.OnOutput(func(b []byte) { output <- b })
	exit := make(chan string, 1)
	sess.OnExit(func(reason string) { exit <- reason })

	if err := serverConn.WriteJSON(wire.Frame{Type: wire.TypeOutput, Data: "hello from the shell"}); err != nil {
		t.Fatalf("server WriteJSON(output): %v", err)
	}
	select {
	case got := <-output:
		if string(got) != "hello from the shell" {
			t.Fatalf("output = %q, want %q", got, "hello from the shell")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onOutput")
	}

	if err := serverConn.WriteJSON(wire.Frame{Type: wire.TypeExit, Data: "exit code 0"}); err != nil {
		t.Fatalf("server WriteJSON(exit): %v", err)
	}
	select {
	case got := <-exit:
		if got != "exit code 0" {
			t.Fatalf("exit reason = %q, want %q", got, "exit code 0")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onExit")
	}
}
