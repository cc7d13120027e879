package supervisor

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

// TestHelperProcess is not a real test; it is re-invoked as a child
// process by tests that need a controllable "assistant" binary without
// depending on a real CLI being installed. See the helperArgv
// construction below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) > 0 {
		args = args[1:]
	}

	switch {
	case len(args) > 0 && args[0] == "echo-lines":
		fmt.Println(`{"type":"system","subtype":"init","session_id":"resume-123"}`)
		fmt.Println(`{"type":"assistant","text":"hello"}`)
	case len(args) > 0 && args[0] == "echo-stdin":
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			fmt.Println(scanner.Text())
		}
	case len(args) > 0 && args[0] == "sleep":
		time.Sleep(10 * time.Second)
	case len(args) > 0 && args[0] == "exit-code":
		os.Exit(7)
	}
}

func helperArgv(extra ...string) []string {
	argv := []string{os.Args[0], "-test.run=TestHelperProcess", "--"}
	return append(argv, extra...)
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	return New("/bin/sh")
}

func TestSpawnAssistantStreamsStdoutAndExits(t *testing.T) {
	s := newTestSupervisor(t)

	var mu sync.Mutex
	var stdout []byte
	exited := make(chan struct{})
	var exitCode *int

	_, err := s.SpawnAssistant("proc-1", t.TempDir(), helperArgv("echo-lines"), AssistantCallbacks{
		OnStdout: func(chunk []byte) {
			mu.Lock()
			stdout = append(stdout, chunk...)
			mu.Unlock()
		},
		OnExit: func(code *int, signal string) {
			exitCode = code
			close(exited)
		},
	})
	if err != nil {
		t.Fatalf("SpawnAssistant: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for helper process to exit")
	}

	mu.Lock()
	got := string(stdout)
	mu.Unlock()
	if exitCode == nil || *exitCode != 0 {
		t.Fatalf("exit code = %v, want 0", exitCode)
	}
	if got == "" {
		t.Fatal("expected stdout to be captured from the helper process")
	}

	if _, ok := s.Get("proc-1"); ok {
		t.Fatal("supervisor should unregister a process once it exits")
	}
}

func TestSpawnAssistantRejectsDuplicateProcessID(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.SpawnAssistant("proc-dup", t.TempDir(), helperArgv("sleep"), AssistantCallbacks{})
	if err != nil {
		t.Fatalf("first SpawnAssistant: %v", err)
	}
	defer s.Stop("proc-dup")

	_, err = s.SpawnAssistant("proc-dup", t.TempDir(), helperArgv("sleep"), AssistantCallbacks{})
	if err == nil {
		t.Fatal("second SpawnAssistant with the same id should fail")
	}
}

func TestWriteEchoesToAssistantStdin(t *testing.T) {
	s := newTestSupervisor(t)

	var mu sync.Mutex
	var stdout []byte
	lineSeen := make(chan struct{})
	var once sync.Once

	_, err := s.SpawnAssistant("proc-echo", t.TempDir(), helperArgv("echo-stdin"), AssistantCallbacks{
		OnStdout: func(chunk []byte) {
			mu.Lock()
			stdout = append(stdout, chunk...)
			done := len(stdout) > 0
			mu.Unlock()
			if done {
				once.Do(func() { close(lineSeen) })
			}
		},
	})
	if err != nil {
		t.Fatalf("SpawnAssistant: %v", err)
	}
	defer s.Stop("proc-echo")

	ok, err := s.Write("proc-echo", []byte("hello-from-test\n"))
	if err != nil || !ok {
		t.Fatalf("Write = (%v, %v), want (true, nil)", ok, err)
	}

	select {
	case <-lineSeen:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the echoed line")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.SpawnAssistant("proc-stop", t.TempDir(), helperArgv("sleep"), AssistantCallbacks{})
	if err != nil {
		t.Fatalf("SpawnAssistant: %v", err)
	}

	ok, err := s.Stop("proc-stop")
	if err != nil || !ok {
		t.Fatalf("first Stop = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = s.Stop("proc-stop")
	if err != nil || !ok {
		t.Fatalf("second Stop = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestWriteUnknownProcessErrors(t *testing.T) {
	s := newTestSupervisor(t)
	if _, err := s.Write("missing", []byte("x")); err == nil {
		t.Fatal("Write to an unknown process id should error")
	}
}

func TestResizeRejectsAssistantHandle(t *testing.T) {
	s := newTestSupervisor(t)
	_, err := s.SpawnAssistant("proc-resize", t.TempDir(), helperArgv("sleep"), AssistantCallbacks{})
	if err != nil {
		t.Fatalf("SpawnAssistant: %v", err)
	}
	defer s.Stop("proc-resize")

	if _, err := s.Resize("proc-resize", 80, 24); err == nil {
		t.Fatal("Resize on an assistant handle should error")
	}
}

func TestSpawnPtyStreamsOutputAndExits(t *testing.T) {
	s := New("/bin/sh")

	var mu sync.Mutex
	var data []byte
	exited := make(chan struct{})

	_, err := s.SpawnPty("pty-1", t.TempDir(), 80, 24, PTYCallbacks{
		OnData: func(chunk []byte) {
			mu.Lock()
			data = append(data, chunk...)
			mu.Unlock()
		},
		OnExit: func(code *int, signal string) { close(exited) },
	})
	if err != nil {
		t.Fatalf("SpawnPty: %v", err)
	}

	if _, err := s.Write("pty-1", []byte("echo hi-from-pty\nexit\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pty shell to exit")
	}

	mu.Lock()
	got := string(data)
	mu.Unlock()
	if got == "" {
		t.Fatal("expected pty output to be captured")
	}
}

func TestResizePty(t *testing.T) {
	s := New("/bin/sh")
	_, err := s.SpawnPty("pty-resize", t.TempDir(), 80, 24, PTYCallbacks{})
	if err != nil {
		t.Fatalf("SpawnPty: %v", err)
	}
	defer s.Stop("pty-resize")

	ok, err := s.Resize("pty-resize", 120, 40)
	if err != nil || !ok {
		t.Fatalf("Resize = (%v, %v), want (true, nil)", ok, err)
	}

	h, _ := s.Get("pty-resize")
	if h.Cols() != 120 || h.Rows() != 40 {
		t.Fatalf("handle geometry = %dx%d, want 120x40", h.Cols(), h.Rows())
	}
}
