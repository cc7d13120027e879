package registry

import (
	"errors"
	"testing"
)

func TestCreateSessionRejectsDuplicate(t *testing.T) {
	r := New()

	if _, err := r.CreateSession("s1", KindAssistant, "/ws/a", "user1", "conn1"); err != nil {
		t.Fatalf("first CreateSession: %v", err)
	}

	_, err := r.CreateSession("s1", KindAssistant, "/ws/a", "user1", "conn1")
	if !errors.Is(err, ErrSessionExists) {
		t.Fatalf("second CreateSession error = %v, want ErrSessionExists", err)
	}
}

func TestGetReturnsValueCopy(t *testing.T) {
	r := New()
	r.CreateSession("s1", KindAssistant, "/ws/a", "user1", "conn1")

	sess, ok := r.Get("s1")
	if !ok {
		t.Fatal("Get returned not-found for a created session")
	}
	sess.Status = StatusActive // mutating the copy must not affect the registry

	again, _ := r.Get("s1")
	if again.Status == StatusActive {
		t.Fatal("Get must return an independent copy, not a shared pointer")
	}
}

func TestActiveProcessLifecycle(t *testing.T) {
	r := New()
	r.CreateSession("s1", KindAssistant, "/ws/a", "user1", "conn1")

	if _, active := r.ActiveProcess("s1"); active {
		t.Fatal("new session should have no active process")
	}

	r.SetActiveProcess("s1", "proc-1")
	pid, active := r.ActiveProcess("s1")
	if !active || pid != "proc-1" {
		t.Fatalf("ActiveProcess = (%q, %v), want (proc-1, true)", pid, active)
	}

	r.ClearActiveProcess("s1")
	if _, active := r.ActiveProcess("s1"); active {
		t.Fatal("ClearActiveProcess should remove the active-command binding")
	}

	if _, ok := r.Get("s1"); !ok {
		t.Fatal("clearing the active process must not remove the Logical Session itself")
	}
}

func TestRemoveDeletesSessionAndActiveProcess(t *testing.T) {
	r := New()
	r.CreateSession("s1", KindAssistant, "/ws/a", "user1", "conn1")
	r.SetActiveProcess("s1", "proc-1")

	r.Remove("s1")

	if _, ok := r.Get("s1"); ok {
		t.Fatal("Remove should delete the session")
	}
	if _, active := r.ActiveProcess("s1"); active {
		t.Fatal("Remove should delete the active-command binding")
	}
}

func TestSetResumeTokenUnknownSession(t *testing.T) {
	r := New()
	if err := r.SetResumeToken("missing", "tok"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestRebindAndBoundConnection(t *testing.T) {
	r := New()
	r.CreateSession("s1", KindAssistant, "/ws/a", "user1", "conn1")

	if err := r.Rebind("s1", "conn2"); err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	conn, ok := r.BoundConnection("s1")
	if !ok || conn != "conn2" {
		t.Fatalf("BoundConnection = (%q, %v), want (conn2, true)", conn, ok)
	}
}

func TestSessionsForConnection(t *testing.T) {
	r := New()
	r.CreateSession("s1", KindAssistant, "/ws/a", "user1", "connA")
	r.CreateSession("s2", KindAssistant, "/ws/b", "user1", "connA")
	r.CreateSession("s3", KindAssistant, "/ws/c", "user1", "connB")

	got := r.SessionsForConnection("connA")
	if len(got) != 2 {
		t.Fatalf("SessionsForConnection(connA) = %v, want 2 entries", got)
	}
}
