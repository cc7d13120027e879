package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeWorkspacesFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write workspaces file: %v", err)
	}
}

func TestNewRegistryLoadsEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workspaces.yaml")
	writeWorkspacesFile(t, path, "alpha: /ws/alpha\nbeta: /ws/beta\n")

	r, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer r.Close()

	ref, err := r.LookupWorkspace("alpha")
	if err != nil {
		t.Fatalf("LookupWorkspace(alpha): %v", err)
	}
	if ref.Name != "alpha" || ref.AbsolutePath != "/ws/alpha" {
		t.Fatalf("ref = %+v, want {alpha /ws/alpha}", ref)
	}
}

func TestLookupWorkspaceNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workspaces.yaml")
	writeWorkspacesFile(t, path, "alpha: /ws/alpha\n")

	r, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer r.Close()

	if _, err := r.LookupWorkspace("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LookupWorkspace(missing) error = %v, want ErrNotFound", err)
	}
}

func TestNewRegistryErrorsOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewRegistry(filepath.Join(dir, "does-not-exist.yaml")); err == nil {
		t.Fatal("NewRegistry with a missing file should error")
	}
}

func TestRegistryReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workspaces.yaml")
	writeWorkspacesFile(t, path, "alpha: /ws/alpha\n")

	r, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer r.Close()

	writeWorkspacesFile(t, path, "alpha: /ws/alpha\ngamma: /ws/gamma\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.LookupWorkspace("gamma"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("registry did not pick up the updated workspaces file within the deadline")
}
