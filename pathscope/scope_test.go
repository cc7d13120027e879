package pathscope

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestScope(t *testing.T) {
	root := t.TempDir()
	sc, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "relative path within root", path: "project-a", want: filepath.Join(root, "project-a")},
		{name: "nested relative path", path: "project-a/sub", want: filepath.Join(root, "project-a", "sub")},
		{name: "absolute path within root", path: filepath.Join(root, "project-b"), want: filepath.Join(root, "project-b")},
		{name: "dot-dot escape rejected", path: "../etc", wantErr: true},
		{name: "absolute escape rejected", path: "/etc/passwd", wantErr: true},
		{name: "empty path rejected", path: "", wantErr: true},
		{name: "root itself is allowed", path: ".", want: root},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sc.Scope(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidWorkspacePath) {
					t.Fatalf("Scope(%q) error = %v, want ErrInvalidWorkspacePath", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Scope(%q) unexpected error: %v", tt.path, err)
			}
			if got != tt.want {
				t.Fatalf("Scope(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestNewCleansRoot(t *testing.T) {
	sc, err := New(".")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !filepath.IsAbs(sc.AllowedRoot) {
		t.Fatalf("AllowedRoot = %q, want absolute", sc.AllowedRoot)
	}
}
