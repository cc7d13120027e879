package imagestore

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), 1024, []string{"image/png", "image/jpeg"})
}

func TestPutAndResolveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := base64.StdEncoding.EncodeToString([]byte("fake-png-bytes"))

	imageID, err := s.Put("user1", "photo.png", "image/png", data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	path, err := s.Resolve("user1", imageID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path == "" {
		t.Fatal("Resolve returned empty path")
	}
}

func TestPutRejectsOversizedImage(t *testing.T) {
	s := New(t.TempDir(), 4, []string{"image/png"})
	data := base64.StdEncoding.EncodeToString([]byte("this is definitely more than four bytes"))

	_, err := s.Put("user1", "photo.png", "image/png", data)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Put error = %v, want ErrTooLarge", err)
	}
}

func TestPutRejectsUnsupportedMimeType(t *testing.T) {
	s := newTestStore(t)
	data := base64.StdEncoding.EncodeToString([]byte("whatever"))

	_, err := s.Put("user1", "doc.pdf", "application/pdf", data)
	if !errors.Is(err, ErrUnsupportedMimeType) {
		t.Fatalf("Put error = %v, want ErrUnsupportedMimeType", err)
	}
}

func TestPutRejectsInvalidBase64(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Put("user1", "photo.png", "image/png", "not-valid-base64!!!"); err == nil {
		t.Fatal("Put with invalid base64 data should error")
	}
}

func TestResolveNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Resolve("user1", "does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve error = %v, want ErrNotFound", err)
	}
}

func TestResolveRejectsPathTraversal(t *testing.T) {
	root := t.TempDir()
	secret := filepath.Join(root, "secret.txt")
	if err := os.WriteFile(secret, []byte("do not leak me"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	baseDir := filepath.Join(root, "images")
	s := New(baseDir, 1024, []string{"image/png"})

	// user1's directory is baseDir/user1; two levels up is root, where
	// the attacker-chosen imageId attempts to reach the secret file.
	if _, err := s.Resolve("user1", "../../secret.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve with a traversal imageId = %v, want ErrNotFound", err)
	}
}

func TestPutIsolatesByUser(t *testing.T) {
	s := newTestStore(t)
	data := base64.StdEncoding.EncodeToString([]byte("shared-bytes"))

	imageID, err := s.Put("user1", "photo.png", "image/png", data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := s.Resolve("user2", imageID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve from a different user = %v, want ErrNotFound", err)
	}
}
