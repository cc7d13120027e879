// Package imagestore implements the Image Store (C12) backing
// upload_image frames: validating mime type and size, persisting to a
// scoped directory, and resolving imageIds back to file paths for a
// later input frame, per SPEC_FULL.md §4.6a and §4.12.
package imagestore

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/telnet2/sessiongw/pathscope"
)

// ErrTooLarge is returned when the decoded image exceeds MaxBytes.
var ErrTooLarge = errors.New("imagestore: image too large")

// ErrUnsupportedMimeType is returned when MimeType is not in the allow-list.
var ErrUnsupportedMimeType = errors.New("imagestore: unsupported mime type")

// ErrNotFound is returned by Resolve for an unknown imageId.
var ErrNotFound = errors.New("imagestore: not found")

// meta is the sidecar JSON persisted alongside each image.
type meta struct {
	MimeType   string    `json:"mimeType"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Store persists uploaded images under BaseDir/<userId>/<imageId>.
type Store struct {
	BaseDir            string
	MaxBytes           int64
	AllowedMimeTypes   map[string]bool
}

// New returns a Store rooted at baseDir.
func New(baseDir string, maxBytes int64, allowedMimeTypes []string) *Store {
	allow := make(map[string]bool, len(allowedMimeTypes))
	for _, m := range allowedMimeTypes {
		allow[m] = true
	}
	return &Store{BaseDir: baseDir, MaxBytes: maxBytes, AllowedMimeTypes: allow}
}

// Put decodes base64Data, validates it, and persists it under userID.
// It returns the opaque imageId.
func (s *Store) Put(userID, filename, mimeType, base64Data string) (string, error) {
	if !s.AllowedMimeTypes[mimeType] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mimeType)
	}

	decoded, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return "", fmt.Errorf("imagestore: decode: %w", err)
	}
	if int64(len(decoded)) > s.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit %d", ErrTooLarge, len(decoded), s.MaxBytes)
	}

	sum := sha256.Sum256(decoded)
	imageID := hex.EncodeToString(sum[:])[:32]

	dir := filepath.Join(s.BaseDir, userID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("imagestore: mkdir: %w", err)
	}

	imgPath := filepath.Join(dir, imageID)
	if err := os.WriteFile(imgPath, decoded, 0o600); err != nil {
		return "", fmt.Errorf("imagestore: write: %w", err)
	}

	m := meta{MimeType: mimeType, Filename: filename, UploadedAt: time.Now()}
	metaBytes, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("imagestore: marshal meta: %w", err)
	}
	if err := os.WriteFile(imgPath+".json", metaBytes, 0o600); err != nil {
		return "", fmt.Errorf("imagestore: write meta: %w", err)
	}

	return imageID, nil
}

// Resolve returns the on-disk path of a previously uploaded image.
// imageID is attacker-controlled (it travels in wire frames from the
// client), so it is confined under the user's directory the same way
// pathscope confines a workspace path before resolution is trusted.
func (s *Store) Resolve(userID, imageID string) (string, error) {
	userDir := filepath.Join(s.BaseDir, userID)
	scoper, err := pathscope.New(userDir)
	if err != nil {
		return "", fmt.Errorf("imagestore: %w", err)
	}

	path, err := scoper.Scope(imageID)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, imageID)
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, imageID)
	}
	return path, nil
}
