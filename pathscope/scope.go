// Package pathscope implements the Path Scoper (C3): resolving a
// workspace path to an absolute, canonical path and refusing anything
// that escapes a configured allowed root.
package pathscope

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidWorkspacePath is returned when a path cannot be resolved
// under the allowed root.
var ErrInvalidWorkspacePath = errors.New("pathscope: invalid workspace path")

// Scoper resolves paths under a fixed allowed root.
type Scoper struct {
	// AllowedRoot is the canonical ancestor directory every resolved
	// path must lie under.
	AllowedRoot string
}

// New returns a Scoper rooted at allowedRoot. allowedRoot is itself
// cleaned and made absolute.
func New(allowedRoot string) (*Scoper, error) {
	abs, err := filepath.Abs(allowedRoot)
	if err != nil {
		return nil, fmt.Errorf("pathscope: resolve allowed root: %w", err)
	}
	return &Scoper{AllowedRoot: filepath.Clean(abs)}, nil
}

// Scope resolves path to an absolute, canonical path and verifies it is
// a prefix match of the allowed root. Symlinks are resolved best-effort
// via filepath.EvalSymlinks for the containment check (the returned path
// is the lexical one); a path that does not yet exist on disk is still
// accepted as long as its lexical resolution stays under the root, since
// a session's workspace directory may not have been created yet.
func (sc *Scoper) Scope(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidWorkspacePath)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(sc.AllowedRoot, abs)
	}
	abs = filepath.Clean(abs)

	if !withinRoot(sc.AllowedRoot, abs) {
		return "", fmt.Errorf("%w: %q escapes %q", ErrInvalidWorkspacePath, path, sc.AllowedRoot)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		root := sc.AllowedRoot
		if r, err := filepath.EvalSymlinks(root); err == nil {
			root = r
		}
		if !withinRoot(root, resolved) {
			return "", fmt.Errorf("%w: %q resolves outside %q", ErrInvalidWorkspacePath, path, sc.AllowedRoot)
		}
	}

	return abs, nil
}

func withinRoot(root, candidate string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}
