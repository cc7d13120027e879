// Package workspace implements the Workspace Registry (C11): the single
// capability the gateway core consumes, `LookupWorkspace(name) ->
// {name, path}`, per spec.md §1's out-of-scope boundary and
// SPEC_FULL.md §4.11.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when name has no registered workspace.
var ErrNotFound = errors.New("workspace: not found")

// Ref is the Workspace reference entity from spec.md §3.
type Ref struct {
	Name         string `yaml:"-"`
	AbsolutePath string `yaml:"-"`
}

// Lookup is the capability the gateway core depends on.
type Lookup interface {
	LookupWorkspace(name string) (Ref, error)
}

// fileEntries is the on-disk shape of workspaces.yaml: a flat map of
// name -> absolute path.
type fileEntries map[string]string

// Registry is a YAML-file-backed Lookup, reloaded on file-change
// notifications so new workspaces can be registered without a gateway
// restart, matching SPEC_FULL.md §4.11.
type Registry struct {
	path string

	mu      sync.RWMutex
	entries fileEntries

	watcher *fsnotify.Watcher
}

// NewRegistry loads path once and starts watching it for changes. The
// caller should call Close when done.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, entries: fileEntries{}}
	if err := r.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(path); err == nil {
			r.watcher = watcher
			go r.watchLoop()
		} else {
			watcher.Close()
		}
	}

	return r, nil
}

func (r *Registry) watchLoop() {
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				_ = r.reload()
			}
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (r *Registry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("workspace: read %s: %w", r.path, err)
	}

	var entries fileEntries
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("workspace: parse %s: %w", r.path, err)
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	return nil
}

// LookupWorkspace resolves name to its registered absolute path.
func (r *Registry) LookupWorkspace(name string) (Ref, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	path, ok := r.entries[name]
	if !ok {
		return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return Ref{Name: name, AbsolutePath: path}, nil
}

// Close stops the file watcher, if one was started.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
