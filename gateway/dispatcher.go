// Package gateway implements the Gateway Dispatcher (C6): accepting
// connections, authenticating them, classifying them as assistant or
// PTY, routing inbound frames to the right component, running the
// liveness timers, and emitting outbound frames in order.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telnet2/sessiongw/argvsan"
	"github.com/telnet2/sessiongw/auth"
	"github.com/telnet2/sessiongw/config"
	"github.com/telnet2/sessiongw/imagestore"
	"github.com/telnet2/sessiongw/pathscope"
	"github.com/telnet2/sessiongw/registry"
	"github.com/telnet2/sessiongw/supervisor"
	"github.com/telnet2/sessiongw/workspace"
)

// Dispatcher is the Gateway Dispatcher (C6). One Dispatcher owns one
// bound port, its connection set, and the background timers described
// in spec.md §5.
type Dispatcher struct {
	Cfg        config.Config
	Supervisor *supervisor.Supervisor
	Registry   *registry.Registry
	Sanitizer  *argvsan.Sanitizer
	Scoper     *pathscope.Scoper
	Auth       auth.Resolver
	Workspaces workspace.Lookup
	Images     *imagestore.Store
	Logger     *log.Logger

	mu       sync.Mutex
	started  bool
	port     int
	listener net.Listener
	server   *http.Server
	cancel   context.CancelFunc

	connMu sync.Mutex
	conns  map[string]*conn
}

// New assembles a Dispatcher from its collaborators.
func New(cfg config.Config, authResolver auth.Resolver, workspaces workspace.Lookup) (*Dispatcher, error) {
	scoper, err := pathscope.New(cfg.AllowedRoot)
	if err != nil {
		return nil, err
	}

	imageDir := cfg.ImageStoreDir
	if !filepath.IsAbs(imageDir) {
		imageDir = filepath.Join(scoper.AllowedRoot, imageDir)
	}

	return &Dispatcher{
		Cfg:        cfg,
		Supervisor: supervisor.New(cfg.DefaultShell),
		Registry:   registry.New(),
		Sanitizer:  argvsan.New(cfg.DefaultAssistantBinary),
		Scoper:     scoper,
		Auth:       authResolver,
		Workspaces: workspaces,
		Images:     imagestore.New(imageDir, cfg.MaxImageBytes, cfg.AllowedImageMimeTypes),
		Logger:     log.Default(),
		conns:      make(map[string]*conn),
	}, nil
}

// Port returns the bound port, 0 if the dispatcher has not started yet.
func (d *Dispatcher) Port() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port
}

// EnsureStarted starts the dispatcher's HTTP server on first call,
// performing the bind-and-port-search described in spec.md §4.6 bullet
// 1, and is a no-op on subsequent calls — matching the HTTP sibling
// endpoint's "starts the gateway lazily on first call" contract.
func (d *Dispatcher) EnsureStarted() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return d.port, nil
	}

	listener, port, err := bindWithPortSearch(d.Cfg.PortRangeStart, d.Cfg.PortRangeSpan)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	server := &http.Server{Handler: d.router()}
	d.server = server
	d.listener = listener
	d.port = port
	d.started = true

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			d.Logger.Printf("gateway: serve: %v", err)
		}
	}()

	go d.runLivenessLoop(ctx)
	go d.Supervisor.RunIdleSweep(ctx, d.Cfg.IdleEvictionInterval, d.Cfg.PTYIdleTimeout)

	return port, nil
}

// bindWithPortSearch attempts to listen on start, then start+1 ...
// start+span-1, returning the first successful listener.
func bindWithPortSearch(start, span int) (net.Listener, int, error) {
	var lastErr error
	for i := 0; i < span; i++ {
		port := start + i
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return l, port, nil
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("gateway: no port available in [%d, %d): %w", start, start+span, lastErr)
}

// Stop shuts down the HTTP server and background loops.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	if d.cancel != nil {
		d.cancel()
	}
	return d.server.Shutdown(ctx)
}

func newConnID() string {
	return uuid.NewString()
}

func (d *Dispatcher) registerConn(c *conn) {
	d.connMu.Lock()
	d.conns[c.id] = c
	d.connMu.Unlock()
}

func (d *Dispatcher) unregisterConn(id string) {
	d.connMu.Lock()
	delete(d.conns, id)
	d.connMu.Unlock()
}

func (d *Dispatcher) connSnapshot() []*conn {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	out := make([]*conn, 0, len(d.conns))
	for _, c := range d.conns {
		out = append(out, c)
	}
	return out
}

func newProcessID(sessionID string) string {
	return fmt.Sprintf("%s_%d", sessionID, time.Now().UnixNano())
}
