// Command gateway-server runs the session gateway's HTTP adapter and
// dispatcher: the terminal-port/current-user sibling endpoints, the
// websocket upgrade route, and the image upload mirror.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telnet2/sessiongw/auth"
	"github.com/telnet2/sessiongw/config"
	"github.com/telnet2/sessiongw/gateway"
	"github.com/telnet2/sessiongw/workspace"
)

const gatewayShutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to gateway config YAML")
	allowedRoot := flag.String("allowed-root", "", "override allowedRoot from config")
	workspacesPath := flag.String("workspaces", "workspaces.yaml", "path to the workspace registry YAML file")
	authSecret := flag.String("auth-secret", "", "HMAC secret for the session cookie (falls back to $GATEWAY_AUTH_SECRET)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("gateway-server: config: %v", err)
	}
	if *allowedRoot != "" {
		cfg.AllowedRoot = *allowedRoot
	}

	secret := *authSecret
	if secret == "" {
		secret = os.Getenv("GATEWAY_AUTH_SECRET")
	}
	if secret == "" {
		log.Fatal("gateway-server: no auth secret; set -auth-secret or $GATEWAY_AUTH_SECRET")
	}

	workspaces, err := workspace.NewRegistry(*workspacesPath)
	if err != nil {
		log.Fatalf("gateway-server: workspace registry: %v", err)
	}
	defer workspaces.Close()

	resolver := auth.NewCookieResolver([]byte(secret))

	dispatcher, err := gateway.New(cfg, resolver, workspaces)
	if err != nil {
		log.Fatalf("gateway-server: %v", err)
	}

	port, err := dispatcher.EnsureStarted()
	if err != nil {
		log.Fatalf("gateway-server: start: %v", err)
	}
	log.Printf("gateway-server: listening on :%d (allowedRoot=%s)", port, cfg.AllowedRoot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Print("gateway-server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gatewayShutdownGrace)
	defer cancel()
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Printf("gateway-server: shutdown: %v", err)
	}
}
