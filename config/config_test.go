package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRequiresAllowedRoot(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Fatal("Load with no allowedRoot configured should error")
	}
}

func TestLoadRejectsBareUserIDWithoutDebug(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "allowedRoot: " + dir + "\nallowBareUserIDQueryParam: true\ndebug: false\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load should reject allowBareUserIDQueryParam without debug")
	}
}

func TestLoadAcceptsBareUserIDWithDebug(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "allowedRoot: " + dir + "\nallowBareUserIDQueryParam: true\ndebug: true\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.AllowBareUserIDQueryParam || !cfg.Debug {
		t.Fatalf("cfg = %+v, want both flags true", cfg)
	}
}

func TestLoadMissingFileStillRequiresAllowedRoot(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.AllowedRoot = dir

	_, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("Load should still require allowedRoot even when the file is missing")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("allowedRoot: "+dir+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("WS_PING_INTERVAL", "1000")
	t.Setenv("WS_DEBUG", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PingInterval.Milliseconds() != 1000 {
		t.Fatalf("PingInterval = %v, want 1s", cfg.PingInterval)
	}
	if !cfg.Debug {
		t.Fatal("WS_DEBUG=true should set Debug")
	}
}
