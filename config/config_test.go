package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trellis.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
logging:
  level: debug
remoting:
  path: /rpc
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Remoting.Path != "/rpc" {
		t.Errorf("remoting path = %q, want /rpc", cfg.Remoting.Path)
	}
	// Fields absent from the file keep defaults.
	if cfg.Server.ShutdownSec != 10 {
		t.Errorf("shutdown = %d, want default 10", cfg.Server.ShutdownSec)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"bad-port", "server:\n  port: 70000\n"},
		{"auth-without-secret", "auth:\n  enabled: true\n"},
		{"negative-limits", "limits:\n  requests_per_second: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.contents)); err == nil {
				t.Fatal("expected validation error, got none")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRELLIS_PORT", "7070")
	t.Setenv("TRELLIS_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070 from env", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q, want warn from env", cfg.Logging.Level)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
}
