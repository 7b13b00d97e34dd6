package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadClientConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
host = "rpc.internal"
port = 9090
auth_secret = "s3cret"
timeout = "10s"
max_connect_attempts = 3
tls_ca_file = "/etc/ssl/ca.pem"
tls_self_signed = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadClientConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Host != "rpc.internal" || cfg.Port != 9090 {
		t.Fatalf("unexpected address: %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Timeout)
	}
	if cfg.MaxConnectAttempts != 3 {
		t.Fatalf("unexpected attempts: %d", cfg.MaxConnectAttempts)
	}
	if cfg.TLSCAFile != "/etc/ssl/ca.pem" || !cfg.TLSSelfSigned {
		t.Fatalf("unexpected tls config: %q %v", cfg.TLSCAFile, cfg.TLSSelfSigned)
	}
	// Absent keys keep defaults.
	if cfg.ConnectTimeout != 5*time.Second {
		t.Fatalf("connect timeout should stay default, got %v", cfg.ConnectTimeout)
	}
}
