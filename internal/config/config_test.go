package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  secret: test-secret
storage:
  sqlite:
    path: `+filepath.Join(t.TempDir(), "db", "test.db")+`
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Server.Address)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("expected default backend sqlite, got %s", cfg.Storage.Backend)
	}
	if cfg.TokenTTL().Hours() != 24 {
		t.Errorf("expected default TTL 24h, got %v", cfg.TokenTTL())
	}
	if cfg.StorageOpTimeout().Seconds() != 5 {
		t.Errorf("expected default op timeout 5s, got %v", cfg.StorageOpTimeout())
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("STUDIOBOOK_SECRET", "from-env")

	path := writeConfig(t, `
auth:
  secret: ${STUDIOBOOK_SECRET}
storage:
  backend: redis
  redis:
    address: localhost:6379
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Errorf("expected secret from env, got %q", cfg.Auth.Secret)
	}
	if cfg.Storage.Backend != BackendRedis {
		t.Errorf("expected redis backend, got %s", cfg.Storage.Backend)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing secret",
			content: "server:\n  address: :9090\n",
		},
		{
			name:    "unknown backend",
			content: "auth:\n  secret: x\nstorage:\n  backend: mongodb\n",
		},
		{
			name:    "fallback equals primary",
			content: "auth:\n  secret: x\nstorage:\n  backend: sqlite\n  fallback: sqlite\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
