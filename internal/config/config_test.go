package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  addr: ":9090"
  read_timeout: 10s
database:
  dsn: ":memory:"
auth:
  admin_token: root-secret
proxies:
  - name: direct
    kind: none
  - name: corp
    kind: url
    url: http://proxy.internal:8080
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("dsn = %q, want %q", cfg.Database.DSN, ":memory:")
	}
	if len(cfg.Proxies) != 2 {
		t.Fatalf("proxies count = %d, want 2", len(cfg.Proxies))
	}
	if cfg.Proxies[1].URL != "http://proxy.internal:8080" {
		t.Errorf("proxy url = %q", cfg.Proxies[1].URL)
	}
}

func TestLoadRequiresAdminToken(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load: want error for missing AUTH_TOKEN, got nil")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-secret-123")

	result := expandEnv([]byte("key: ${TEST_API_KEY}"))
	if string(result) != "key: sk-secret-123" {
		t.Errorf("expandEnv = %q, want %q", string(result), "key: sk-secret-123")
	}
}

func TestLoadDefaults(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv.
	t.Setenv("AUTH_TOKEN", "root-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Database.DSN != "gandalf.db" {
		t.Errorf("default dsn = %q, want %q", cfg.Database.DSN, "gandalf.db")
	}
	if cfg.Auth.KeyPrefix != "sk-" {
		t.Errorf("default key prefix = %q, want sk-", cfg.Auth.KeyPrefix)
	}
	if !cfg.Auth.SafeHash {
		t.Error("default safe_hash = false, want true")
	}
	if cfg.Auth.AdminToken != "root-secret" {
		t.Errorf("admin token = %q, want root-secret (from AUTH_TOKEN)", cfg.Auth.AdminToken)
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Setenv("AUTH_TOKEN", "env-token")
	t.Setenv("KEY_PREFIX", "zk-")
	t.Setenv("SAFE_HASH", "false")
	t.Setenv("REQUEST_LOGS_LIMIT", "5000")

	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	yaml := "auth:\n  admin_token: file-token\n  key_prefix: sk-\n  safe_hash: true\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.AdminToken != "env-token" {
		t.Errorf("admin token = %q, want env-token", cfg.Auth.AdminToken)
	}
	if cfg.Auth.KeyPrefix != "zk-" {
		t.Errorf("key prefix = %q, want zk-", cfg.Auth.KeyPrefix)
	}
	if cfg.Auth.SafeHash {
		t.Error("safe_hash = true, want false (env override)")
	}
	if cfg.Auth.RequestLogsLimit != 5000 {
		t.Errorf("request logs limit = %d, want 5000", cfg.Auth.RequestLogsLimit)
	}
}
