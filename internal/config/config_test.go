package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WAFRA_API_URL", "https://api.example.com")
	t.Setenv("WAFRA_ANON_KEY", "anon-123")
	t.Setenv("WAFRA_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIURL != "https://api.example.com" || cfg.AnonKey != "anon-123" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Timeouts.Login != 15*time.Second || cfg.Timeouts.Restore != 8*time.Second {
		t.Fatalf("default timeouts wrong: %+v", cfg.Timeouts)
	}
	if cfg.Sandbox.Addr != ":8090" {
		t.Fatalf("sandbox addr = %q", cfg.Sandbox.Addr)
	}
}

func TestLoadRequiresURLAndKey(t *testing.T) {
	t.Setenv("WAFRA_API_URL", "")
	t.Setenv("WAFRA_ANON_KEY", "")
	t.Setenv("WAFRA_CONFIG", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error with no configuration")
	}
}

func TestLoadYAMLFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wafra.yaml")
	yaml := `
api_url: https://file.example.com
anon_key: file-key
timeouts:
  login: 3s
sandbox:
  addr: ":9999"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WAFRA_CONFIG", path)
	t.Setenv("WAFRA_API_URL", "https://env.example.com")
	t.Setenv("WAFRA_ANON_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	// Environment wins over the file.
	if cfg.APIURL != "https://env.example.com" {
		t.Fatalf("api url = %q", cfg.APIURL)
	}
	if cfg.AnonKey != "file-key" {
		t.Fatalf("anon key = %q", cfg.AnonKey)
	}
	if cfg.Timeouts.Login != 3*time.Second {
		t.Fatalf("login timeout = %s", cfg.Timeouts.Login)
	}
	// Unset timeouts keep their defaults.
	if cfg.Timeouts.OAuth != 30*time.Second {
		t.Fatalf("oauth timeout = %s", cfg.Timeouts.OAuth)
	}
	if cfg.Sandbox.Addr != ":9999" {
		t.Fatalf("sandbox addr = %q", cfg.Sandbox.Addr)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	t.Setenv("WAFRA_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("WAFRA_API_URL", "https://api.example.com")
	t.Setenv("WAFRA_ANON_KEY", "k")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
