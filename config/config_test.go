package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Database.Driver = %q, want sqlite3", cfg.Database.Driver)
	}
	if cfg.Auth.TokenTTL != 7*24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v", cfg.Auth.TokenTTL)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BEGTASK_DATABASE_DRIVER", "sqlite")
	t.Setenv("BEGTASK_AUTH_TOKEN_TTL", "2h")
	t.Setenv("BEGTASK_AUTH_ADMIN_EMAILS", "ana@example.com,bia@example.com")
	t.Setenv("JWT_SECRET", "legacy-secret")
	t.Setenv("PORT", "9090")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 2h", cfg.Auth.TokenTTL)
	}
	if len(cfg.Auth.AdminEmails) != 2 || cfg.Auth.AdminEmails[1] != "bia@example.com" {
		t.Errorf("Auth.AdminEmails = %v", cfg.Auth.AdminEmails)
	}
	if cfg.Auth.JWTSecret != "legacy-secret" {
		t.Errorf("Auth.JWTSecret = %q, want legacy-secret", cfg.Auth.JWTSecret)
	}
	if cfg.UsesDefaultSecret() {
		t.Errorf("expected configured secret to be detected")
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "begtask.yaml")
	content := "server:\n  addr: \":7000\"\nsmtp:\n  host: mail.example.com\n  port: \"587\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Server.Addr = %q, want :7000", cfg.Server.Addr)
	}
	if cfg.SMTP.Host != "mail.example.com" || cfg.SMTP.Port != "587" {
		t.Errorf("SMTP = %+v", cfg.SMTP)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadEnvKeepsExistingVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nBEGTASK_TEST_A=\"from-file\"\nexport BEGTASK_TEST_B=b\nmalformed\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("BEGTASK_TEST_A", "from-process")
	t.Setenv("BEGTASK_TEST_B", "")
	os.Unsetenv("BEGTASK_TEST_B")

	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("BEGTASK_TEST_A"); got != "from-process" {
		t.Errorf("BEGTASK_TEST_A = %q, want from-process", got)
	}
	if got := os.Getenv("BEGTASK_TEST_B"); got != "b" {
		t.Errorf("BEGTASK_TEST_B = %q, want b", got)
	}
}
