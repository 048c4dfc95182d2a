package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "DATABASE_URL", "REDIS_URL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	yaml := `
server:
  port: 9000
  read_timeout: 3s
log:
  level: debug
ledger:
  name: Billboard
  owner: "0x00000000000000000000000000000000000000aa"
  escrow_multiplier: 2
  strict_share_sum: false
database:
  url: postgres://localhost/adledger
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 3*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 3s", cfg.Server.ReadTimeout)
	}
	if cfg.Ledger.Name != "Billboard" {
		t.Errorf("Ledger.Name = %q, want %q", cfg.Ledger.Name, "Billboard")
	}
	if cfg.Ledger.StrictShareSum == nil || *cfg.Ledger.StrictShareSum {
		t.Error("Ledger.StrictShareSum should be explicitly false")
	}
	if cfg.Database.URL != "postgres://localhost/adledger" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_LEDGER_OWNER", "0x00000000000000000000000000000000000000aa")

	yaml := `
ledger:
  owner: ${TEST_LEDGER_OWNER}
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Ledger.Owner != "0x00000000000000000000000000000000000000aa" {
		t.Errorf("Ledger.Owner = %q", cfg.Ledger.Owner)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://env:6379/0")

	yaml := `
server:
  port: 9000
database:
  url: postgres://file/db
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://env/db" {
		t.Errorf("Database.URL = %q, want env value", cfg.Database.URL)
	}
	if cfg.Redis.URL != "redis://env:6379/0" {
		t.Errorf("Redis.URL = %q, want env value", cfg.Redis.URL)
	}
}

func TestLoadInvalidPortEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadWithDefaults("")
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)
	}
	if cfg.Ledger.Name != "Advertisement" {
		t.Errorf("Ledger.Name = %q, want Advertisement", cfg.Ledger.Name)
	}
	if cfg.Ledger.EscrowMultiplier != 3 {
		t.Errorf("Ledger.EscrowMultiplier = %d, want 3", cfg.Ledger.EscrowMultiplier)
	}
	if cfg.Ledger.StrictShareSum == nil || !*cfg.Ledger.StrictShareSum {
		t.Error("Ledger.StrictShareSum should default to true")
	}
	if cfg.Auth.Mode != "header" {
		t.Errorf("Auth.Mode = %q, want header", cfg.Auth.Mode)
	}
	if cfg.Redis.Channel != "adledger:events" {
		t.Errorf("Redis.Channel = %q", cfg.Redis.Channel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)

	if _, err := Load(writeTempFile(t, "server: [port")); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestLedgerParams(t *testing.T) {
	clearEnv(t)
	yaml := `
ledger:
  escrow_multiplier: 5
  allow_resettle: true
`
	cfg, err := LoadAndValidate(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	p := cfg.Ledger.Params()
	if !p.EscrowMultiplier.Equal(decimal.NewFromInt(5)) {
		t.Errorf("EscrowMultiplier = %s, want 5", p.EscrowMultiplier)
	}
	if !p.StrictShareSum {
		t.Error("StrictShareSum should default to true")
	}
	if !p.AllowResettle {
		t.Error("AllowResettle should be true")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("params should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad multiplier", func(c *Config) { c.Ledger.EscrowMultiplier = -1 }, "ledger.escrow_multiplier"},
		{"bad owner", func(c *Config) { c.Ledger.Owner = "0x12" }, "ledger.owner"},
		{"zero owner", func(c *Config) {
			c.Ledger.Owner = "0x0000000000000000000000000000000000000000"
		}, "ledger.owner"},
		{"trusted service without owner", func(c *Config) {
			c.Ledger.TrustedService = "0x00000000000000000000000000000000000000bb"
		}, "requires ledger.owner"},
		{"bad auth mode", func(c *Config) { c.Auth.Mode = "basic" }, "auth.mode"},
		{"signature mode", func(c *Config) { c.Auth.Mode = "signature" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := (LogConfig{Level: tt.level}).SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
