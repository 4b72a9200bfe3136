package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDurationUnmarshalYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
catalog_path: configs/catalog.yaml
starting_cash: 50000
seed: 7
server:
  addr: ":9090"
  read_timeout: 5s
  write_timeout: 5s
  shutdown_timeout: 10s
  request_timeout: 3s
database:
  dsn: "postgres://u:p@localhost/db"
  conn_max_lifetime: 45m
scheduler:
  tick_spec: "@every 2s"
  retention_age: 720h
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ReadTimeout.D() != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout.D())
	}
	if cfg.Database.ConnMaxLifetime.D() != 45*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want 45m", cfg.Database.ConnMaxLifetime.D())
	}
	if cfg.Scheduler.RetentionAge.D() != 720*time.Hour {
		t.Errorf("RetentionAge = %v, want 720h", cfg.Scheduler.RetentionAge.D())
	}
	if cfg.StartingCash != 50000 {
		t.Errorf("StartingCash = %v, want 50000", cfg.StartingCash)
	}
	// fields left unset in the file fall back to Default()'s values.
	if cfg.Redis.KeyPrefix != "marketsim:" {
		t.Errorf("Redis.KeyPrefix = %q, want default", cfg.Redis.KeyPrefix)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "server:\n  read_timeout: not-a-duration\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error for invalid duration string")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults ok", func(c *Config) {}, false},
		{"missing catalog path", func(c *Config) { c.CatalogPath = "" }, true},
		{"negative starting cash", func(c *Config) { c.StartingCash = -1 }, true},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
