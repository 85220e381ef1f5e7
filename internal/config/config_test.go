package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdir changes into dir for the duration of the test; t.Chdir needs Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore chdir: %v", err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
	if cfg.Database.URL != "" || cfg.Database.MaxOpenConns != 25 {
		t.Errorf("database defaults: %+v", cfg.Database)
	}
	if cfg.Query.RetryCount != 3 || cfg.Query.RetryDelay != time.Second ||
		cfg.Query.Timeout != 10*time.Second || cfg.Query.Debounce != 500*time.Millisecond ||
		cfg.Query.PageSize != 50 || cfg.Query.MaxQueries != 100 {
		t.Errorf("query defaults: %+v", cfg.Query)
	}
	if cfg.Query.BreakerFailures != 0 || cfg.Query.BreakerCooldown != 30*time.Second {
		t.Errorf("breaker defaults: %+v", cfg.Query)
	}
	if cfg.Automation.OutboundTimeout != 10*time.Second {
		t.Errorf("automation defaults: %+v", cfg.Automation)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	content := `
server:
  port: 9090
query:
  retry_count: 5
  page_size: 25
logging:
  level: debug
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090 from file", cfg.Server.Port)
	}
	if cfg.Query.RetryCount != 5 || cfg.Query.PageSize != 25 {
		t.Errorf("query = %+v", cfg.Query)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Query.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want default", cfg.Query.Timeout)
	}
}

func TestLoadConfigPathEnvVar(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7001\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("port = %d, want 7001 from CONFIG_PATH file", cfg.Server.Port)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PC_SERVER_PORT", "7070")
	t.Setenv("PC_QUERY_RETRY_COUNT", "7")
	t.Setenv("PC_DATABASE_URL", "postgres://localhost:5432/companion")
	t.Setenv("PC_LOGGING_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, env must beat file", cfg.Server.Port)
	}
	if cfg.Query.RetryCount != 7 {
		t.Errorf("retry count = %d", cfg.Query.RetryCount)
	}
	if cfg.Database.URL != "postgres://localhost:5432/companion" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "page size zero",
			mutate:  func(c *Config) { c.Query.PageSize = 0 },
			wantErr: "page_size",
		},
		{
			name:    "negative retry delay",
			mutate:  func(c *Config) { c.Query.RetryDelay = -time.Second },
			wantErr: "retry_delay",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Query.Timeout = 0 },
			wantErr: "timeout",
		},
		{
			name:    "max queries zero",
			mutate:  func(c *Config) { c.Query.MaxQueries = 0 },
			wantErr: "max_queries",
		},
		{
			name:    "negative breaker failures",
			mutate:  func(c *Config) { c.Query.BreakerFailures = -1 },
			wantErr: "breaker_failures",
		},
		{
			name: "breaker without cooldown",
			mutate: func(c *Config) {
				c.Query.BreakerFailures = 5
				c.Query.BreakerCooldown = 0
			},
			wantErr: "breaker_cooldown",
		},
		{
			name:   "breaker enabled with cooldown",
			mutate: func(c *Config) { c.Query.BreakerFailures = 5 },
		},
		{
			name:    "non-postgres url",
			mutate:  func(c *Config) { c.Database.URL = "mysql://localhost/db" },
			wantErr: "postgres://",
		},
		{
			name:   "postgresql scheme accepted",
			mutate: func(c *Config) { c.Database.URL = "postgresql://localhost/db" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadInvalidConfigFails(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PC_SERVER_PORT", "0")

	if _, err := Load(); err == nil {
		t.Fatal("invalid port must fail load")
	}
}
