package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "page-loader.yaml")
	configYAML := `
http:
  timeout_seconds: 45
  user_agent: real-agent
  max_body_bytes: 1048576
fetch:
  concurrency: 6
  rate_per_second: 2.5
  burst: 3
headless:
  enabled: true
  mode: auto
  nav_timeout_seconds: 20
  promotion_threshold: 4096
logging:
  development: true
  level: debug
metrics:
  textfile: /tmp/page-loader.prom
tracing:
  enabled: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.UserAgent != "real-agent" || cfg.HTTP.MaxBodyBytes != 1048576 {
		t.Fatalf("expected http overrides to apply: %+v", cfg.HTTP)
	}
	if cfg.Fetch.Concurrency != 6 || cfg.Fetch.RatePerSecond != 2.5 || cfg.Fetch.Burst != 3 {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if !cfg.Headless.Enabled || cfg.Headless.Mode != HeadlessAuto || cfg.Headless.PromotionThresh != 4096 ||
		cfg.NavigationTimeout() != 20*time.Second {
		t.Fatalf("expected headless overrides to apply: %+v", cfg.Headless)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides to apply: %+v", cfg.Logging)
	}
	if cfg.Metrics.Textfile != "/tmp/page-loader.prom" {
		t.Fatalf("expected metrics textfile, got %q", cfg.Metrics.Textfile)
	}
	if !cfg.Tracing.Enabled {
		t.Fatal("expected tracing to be enabled")
	}
	if got := cfg.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.TimeoutSeconds != 30 || cfg.HTTP.UserAgent != DefaultUserAgent || cfg.HTTP.MaxBodyBytes != 0 {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if cfg.Fetch.Concurrency != 0 || cfg.Fetch.RatePerSecond != 0 || cfg.Fetch.Burst != 1 {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if cfg.Headless.Enabled || cfg.Headless.Mode != HeadlessAlways || cfg.Headless.NavTimeoutSec != 30 ||
		cfg.Headless.PromotionThresh != 2048 {
		t.Fatalf("unexpected headless defaults: %+v", cfg.Headless)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PAGELOADER_FETCH_CONCURRENCY", "3")
	t.Setenv("PAGELOADER_HTTP_USER_AGENT", "env-agent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.Concurrency != 3 || cfg.HTTP.UserAgent != "env-agent" {
		t.Fatalf("expected env overrides, got %+v %+v", cfg.Fetch, cfg.HTTP)
	}
}

func TestLoadSearchesWorkingDir(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())
	if err := os.WriteFile(filepath.Join(dir, "page-loader.yaml"), []byte("fetch:\n  concurrency: 9\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.Concurrency != 9 {
		t.Fatalf("expected concurrency from discovered file, got %d", cfg.Fetch.Concurrency)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Fetch:   FetchConfig{Burst: 1},
		Logging: LoggingConfig{Level: "warn"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "negative body limit",
			cfg: func() Config {
				c := base
				c.HTTP.MaxBodyBytes = -1
				return c
			}(),
			want: "http.max_body_bytes",
		},
		{
			name: "negative concurrency",
			cfg: func() Config {
				c := base
				c.Fetch.Concurrency = -1
				return c
			}(),
			want: "fetch.concurrency",
		},
		{
			name: "rate without burst",
			cfg: func() Config {
				c := base
				c.Fetch.RatePerSecond = 1
				c.Fetch.Burst = 0
				return c
			}(),
			want: "fetch.burst",
		},
		{
			name: "headless missing nav timeout",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				return c
			}(),
			want: "headless.nav_timeout_seconds",
		},
		{
			name: "unknown headless mode",
			cfg: func() Config {
				c := base
				c.Headless.Mode = "sometimes"
				return c
			}(),
			want: "headless.mode",
		},
		{
			name: "unknown log level",
			cfg: func() Config {
				c := base
				c.Logging.Level = "verbose"
				return c
			}(),
			want: "logging.level",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
}
