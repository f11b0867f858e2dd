package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ansd.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestStandardPaths(t *testing.T) {
	paths := StandardPaths()
	if len(paths) == 0 || paths[0] != "ansd.toml" {
		t.Errorf("first path should be ansd.toml, got %v", paths)
	}
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Events.Subject != "ans-sync" {
		t.Errorf("Subject = %q", cfg.Events.Subject)
	}
	if cfg.EventBus() != BusMemory || cfg.UsesNATS() {
		t.Errorf("memory store should use the memory bus")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
[server]
addr = "127.0.0.1:9000"
shutdown_timeout = "3s"

[store]
backend = "badger"
data_dir = "/var/lib/ans"
indexed = true

[events]
publish_timeout = "500ms"

[lookup]
default_limit = 25
max_limit = 50

[rate_limit]
capacity = 5
window = "10s"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Server.ShutdownTimeout.Duration != 3*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Store.Backend != BackendBadger || !cfg.Store.Indexed || cfg.Store.DataDir != "/var/lib/ans" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Events.PublishTimeout.Duration != 500*time.Millisecond {
		t.Errorf("publish_timeout = %v", cfg.Events.PublishTimeout)
	}
	if cfg.Lookup.DefaultLimit != 25 || cfg.Lookup.MaxLimit != 50 || cfg.Lookup.OverfetchFactor != 3 {
		t.Errorf("lookup = %+v", cfg.Lookup)
	}
	if cfg.RateLimit.Capacity != 5 || cfg.RateLimit.Window.Duration != 10*time.Second {
		t.Errorf("rate_limit = %+v", cfg.RateLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "[server]\nport = 1\n", "unknown keys"},
		{"bad duration", "[server]\nshutdown_timeout = \"soon\"\n", "invalid duration"},
		{"bad syntax", "[server\n", "ansd.toml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"PORT":                        "3000",
		"ANS_STORE":                   "NATS",
		"NATS_URL":                    "nats://bus:4222",
		"ANS_LOG_LEVEL":               "debug",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4317",
	}))

	if cfg.Server.Addr != ":3000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Backend != BackendNATS || cfg.NATS.URL != "nats://bus:4222" {
		t.Errorf("store/nats = %+v %+v", cfg.Store, cfg.NATS)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.EventBus() != BusNATS || !cfg.UsesNATS() {
		t.Error("nats store should default to the nats bus")
	}

	cfg.ApplyEnv(envMap(map[string]string{"PORT": "3000", "ANS_ADDR": "0.0.0.0:9999"}))
	if cfg.Server.Addr != "0.0.0.0:9999" {
		t.Errorf("ANS_ADDR should win over PORT, got %q", cfg.Server.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }, "unknown store backend"},
		{"badger without dir", func(c *Config) { c.Store.Backend = BackendBadger }, "data_dir"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"unknown bus", func(c *Config) { c.Events.Bus = "kafka" }, "event bus"},
		{"nats without url", func(c *Config) { c.Events.Bus = BusNATS; c.NATS.URL = "" }, "nats.url"},
		{"file audit without path", func(c *Config) { c.Events.AuditProtocol = "file" }, "audit_endpoint"},
		{"unknown audit", func(c *Config) { c.Events.AuditProtocol = "syslog" }, "audit protocol"},
		{"unknown telemetry protocol", func(c *Config) { c.Telemetry.Protocol = "udp" }, "telemetry protocol"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "sample_ratio"},
		{"verification time", func(c *Config) { c.Registration.EstimatedVerificationTime = "soon" }, "estimated_verification_time"},
		{"negative rate limit", func(c *Config) { c.RateLimit.Capacity = -1 }, "rate_limit.capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_ExplicitPathAndEnv(t *testing.T) {
	path := writeFile(t, "[log]\nlevel = \"warn\"\n")
	t.Setenv("ANS_LOG_LEVEL", "error")

	cfg, used, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != path {
		t.Errorf("used = %q, want %q", used, path)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("env should override file, got %q", cfg.Log.Level)
	}
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Error("expected error for missing explicit path")
	}
}
