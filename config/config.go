// Package config loads ansd settings.
//
// Settings come from three layers, later ones winning: built-in defaults,
// a TOML file, and the environment. A .env file in the working directory
// is loaded into the environment first when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendNATS   = "nats"
)

// Config is the full daemon configuration.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Store        StoreConfig        `toml:"store"`
	NATS         NATSConfig         `toml:"nats"`
	Events       EventsConfig       `toml:"events"`
	Lookup       LookupConfig       `toml:"lookup"`
	Registration RegistrationConfig `toml:"registration"`
	RateLimit    RateLimitConfig    `toml:"rate_limit"`
	Log          LogConfig          `toml:"log"`
	Telemetry    TelemetryConfig    `toml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string   `toml:"addr"`
	ReadHeaderTimeout Duration `toml:"read_header_timeout"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout"`
	MaxBodyBytes      int64    `toml:"max_body_bytes"`
}

// StoreConfig selects and configures the agent store.
type StoreConfig struct {
	// Backend is "memory", "badger" or "nats".
	Backend string `toml:"backend"`

	// DataDir holds Badger files.
	DataDir string `toml:"data_dir"`

	// Bucket is the NATS KV bucket.
	Bucket string `toml:"bucket"`

	// Indexed puts a search index in front of the backend.
	Indexed bool `toml:"indexed"`
}

// NATSConfig configures the shared NATS connection.
type NATSConfig struct {
	URL      string `toml:"url"`
	Name     string `toml:"name"`
	Token    string `toml:"token"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// Event bus transports.
const (
	BusMemory = "memory"
	BusNATS   = "nats"
)

// EventsConfig configures registry notifications.
type EventsConfig struct {
	// Bus is "memory" or "nats". Empty follows the store backend.
	Bus string `toml:"bus"`

	Subject        string   `toml:"subject"`
	QueueSize      int      `toml:"queue_size"`
	PublishTimeout Duration `toml:"publish_timeout"`
	Heartbeat      Duration `toml:"heartbeat"`

	// AuditProtocol is "noop", "file" or "http".
	AuditProtocol string `toml:"audit_protocol"`
	AuditEndpoint string `toml:"audit_endpoint"`
}

// LookupConfig configures discovery paging.
type LookupConfig struct {
	DefaultLimit    int `toml:"default_limit"`
	MaxLimit        int `toml:"max_limit"`
	OverfetchFactor int `toml:"overfetch_factor"`
	MaxStoreCalls   int `toml:"max_store_calls"`
}

// RegistrationConfig configures the registration receipt.
type RegistrationConfig struct {
	EstimatedVerificationTime string `toml:"estimated_verification_time"`
}

// RateLimitConfig throttles the write routes per client address.
type RateLimitConfig struct {
	// Capacity is the burst per client. Zero disables throttling.
	Capacity int      `toml:"capacity"`
	Window   Duration `toml:"window"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// TelemetryConfig configures tracing. Tracing is off unless Enabled is set
// or an OTLP endpoint is present.
type TelemetryConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	Protocol    string  `toml:"protocol"`
	Insecure    bool    `toml:"insecure"`
	SampleRatio float64 `toml:"sample_ratio"`
	Debug       bool    `toml:"debug"`
}

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText writes the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{10 * time.Second},
			ShutdownTimeout:   Duration{15 * time.Second},
			MaxBodyBytes:      1 << 20,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Bucket:  "ans-agents",
		},
		NATS: NATSConfig{
			URL:  "nats://127.0.0.1:4222",
			Name: "ansd",
		},
		Events: EventsConfig{
			Subject:        "ans-sync",
			QueueSize:      1024,
			PublishTimeout: Duration{2 * time.Second},
			Heartbeat:      Duration{30 * time.Second},
			AuditProtocol:  "noop",
		},
		Lookup: LookupConfig{
			DefaultLimit:    10,
			MaxLimit:        100,
			OverfetchFactor: 3,
			MaxStoreCalls:   10,
		},
		Registration: RegistrationConfig{
			EstimatedVerificationTime: "30s",
		},
		RateLimit: RateLimitConfig{
			Capacity: 60,
			Window:   Duration{time.Minute},
		},
		Log: LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			SampleRatio: 1,
		},
	}
}

// StandardPaths returns the config file locations in order of priority.
func StandardPaths() []string {
	paths := []string{"ansd.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ans", "ansd.toml"))
	}
	return paths
}

// Load builds the configuration. An explicit path must exist; otherwise
// the first standard path present is used, and none is not an error.
// It returns the file actually read, or "".
func Load(path string) (*Config, string, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		for _, p := range StandardPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, path, err
		}
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFile decodes path over the defaults without consulting the
// environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.decodeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config: %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overrides settings from environment variables read via getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := getenv("ANS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("ANS_STORE"); v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	if v := getenv("ANS_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := getenv("ANS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendNATS:
	case BackendBadger:
		if c.Store.DataDir == "" {
			return fmt.Errorf("config: store.data_dir is required for the badger backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	switch c.Events.Bus {
	case "", BusMemory, BusNATS:
	default:
		return fmt.Errorf("config: unknown event bus %q", c.Events.Bus)
	}
	if c.UsesNATS() && c.NATS.URL == "" {
		return fmt.Errorf("config: nats.url is required")
	}

	switch c.Events.AuditProtocol {
	case "", "noop":
	case "file", "http":
		if c.Events.AuditEndpoint == "" {
			return fmt.Errorf("config: events.audit_endpoint is required for %s audit", c.Events.AuditProtocol)
		}
	default:
		return fmt.Errorf("config: unknown audit protocol %q", c.Events.AuditProtocol)
	}

	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("config: unknown telemetry protocol %q", c.Telemetry.Protocol)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: telemetry.sample_ratio must be within [0, 1]")
	}

	if c.RateLimit.Capacity < 0 {
		return fmt.Errorf("config: rate_limit.capacity must not be negative")
	}

	if c.Registration.EstimatedVerificationTime != "" {
		if _, err := time.ParseDuration(c.Registration.EstimatedVerificationTime); err != nil {
			return fmt.Errorf("config: registration.estimated_verification_time: %w", err)
		}
	}
	return nil
}

// EventBus returns the effective event bus transport.
func (c *Config) EventBus() string {
	if c.Events.Bus != "" {
		return c.Events.Bus
	}
	if c.Store.Backend == BackendNATS {
		return BusNATS
	}
	return BusMemory
}

// UsesNATS reports whether any component needs a NATS connection.
func (c *Config) UsesNATS() bool {
	return c.Store.Backend == BackendNATS || c.EventBus() == BusNATS
}
