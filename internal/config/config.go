package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the zigator forensic analyzer. It's
// loaded once at process start and never mutated afterward.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Worker   WorkerConfig   `yaml:"worker"`
	Keys     KeysConfig     `yaml:"keys"`
	Security SecurityConfig `yaml:"security"`
}

// LogConfig controls zerolog's output.
type LogConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// DatabaseConfig selects and configures the packet store backend.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // sqlite3 or postgres
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig is optional: when URL is empty, the inference engine never
// attempts to publish discovery events and no NATS connection is opened.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"client_id"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// WorkerConfig sizes the parse and field-values worker pools.
type WorkerConfig struct {
	Count int `yaml:"count"`
}

// KeysConfig names the three TSV key-tablet files the KeyRing loads at
// startup. All three are optional: a missing file is a silent no-op, not an
// error, matching the original analyzer's behavior when no key material is
// supplied for a given tablet.
type KeysConfig struct {
	NetworkKeysFile  string `yaml:"network_keys_file"`
	LinkKeysFile     string `yaml:"link_keys_file"`
	InstallCodesFile string `yaml:"install_codes_file"`
}

// SecurityConfig holds policy decisions that the original analyzer left as
// open questions or silent behavior.
type SecurityConfig struct {
	// AttemptNonNetworkKeyTypes controls whether Data/Key-Transport/Key-Load
	// Key auxiliary headers are tried against link and derived keys, or
	// silently skipped the way the original analyzer's unfinished
	// aps_auxiliary dispatch does. Defaults to false.
	AttemptNonNetworkKeyTypes bool `yaml:"attempt_non_network_key_types"`

	// NegotiatedSecurityLevel is the security level frames are actually
	// encrypted under, since Zigbee's auxiliary security control octet
	// transmits a zeroed security-level subfield on the wire. Defaults to 5
	// (ENC-MIC-32), Zigbee PRO's standard default.
	NegotiatedSecurityLevel uint8 `yaml:"negotiated_security_level"`
}

// Load reads and parses a YAML configuration file, applies environment
// overrides, and fills in defaults for anything left unset.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("ZIGATOR_DATABASE_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if driver := os.Getenv("ZIGATOR_DATABASE_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if natsURL := os.Getenv("ZIGATOR_NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}
	if logLevel := os.Getenv("ZIGATOR_LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "zigator.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 4
	}
	if c.Worker.Count == 0 {
		c.Worker.Count = 4
	}
	if c.Security.NegotiatedSecurityLevel == 0 {
		c.Security.NegotiatedSecurityLevel = 5
	}
}

// PrintConfigSummary writes a short human-readable summary of the effective
// configuration, for the print-config subcommand.
func (c *Config) PrintConfigSummary() {
	fmt.Printf("=== zigator configuration ===\n")
	fmt.Printf("Log: level=%s format=%s\n", c.Log.Level, c.Log.Format)
	fmt.Printf("Database: driver=%s dsn=%s max_open_conns=%d\n", c.Database.Driver, c.Database.DSN, c.Database.MaxOpenConns)
	if c.NATS.URL != "" {
		fmt.Printf("NATS: url=%s client_id=%s\n", c.NATS.URL, c.NATS.ClientID)
	} else {
		fmt.Printf("NATS: disabled\n")
	}
	fmt.Printf("Worker count: %d\n", c.Worker.Count)
	fmt.Printf("Key tablets: network=%q link=%q install-codes=%q\n", c.Keys.NetworkKeysFile, c.Keys.LinkKeysFile, c.Keys.InstallCodesFile)
	fmt.Printf("Security: attempt_non_network_key_types=%v negotiated_level=%d\n", c.Security.AttemptNonNetworkKeyTypes, c.Security.NegotiatedSecurityLevel)
	fmt.Printf("==============================\n")
}
