package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Blue Scout Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Stealth    StealthConfig    `yaml:"stealth"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Signatures SignaturesConfig `yaml:"signatures"`
	Connection ConnectionConfig `yaml:"connection"`
	Transport  TransportConfig  `yaml:"transport"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Control    ControlConfig    `yaml:"control"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EngineConfig identifies this engine instance on the message bus.
type EngineConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// HealthInterval is how often the retained health message is refreshed.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// StealthConfig selects the timing profile applied to every radio operation.
type StealthConfig struct {
	// Level is 1 (fast), 2 (balanced) or 3 (slowest, most irregular).
	Level int `yaml:"level"`

	// Seed fixes the random source when non-zero. Phase-driven schedules
	// (scan jitter, connection attempts, transmission shaping) then repeat
	// exactly; wall-clock kinds such as Jitter and scan pauses still vary
	// with the time they are sampled at.
	Seed uint64 `yaml:"seed"`
}

// DiscoveryConfig controls the persistent discovery loop.
type DiscoveryConfig struct {
	// AutoStart begins the discovery loop as soon as the engine is up.
	AutoStart bool `yaml:"auto_start"`

	// Interval is the nominal time between the start of two discovery passes.
	Interval time.Duration `yaml:"interval"`

	// MaxDuration bounds a persistent run. Zero means until stopped.
	MaxDuration time.Duration `yaml:"max_duration"`

	// ClassicProbability is the chance a pass uses the classic transport.
	ClassicProbability float64 `yaml:"classic_probability"`

	// ClearOnRescan empties the registry at the start of an explicit rescan.
	ClearOnRescan bool `yaml:"clear_on_rescan"`

	// RestoreOnStart reloads persisted devices into the registry at startup.
	RestoreOnStart bool `yaml:"restore_on_start"`

	// TransientBackoff is the pause after a recoverable scan error.
	TransientBackoff time.Duration `yaml:"transient_backoff"`

	// BreakerFailures is the run of consecutive scan failures that opens a
	// transport's circuit breaker; BreakerTimeout is how long it stays open.
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// SignaturesConfig points at the two signature documents.
type SignaturesConfig struct {
	VulnerabilitiesPath string `yaml:"vulnerabilities_path"`
	ExploitsPath        string `yaml:"exploits_path"`
}

// ConnectionConfig holds connection manager defaults.
type ConnectionConfig struct {
	// DefaultPort is the RFCOMM channel used when a caller gives none.
	DefaultPort int `yaml:"default_port"`

	// Characteristic is the GATT characteristic written by Send on session links.
	Characteristic string `yaml:"characteristic"`

	// CaptureQueueSize bounds inbound capture queues.
	CaptureQueueSize int `yaml:"capture_queue_size"`

	// RecvTimeout is the poll slice of classic socket I/O. Cancellation is
	// noticed within one slice.
	RecvTimeout time.Duration `yaml:"recv_timeout"`
}

// TransportConfig selects which radio transports are brought up.
type TransportConfig struct {
	ClassicEnabled       bool   `yaml:"classic_enabled"`
	AdvertisementEnabled bool   `yaml:"advertisement_enabled"`
	Adapter              string `yaml:"adapter"`
}

// ControlConfig configures the MQTT command surface.
type ControlConfig struct {
	// Enabled has no effect unless mqtt.enabled is also set.
	Enabled bool `yaml:"enabled"`

	// RateLimit is the sustained number of commands accepted per second;
	// Burst is how many may arrive at once.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// CommandTimeout bounds connect, send and other single-shot commands.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BLUESCOUT_SECTION_KEY
// For example: BLUESCOUT_DATABASE_PATH, BLUESCOUT_STEALTH_LEVEL
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Used when no config file is present.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			ID:             "scout-001",
			Name:           "Blue Scout",
			HealthInterval: 30 * time.Second,
		},
		Stealth: StealthConfig{
			Level: 2,
		},
		Discovery: DiscoveryConfig{
			Interval:           60 * time.Second,
			MaxDuration:        time.Hour,
			ClassicProbability: 0.7,
			TransientBackoff:   time.Second,
			BreakerFailures:    5,
			BreakerTimeout:     30 * time.Second,
		},
		Signatures: SignaturesConfig{
			VulnerabilitiesPath: "./data/vulnerabilities.json",
			ExploitsPath:        "./data/exploits.json",
		},
		Connection: ConnectionConfig{
			DefaultPort:      1,
			Characteristic:   "0000ffe1-0000-1000-8000-00805f9b34fb",
			CaptureQueueSize: 256,
			RecvTimeout:      500 * time.Millisecond,
		},
		Transport: TransportConfig{
			ClassicEnabled:       true,
			AdvertisementEnabled: true,
			Adapter:              "hci0",
		},
		Database: DatabaseConfig{
			Path:        "./data/bluescout.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "bluescout-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Control: ControlConfig{
			Enabled:        true,
			RateLimit:      5,
			Burst:          10,
			CommandTimeout: 30 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "bluescout",
			BatchSize:     500,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BLUESCOUT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BLUESCOUT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("BLUESCOUT_STEALTH_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stealth.Level = n
		}
	}
	if v := os.Getenv("BLUESCOUT_ADAPTER"); v != "" {
		cfg.Transport.Adapter = v
	}

	if v := os.Getenv("BLUESCOUT_SIGNATURES_VULNERABILITIES"); v != "" {
		cfg.Signatures.VulnerabilitiesPath = v
	}
	if v := os.Getenv("BLUESCOUT_SIGNATURES_EXPLOITS"); v != "" {
		cfg.Signatures.ExploitsPath = v
	}

	if v := os.Getenv("BLUESCOUT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BLUESCOUT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BLUESCOUT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("BLUESCOUT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.ID == "" {
		errs = append(errs, "engine.id is required")
	}

	if c.Stealth.Level < 1 || c.Stealth.Level > 3 {
		errs = append(errs, "stealth.level must be 1, 2, or 3")
	}

	if c.Discovery.Interval < 0 {
		errs = append(errs, "discovery.interval must not be negative")
	}
	if c.Discovery.MaxDuration < 0 {
		errs = append(errs, "discovery.max_duration must not be negative")
	}
	if c.Discovery.ClassicProbability < 0 || c.Discovery.ClassicProbability > 1 {
		errs = append(errs, "discovery.classic_probability must be between 0 and 1")
	}

	if c.Connection.DefaultPort < 1 || c.Connection.DefaultPort > 30 {
		errs = append(errs, "connection.default_port must be an RFCOMM channel between 1 and 30")
	}
	if c.Connection.CaptureQueueSize < 1 {
		errs = append(errs, "connection.capture_queue_size must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Control.RateLimit < 0 || c.Control.Burst < 0 {
		errs = append(errs, "control.rate_limit and control.burst must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
