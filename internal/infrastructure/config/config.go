package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Event log storage drivers.
const (
	EventLogDriverSQLite   = "sqlite"
	EventLogDriverPostgres = "postgres"
)

// Config is the root configuration structure for the RV-C bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	EventLog  EventLogConfig  `yaml:"eventlog"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	Devices   DevicesConfig   `yaml:"devices"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// EventLogConfig selects and tunes the device event log.
type EventLogConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`

	// QueueSize is the number of entries buffered for asynchronous writes.
	QueueSize int `yaml:"queue_size"`

	// DefaultLimit and MaxLimit bound the page size of log queries.
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTTopicsConfig contains the topic namespace used on the bus.
type MQTTTopicsConfig struct {
	// Prefix is prepended to command and status topics. Default: "RVC/"
	Prefix string `yaml:"prefix"`

	// DiscoveryPrefix is the home automation discovery namespace. Default: "homeassistant"
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// PostgresConfig contains PostgreSQL settings used when eventlog.driver is "postgres".
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig contains the administrator credentials guarding the log endpoints.
type AuthConfig struct {
	Username string `yaml:"username"`

	// Password is compared in constant time when PasswordHash is empty.
	Password string `yaml:"password"`

	// PasswordHash is an Argon2id PHC string. Takes precedence over Password.
	PasswordHash string `yaml:"password_hash"`

	// Realm is sent in the WWW-Authenticate challenge.
	Realm string `yaml:"realm"`
}

// DevicesConfig controls which devices exist before any bus traffic is seen.
type DevicesConfig struct {
	// SeedTestDevices provisions the five demonstration devices at startup.
	SeedTestDevices bool `yaml:"seed_test_devices"`

	// Seed lists additional devices to provision at startup.
	Seed []DeviceSeedConfig `yaml:"seed"`

	// CommandHistory is the number of command results kept for status lookup.
	CommandHistory int `yaml:"command_history"`
}

// DeviceSeedConfig describes one pre-provisioned device.
type DeviceSeedConfig struct {
	ID         string         `yaml:"id"`
	Type       string         `yaml:"type"`
	Attributes map[string]any `yaml:"attributes"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RVCBRIDGE_SECTION_KEY
// For example: RVCBRIDGE_DATABASE_PATH, RVCBRIDGE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading a file.
// Environment overrides are not applied.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/rvcbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		EventLog: EventLogConfig{
			Driver:       EventLogDriverSQLite,
			QueueSize:    256,
			DefaultLimit: 100,
			MaxLimit:     1000,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "mosquitto",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				Prefix:          "RVC/",
				DiscoveryPrefix: "homeassistant",
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Postgres: PostgresConfig{
			MaxConns: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Auth: AuthConfig{
			Username: "admin",
			Password: "rvpass",
			Realm:    "RV-C MQTT Control Application",
		},
		Devices: DevicesConfig{
			CommandHistory: 100,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RVCBRIDGE_SECTION_KEY.
// The unprefixed MQTT_* and ADMIN_* variables of earlier deployments are honoured
// first so that the prefixed forms win when both are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MQTT_BROKER_URL"); v != "" {
		if err := applyBrokerURL(&cfg.MQTT.Broker, v); err != nil {
			return err
		}
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("ADMIN_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}

	// Database
	if v := os.Getenv("RVCBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Event log
	if v := os.Getenv("RVCBRIDGE_EVENTLOG_DRIVER"); v != "" {
		cfg.EventLog.Driver = v
	}
	if v := os.Getenv("RVCBRIDGE_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}

	// MQTT
	if v := os.Getenv("RVCBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RVCBRIDGE_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RVCBRIDGE_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("RVCBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RVCBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("RVCBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("RVCBRIDGE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RVCBRIDGE_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// InfluxDB
	if v := os.Getenv("RVCBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Admin credentials
	if v := os.Getenv("RVCBRIDGE_AUTH_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("RVCBRIDGE_AUTH_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	if v := os.Getenv("RVCBRIDGE_AUTH_PASSWORD_HASH"); v != "" {
		cfg.Auth.PasswordHash = v
	}

	return nil
}

// applyBrokerURL splits a broker URL such as mqtt://mosquitto:1883 into
// host, port and TLS flag.
func applyBrokerURL(broker *MQTTBrokerConfig, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("MQTT_BROKER_URL: %w", err)
	}

	switch u.Scheme {
	case "mqtt", "tcp":
		broker.TLS = false
	case "mqtts", "ssl", "tls":
		broker.TLS = true
	default:
		return fmt.Errorf("MQTT_BROKER_URL: unsupported scheme %q", u.Scheme)
	}

	if host := u.Hostname(); host != "" {
		broker.Host = host
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("MQTT_BROKER_URL port: %w", err)
		}
		broker.Port = port
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Event log validation
	switch c.EventLog.Driver {
	case EventLogDriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required")
		}
	case EventLogDriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, "postgres.dsn is required when eventlog.driver is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("eventlog.driver must be %q or %q", EventLogDriverSQLite, EventLogDriverPostgres))
	}
	if c.EventLog.QueueSize < 1 {
		errs = append(errs, "eventlog.queue_size must be at least 1")
	}
	if c.EventLog.DefaultLimit < 1 || c.EventLog.MaxLimit < c.EventLog.DefaultLimit {
		errs = append(errs, "eventlog.default_limit must be positive and not exceed eventlog.max_limit")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.Prefix == "" {
		errs = append(errs, "mqtt.topics.prefix is required")
	} else if strings.ContainsAny(c.MQTT.Topics.Prefix, "+#") {
		errs = append(errs, "mqtt.topics.prefix must not contain wildcards")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Auth validation
	if c.Auth.Username == "" {
		errs = append(errs, "auth.username is required")
	}
	if c.Auth.Password == "" && c.Auth.PasswordHash == "" {
		errs = append(errs, "auth.password or auth.password_hash is required")
	}

	// Device validation
	if c.Devices.CommandHistory < 1 {
		errs = append(errs, "devices.command_history must be at least 1")
	}
	for i, seed := range c.Devices.Seed {
		if seed.ID == "" || seed.Type == "" {
			errs = append(errs, fmt.Sprintf("devices.seed[%d] requires id and type", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
