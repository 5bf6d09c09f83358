package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the aSysBus bridge.
// It is loaded from a YAML or TOML file and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge" toml:"bridge"`
	Serial   SerialConfig   `yaml:"serial" toml:"serial"`
	MQTT     MQTTConfig     `yaml:"mqtt" toml:"mqtt"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	InfluxDB InfluxDBConfig `yaml:"influxdb" toml:"influxdb"`
	Journal  JournalConfig  `yaml:"journal" toml:"journal"`
	API      APIConfig      `yaml:"api" toml:"api"`
}

// BridgeConfig contains the relay's own identity and queue settings.
type BridgeConfig struct {
	// ID is the bus address the bridge uses as source for frames it sends.
	ID uint16 `yaml:"id" toml:"id"`

	// TopicPrefix is prepended to every MQTT topic, e.g. "/asysbus".
	TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix"`

	// NumericMode is "corrected" or "legacy" (see asb.NumericMode).
	NumericMode string `yaml:"numeric_mode" toml:"numeric_mode"`

	// QueueSize is the capacity of each relay queue.
	QueueSize int `yaml:"queue_size" toml:"queue_size"`

	// HealthInterval is the health publish period in seconds. 0 disables it.
	HealthInterval int `yaml:"health_interval" toml:"health_interval"`
}

// SerialConfig contains the bus gateway UART settings.
type SerialConfig struct {
	Port     string `yaml:"port" toml:"port"`
	BaudRate int    `yaml:"baud_rate" toml:"baud_rate"`

	// ReadTimeout is the per-read timeout in milliseconds.
	ReadTimeout int `yaml:"read_timeout" toml:"read_timeout"`

	// ReconnectInterval is the initial reopen delay in seconds after the
	// port is lost. 0 makes a lost port fatal.
	ReconnectInterval int `yaml:"reconnect_interval" toml:"reconnect_interval"`

	// MaxReconnectInterval caps the reopen backoff in seconds.
	MaxReconnectInterval int `yaml:"max_reconnect_interval" toml:"max_reconnect_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker" toml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth" toml:"auth"`
	QoS       int                 `yaml:"qos" toml:"qos"`
	KeepAlive int                 `yaml:"keepalive" toml:"keepalive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect" toml:"reconnect"`

	// TopicPrefix is copied from BridgeConfig by Load so the client can
	// build its LWT topic. It is not read from the file.
	TopicPrefix string `yaml:"-" toml:"-"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// String returns the credentials with the password redacted.
func (a MQTTAuthConfig) String() string {
	if a.Password == "" {
		return fmt.Sprintf("username=%q", a.Username)
	}
	return fmt.Sprintf("username=%q password=[REDACTED]", a.Username)
}

// MarshalJSON redacts the password.
func (a MQTTAuthConfig) MarshalJSON() ([]byte, error) {
	redacted := ""
	if a.Password != "" {
		redacted = "[REDACTED]"
	}
	return json.Marshal(struct {
		Username string `json:"username"`
		Password string `json:"password,omitempty"`
	}{a.Username, redacted})
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay" toml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts" toml:"max_attempts"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// InfluxDBConfig contains InfluxDB connection settings for sensor telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval"`
}

// JournalConfig contains the SQLite frame journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Path        string `yaml:"path" toml:"path"`
	WALMode     bool   `yaml:"wal_mode" toml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" toml:"busy_timeout"`

	// RetentionHours is how long frames are kept. 0 keeps everything.
	RetentionHours int `yaml:"retention_hours" toml:"retention_hours"`
}

// APIConfig contains the HTTP status server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" toml:"enabled"`
	Host     string           `yaml:"host" toml:"host"`
	Port     int              `yaml:"port" toml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts" toml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" toml:"read"`
	Write int `yaml:"write" toml:"write"`
	Idle  int `yaml:"idle" toml:"idle"`
}

// Load reads configuration from a file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. A ".env" file next to the config file, if present
//  3. File values (YAML, or TOML for a ".toml" extension)
//  4. Environment variables (override file values)
//
// An empty path skips steps 2 and 3.
//
// Environment variables follow the pattern: ASB_SECTION_KEY
// For example: ASB_SERIAL_PORT, ASB_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	cfg.MQTT.TopicPrefix = cfg.Bridge.TopicPrefix

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied but without validation.
func Default() *Config {
	cfg := defaultConfig()
	_ = applyEnvOverrides(cfg) //nolint:errcheck // Malformed numbers keep their defaults
	cfg.MQTT.TopicPrefix = cfg.Bridge.TopicPrefix
	return cfg
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// loadDotEnv loads KEY=value pairs without overriding variables that are
// already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             0x0123,
			TopicPrefix:    "/asysbus",
			NumericMode:    "corrected",
			QueueSize:      1024,
			HealthInterval: 30,
		},
		Serial: SerialConfig{
			Port:                 "/dev/ttyUSB0",
			BaudRate:             115200,
			ReadTimeout:          500,
			ReconnectInterval:    0,
			MaxReconnectInterval: 60,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "asysbus-bridge",
			},
			QoS:       0,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Journal: JournalConfig{
			Path:           "./data/journal.db",
			WALMode:        true,
			BusyTimeout:    5,
			RetentionHours: 168,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ASB_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a number", key, v))
			return
		}
		*dst = n
	}

	// Bridge
	if v := os.Getenv("ASB_BRIDGE_ID"); v != "" {
		id, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ASB_BRIDGE_ID: %q is not a 16-bit address", v))
		} else {
			cfg.Bridge.ID = uint16(id)
		}
	}
	if v, ok := os.LookupEnv("ASB_TOPIC_PREFIX"); ok {
		cfg.Bridge.TopicPrefix = v
	}
	if v := os.Getenv("ASB_NUMERIC_MODE"); v != "" {
		cfg.Bridge.NumericMode = v
	}

	// Serial
	if v := os.Getenv("ASB_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	setInt("ASB_SERIAL_BAUD", &cfg.Serial.BaudRate)

	// MQTT
	if v := os.Getenv("ASB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	setInt("ASB_MQTT_PORT", &cfg.MQTT.Broker.Port)
	if v := os.Getenv("ASB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ASB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Logging
	if v := os.Getenv("ASB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// InfluxDB
	if v := os.Getenv("ASB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Journal
	if v := os.Getenv("ASB_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation
	if c.Bridge.ID == 0 || c.Bridge.ID > 0x07FF {
		errs = append(errs, "bridge.id must be a node address between 0x0001 and 0x07FF")
	}
	if strings.ContainsAny(c.Bridge.TopicPrefix, "+#") {
		errs = append(errs, "bridge.topic_prefix must not contain MQTT wildcards")
	}
	switch strings.ToLower(c.Bridge.NumericMode) {
	case "", "corrected", "legacy":
	default:
		errs = append(errs, "bridge.numeric_mode must be corrected or legacy")
	}
	if c.Bridge.QueueSize < 0 {
		errs = append(errs, "bridge.queue_size must not be negative")
	}

	// Serial validation
	if c.Serial.Port == "" {
		errs = append(errs, "serial.port is required")
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
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

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
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

// HealthInterval returns the health publish period.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// Retention returns how long journal entries are kept. Zero keeps everything.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Journal.RetentionHours) * time.Hour
}
