package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	content := `
bridge:
  id: 0x0042
  topic_prefix: "/bus"
serial:
  port: "/dev/ttyACM0"
mqtt:
  broker:
    host: "broker.local"
    port: 1884
    client_id: "test-client"
  qos: 1
`
	configPath := writeFile(t, t.TempDir(), "config.yaml", content)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != 0x0042 {
		t.Errorf("Bridge.ID = %#04x, want 0x0042", cfg.Bridge.ID)
	}
	if cfg.Bridge.TopicPrefix != "/bus" {
		t.Errorf("Bridge.TopicPrefix = %q, want %q", cfg.Bridge.TopicPrefix, "/bus")
	}
	if cfg.MQTT.TopicPrefix != "/bus" {
		t.Errorf("MQTT.TopicPrefix = %q, want it copied from bridge", cfg.MQTT.TopicPrefix)
	}
	if cfg.Serial.Port != "/dev/ttyACM0" {
		t.Errorf("Serial.Port = %q, want %q", cfg.Serial.Port, "/dev/ttyACM0")
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("Serial.BaudRate = %d, want default 115200", cfg.Serial.BaudRate)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	content := `
[bridge]
id = 0x0123
numeric_mode = "legacy"

[serial]
port = "/dev/ttyS1"
baud_rate = 57600

[mqtt.broker]
host = "10.0.0.2"
port = 1883
`
	configPath := writeFile(t, t.TempDir(), "bridge.toml", content)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.NumericMode != "legacy" {
		t.Errorf("Bridge.NumericMode = %q, want %q", cfg.Bridge.NumericMode, "legacy")
	}
	if cfg.Serial.BaudRate != 57600 {
		t.Errorf("Serial.BaudRate = %d, want 57600", cfg.Serial.BaudRate)
	}
	if cfg.MQTT.Broker.Host != "10.0.0.2" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "10.0.0.2")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "ASB_MQTT_PASSWORD=from-dotenv\n")
	configPath := writeFile(t, dir, "config.yaml", "serial:\n  port: /dev/ttyUSB1\n")

	// Ensure the variable is restored after the test; godotenv sets it process-wide.
	t.Setenv("ASB_MQTT_PASSWORD", "")
	os.Unsetenv("ASB_MQTT_PASSWORD")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Auth.Password != "from-dotenv" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "from-dotenv")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Bridge.TopicPrefix != "/asysbus" {
		t.Errorf("Bridge.TopicPrefix = %q, want %q", cfg.Bridge.TopicPrefix, "/asysbus")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "config.yaml", "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
bridge:
  id: 0
serial:
  port: ""
`
	configPath := writeFile(t, t.TempDir(), "config.yaml", content)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"bridge.id", "serial.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, wantErr: false},
		{name: "bridge id zero", mutate: func(c *Config) { c.Bridge.ID = 0 }, wantErr: true},
		{name: "bridge id above node range", mutate: func(c *Config) { c.Bridge.ID = 0x0800 }, wantErr: true},
		{name: "wildcard in prefix", mutate: func(c *Config) { c.Bridge.TopicPrefix = "/asysbus/#" }, wantErr: true},
		{name: "empty prefix allowed", mutate: func(c *Config) { c.Bridge.TopicPrefix = "" }, wantErr: false},
		{name: "unknown numeric mode", mutate: func(c *Config) { c.Bridge.NumericMode = "fast" }, wantErr: true},
		{name: "missing serial port", mutate: func(c *Config) { c.Serial.Port = "" }, wantErr: true},
		{name: "zero baud", mutate: func(c *Config) { c.Serial.BaudRate = 0 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid broker port", mutate: func(c *Config) { c.MQTT.Broker.Port = 70000 }, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "journal enabled without path", mutate: func(c *Config) {
			c.Journal.Enabled = true
			c.Journal.Path = ""
		}, wantErr: true},
		{name: "api enabled with bad port", mutate: func(c *Config) {
			c.API.Enabled = true
			c.API.Port = 0
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Bridge:  BridgeConfig{HealthInterval: 15},
		Journal: JournalConfig{RetentionHours: 2},
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
	}

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 45*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 45s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
	if got := cfg.HealthInterval(); got != 15*time.Second {
		t.Errorf("HealthInterval() = %v, want 15s", got)
	}
	if got := cfg.Retention(); got != 2*time.Hour {
		t.Errorf("Retention() = %v, want 2h", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ASB_BRIDGE_ID", "0x0456")
	t.Setenv("ASB_TOPIC_PREFIX", "")
	t.Setenv("ASB_SERIAL_PORT", "/dev/ttyAMA0")
	t.Setenv("ASB_SERIAL_BAUD", "9600")
	t.Setenv("ASB_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ASB_MQTT_PORT", "8883")
	t.Setenv("ASB_MQTT_USERNAME", "testuser")
	t.Setenv("ASB_MQTT_PASSWORD", "testpass")
	t.Setenv("ASB_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("ASB_JOURNAL_PATH", "/var/lib/asb/journal.db")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Bridge.ID != 0x0456 {
		t.Errorf("Bridge.ID = %#04x, want 0x0456", cfg.Bridge.ID)
	}
	if cfg.Bridge.TopicPrefix != "" {
		t.Errorf("Bridge.TopicPrefix = %q, want empty (explicitly set)", cfg.Bridge.TopicPrefix)
	}
	if cfg.Serial.Port != "/dev/ttyAMA0" {
		t.Errorf("Serial.Port = %q, want %q", cfg.Serial.Port, "/dev/ttyAMA0")
	}
	if cfg.Serial.BaudRate != 9600 {
		t.Errorf("Serial.BaudRate = %d, want 9600", cfg.Serial.BaudRate)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v, want testuser/testpass", cfg.MQTT.Auth)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Journal.Path != "/var/lib/asb/journal.db" {
		t.Errorf("Journal.Path = %q, want %q", cfg.Journal.Path, "/var/lib/asb/journal.db")
	}
}

func TestApplyEnvOverrides_BadNumbers(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ASB_BRIDGE_ID", "0x10000")
	t.Setenv("ASB_SERIAL_BAUD", "fast")

	err := applyEnvOverrides(cfg)
	if err == nil {
		t.Fatal("applyEnvOverrides() expected error, got nil")
	}
	if cfg.Bridge.ID != 0x0123 {
		t.Errorf("Bridge.ID = %#04x, want default kept", cfg.Bridge.ID)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("Serial.BaudRate = %d, want default kept", cfg.Serial.BaudRate)
	}
}

func TestMQTTAuthConfig_Redaction(t *testing.T) {
	auth := MQTTAuthConfig{Username: "bridge", Password: "hunter2"}

	if s := auth.String(); strings.Contains(s, "hunter2") {
		t.Errorf("String() leaks password: %s", s)
	}

	data, err := json.Marshal(auth)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Errorf("MarshalJSON leaks password: %s", data)
	}
	if !strings.Contains(string(data), `"username":"bridge"`) {
		t.Errorf("MarshalJSON = %s, want username", data)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.ID != 0x0123 {
		t.Errorf("defaultConfig Bridge.ID = %#04x, want 0x0123", cfg.Bridge.ID)
	}
	if cfg.Bridge.TopicPrefix != "/asysbus" {
		t.Errorf("defaultConfig Bridge.TopicPrefix = %q, want /asysbus", cfg.Bridge.TopicPrefix)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("defaultConfig Serial.BaudRate = %d, want 115200", cfg.Serial.BaudRate)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
