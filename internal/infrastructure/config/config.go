package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Hub       HubConfig       `yaml:"hub"`
	Storage   StorageConfig   `yaml:"storage"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// HubConfig contains hub identity settings.
type HubConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// UpdateCheckInterval is how often to check registered plugins for
	// available updates (minutes). 0 disables the periodic check.
	UpdateCheckInterval int `yaml:"update_check_interval"`
}

// StorageConfig contains SQLite-backed storage settings.
type StorageConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// BackupPath is where the sidecar backup copy is written.
	// Defaults to Path + ".backup" when empty.
	BackupPath string `yaml:"backup_path"`

	// RestoreOnCorruption attempts a restore from BackupPath when the
	// store fails its integrity check at startup. When false, corruption
	// is immediately fatal.
	RestoreOnCorruption bool `yaml:"restore_on_corruption"`
}

// BridgeConfig contains bridge orchestrator settings.
type BridgeConfig struct {
	// Mode selects the topology: "bridge" exposes every plugin's devices
	// under one shared protocol node, "childbridge" gives each plugin its
	// own node. Empty means "use the persisted value, default bridge".
	Mode string `yaml:"mode"`

	// FailCountLimit is the startup poll budget: a plugin that has not
	// reported loaded+started within this many poll ticks is marked errored.
	FailCountLimit int `yaml:"fail_count_limit"`

	// PollIntervalMs is the startup poll period in milliseconds.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// SettleDelaySeconds is the pause between node start and the deferred
	// configure pass.
	SettleDelaySeconds int `yaml:"settle_delay_seconds"`

	// AdvertiseWindowMinutes is how long a node accepts new commissioning
	// attempts before the window closes automatically.
	AdvertiseWindowMinutes int `yaml:"advertise_window_minutes"`

	// Network contains node network settings.
	Network NetworkConfig `yaml:"network"`
}

// NetworkConfig contains protocol node network settings.
type NetworkConfig struct {
	// Port is the UDP port for the shared node. Per-plugin nodes in
	// childbridge mode are allocated sequentially from this base.
	Port int `yaml:"port"`

	// Interface restricts mDNS advertisement to one network interface.
	// Empty means all interfaces.
	Interface string `yaml:"interface"`

	// MDNS enables commissioning advertisement over mDNS.
	MDNS bool `yaml:"mdns"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// WebSocketConfig contains WebSocket event feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The hub publishes lifecycle and node events to the Gray Logic bus and
// accepts a small set of commands. MQTT is optional.
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

// InfluxDBConfig contains the optional event-history sink settings.
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

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	JWT           JWTConfig `yaml:"jwt"`
	AdminPassword string    `yaml:"admin_password"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL is the token lifetime in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// Load reads, parses and validates the configuration file at path.
//
// Defaults are applied first, then the YAML file, then environment
// variable overrides (GRAYHUB_STORAGE_PATH, GRAYHUB_JWT_SECRET, ...).
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

// Default bridge timing constants. These mirror the orchestrator's own
// fallbacks so a zero config and a default config behave identically.
const (
	DefaultFailCountLimit         = 120
	DefaultPollIntervalMs         = 1000
	DefaultSettleDelaySeconds     = 5
	DefaultAdvertiseWindowMinutes = 15
	DefaultNodePort               = 5540
)

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			ID:                  "hub-001",
			Name:                "Gray Logic Hub",
			UpdateCheckInterval: 1440,
		},
		Storage: StorageConfig{
			Path:                "./data/grayhub.db",
			WALMode:             true,
			BusyTimeout:         5,
			RestoreOnCorruption: true,
		},
		Bridge: BridgeConfig{
			Mode:                   "",
			FailCountLimit:         DefaultFailCountLimit,
			PollIntervalMs:         DefaultPollIntervalMs,
			SettleDelaySeconds:     DefaultSettleDelaySeconds,
			AdvertiseWindowMinutes: DefaultAdvertiseWindowMinutes,
			Network: NetworkConfig{
				Port: DefaultNodePort,
				MDNS: true,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8581,
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
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-hub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 1440,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYHUB_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("GRAYHUB_BRIDGE_MODE"); v != "" {
		cfg.Bridge.Mode = v
	}
	if v := os.Getenv("GRAYHUB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYHUB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYHUB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("GRAYHUB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("GRAYHUB_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("GRAYHUB_ADMIN_PASSWORD"); v != "" {
		cfg.Security.AdminPassword = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Hub.ID == "" {
		errs = append(errs, "hub.id is required")
	}

	if c.Storage.Path == "" {
		errs = append(errs, "storage.path is required")
	}

	switch c.Bridge.Mode {
	case "", "bridge", "childbridge":
	default:
		errs = append(errs, `bridge.mode must be "bridge" or "childbridge"`)
	}
	if c.Bridge.FailCountLimit < 0 {
		errs = append(errs, "bridge.fail_count_limit must not be negative")
	}
	if c.Bridge.PollIntervalMs < 0 {
		errs = append(errs, "bridge.poll_interval_ms must not be negative")
	}
	if c.Bridge.Network.Port < 1 || c.Bridge.Network.Port > 65535 {
		errs = append(errs, "bridge.network.port must be between 1 and 65535")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		// JWT secret is required whenever the API is exposed. A forged
		// token grants control over commissioning and plugin state.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set GRAYHUB_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BackupPathOrDefault returns the storage backup path, applying the default
// sidecar location when unset.
func (c *StorageConfig) BackupPathOrDefault() string {
	if c.BackupPath != "" {
		return c.BackupPath
	}
	return c.Path + ".backup"
}

// PollInterval returns the bridge startup poll period as a Duration.
func (c *BridgeConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SettleDelay returns the pre-configure settle delay as a Duration.
func (c *BridgeConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelaySeconds) * time.Second
}

// AdvertiseWindow returns the commissioning window as a Duration.
func (c *BridgeConfig) AdvertiseWindow() time.Duration {
	return time.Duration(c.AdvertiseWindowMinutes) * time.Minute
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
