package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the user centre.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Redis    RedisConfig    `yaml:"redis"`
}

// ServiceConfig identifies this deployment.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// AuthConfig contains token and account settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`

	// AccessTokenTTL and RefreshTokenTTL are in minutes.
	AccessTokenTTL  int `yaml:"access_token_ttl"`
	RefreshTokenTTL int `yaml:"refresh_token_ttl"`

	// RotateRefreshTokens replaces the refresh token on every refresh.
	RotateRefreshTokens bool `yaml:"rotate_refresh_tokens"`

	// DefaultPermissions are the capabilities given to newly registered accounts.
	DefaultPermissions []string `yaml:"default_permissions"`

	TOTPSecretLength int `yaml:"totp_secret_length"`

	// JanitorInterval is how often expired refresh tokens are purged, in seconds. 0 disables.
	JanitorInterval int `yaml:"janitor_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker connection settings for auth event publishing.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// RedisConfig contains settings for the refresh token cache.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Prefix  string `yaml:"prefix"`

	// TTL caps how long a cached token record lives, in seconds.
	TTL int `yaml:"ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults); a missing file is skipped
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: USERCENTER_SECTION_KEY
// For example: USERCENTER_DATABASE_PATH, USERCENTER_API_PORT.
// JWT_SECRET, DB_PATH and APP_PORT are also honoured.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Environment-only deployment.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "usercenter",
		},
		Database: DatabaseConfig{
			Path:        "./data/usercenter.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Auth: AuthConfig{
			Issuer:             "user.zzszyct.xyz",
			Audience:           "user",
			AccessTokenTTL:     24 * 60,
			RefreshTokenTTL:    30 * 24 * 60,
			DefaultPermissions: []string{"user"},
			TOTPSecretLength:   16,
			JanitorInterval:    3600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "usercenter",
			},
			QoS:         1,
			TopicPrefix: "usercenter",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "usercenter",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Redis: RedisConfig{
			URL:    "redis://localhost:6379/0",
			Prefix: "usercenter:rt:",
			TTL:    3600,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: USERCENTER_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
			}
		}
	}
	setInt := func(dst *int, keys ...string) {
		for _, k := range keys {
			v := os.Getenv(k)
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s must be an integer", k))
				continue
			}
			*dst = n
		}
	}
	setBool := func(dst *bool, key string) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be a boolean", key))
			return
		}
		*dst = b
	}

	// Database. DB_PATH is the legacy name.
	setString(&cfg.Database.Path, "DB_PATH", "USERCENTER_DATABASE_PATH")

	// API. APP_PORT is the legacy name.
	setString(&cfg.API.Host, "USERCENTER_API_HOST")
	setInt(&cfg.API.Port, "APP_PORT", "USERCENTER_API_PORT")

	// Auth - JWT secret (IMPORTANT: always override in production)
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET", "USERCENTER_JWT_SECRET")
	setInt(&cfg.Auth.AccessTokenTTL, "USERCENTER_AUTH_ACCESS_TOKEN_TTL")
	setInt(&cfg.Auth.RefreshTokenTTL, "USERCENTER_AUTH_REFRESH_TOKEN_TTL")
	setBool(&cfg.Auth.RotateRefreshTokens, "USERCENTER_AUTH_ROTATE_REFRESH_TOKENS")

	// Logging
	setString(&cfg.Logging.Level, "USERCENTER_LOG_LEVEL")

	// MQTT
	setBool(&cfg.MQTT.Enabled, "USERCENTER_MQTT_ENABLED")
	setString(&cfg.MQTT.Broker.Host, "USERCENTER_MQTT_HOST")
	setString(&cfg.MQTT.Auth.Username, "USERCENTER_MQTT_USERNAME")
	setString(&cfg.MQTT.Auth.Password, "USERCENTER_MQTT_PASSWORD")

	// InfluxDB
	setBool(&cfg.InfluxDB.Enabled, "USERCENTER_INFLUXDB_ENABLED")
	setString(&cfg.InfluxDB.URL, "USERCENTER_INFLUXDB_URL")
	setString(&cfg.InfluxDB.Token, "USERCENTER_INFLUXDB_TOKEN")

	// Redis
	setBool(&cfg.Redis.Enabled, "USERCENTER_REDIS_ENABLED")
	setString(&cfg.Redis.URL, "USERCENTER_REDIS_URL")

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// JWT secret is REQUIRED. A weak secret lets anyone forge access tokens.
	const minJWTSecretLength = 32
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (set JWT_SECRET or USERCENTER_JWT_SECRET)")
	} else if len(c.Auth.JWTSecret) < minJWTSecretLength {
		errs = append(errs, "auth.jwt_secret must be at least 32 characters")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, "auth.access_token_ttl must be positive")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, "auth.refresh_token_ttl must be positive")
	}
	if c.Auth.TOTPSecretLength < 16 {
		errs = append(errs, "auth.totp_secret_length must be at least 16")
	}
	if c.Auth.JanitorInterval < 0 {
		errs = append(errs, "auth.janitor_interval must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		errs = append(errs, "redis.url is required when redis is enabled")
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

// GetAccessTokenTTL returns the access token lifetime as a Duration.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Auth.AccessTokenTTL) * time.Minute
}

// GetRefreshTokenTTL returns the refresh token lifetime as a Duration.
func (c *Config) GetRefreshTokenTTL() time.Duration {
	return time.Duration(c.Auth.RefreshTokenTTL) * time.Minute
}

// GetJanitorInterval returns the expired token purge interval as a Duration.
func (c *Config) GetJanitorInterval() time.Duration {
	return time.Duration(c.Auth.JanitorInterval) * time.Second
}
