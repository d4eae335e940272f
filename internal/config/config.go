// Package config provides configuration management for the item service.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database backends selected by DatabaseConfig.UseSQLite.
const (
	// BackendSQLite is the embedded, file-based store.
	BackendSQLite = "sqlite"
	// BackendPostgres is the networked PostgreSQL server.
	BackendPostgres = "postgres"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the item service.
type Config struct {
	// App contains application identity settings.
	App AppConfig `mapstructure:"app"`
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains storage backend and connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// API contains request handling settings for the item endpoints.
	API APIConfig `mapstructure:"api"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AppConfig holds application identity settings.
type AppConfig struct {
	// Name is the human readable application name.
	Name string `mapstructure:"name"`
	// Version is the application version reported in logs and metrics.
	Version string `mapstructure:"version"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout is the maximum time to wait for the next request on a keep-alive connection.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is the sustained number of API requests per second the
	// server accepts; 0 disables rate limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	// RateBurst is the number of requests allowed above RateLimit at once.
	RateBurst int `mapstructure:"rate_burst"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// UseSQLite selects the embedded SQLite store instead of PostgreSQL (default: true).
	UseSQLite bool `mapstructure:"use_sqlite"`
	// SQLitePath is the SQLite database file (default: test_db.sqlite3).
	SQLitePath string `mapstructure:"sqlite_path"`
	// BusyTimeout is how long SQLite waits on a locked database before failing.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name. Required when UseSQLite is false.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath overrides the embedded migrations with a directory on disk.
	// The directory must contain one sub-directory per backend (postgres, sqlite).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	// SQLite databases are always migrated on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// APIConfig holds settings for the item endpoints.
type APIConfig struct {
	// DefaultLimit is the page size used when a list request has no limit.
	DefaultLimit int `mapstructure:"default_limit"`
	// MaxLimit caps the page size of list requests.
	MaxLimit int `mapstructure:"max_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// Backend returns the name of the selected storage backend.
func (c *DatabaseConfig) Backend() string {
	if c.UseSQLite {
		return BackendSQLite
	}
	return BackendPostgres
}

// DSN returns the connection string for the selected backend.
// For PostgreSQL an empty string is returned when the host or database name
// is missing, since no connection can be resolved from such settings.
func (c *DatabaseConfig) DSN() string {
	if c.UseSQLite {
		return c.sqliteDSN()
	}
	if c.Host == "" || c.Name == "" {
		return ""
	}
	return c.postgresDSN()
}

func (c *DatabaseConfig) sqliteDSN() string {
	params := url.Values{}
	if c.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")
	// SQLite decodes %XX escapes in file: URIs, so the path survives ? and #.
	path := (&url.URL{Path: c.SQLitePath}).EscapedPath()
	return "file:" + path + "?" + params.Encode()
}

func (c *DatabaseConfig) postgresDSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: params.Encode(),
	}
	if c.User != "" || c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// legacyEnv maps configuration keys to the environment variable names used by
// earlier deployments of the service. They are checked after the ITEMS_ ones.
var legacyEnv = map[string]string{
	"app.name":            "APP_NAME",
	"app.version":         "APP_VERSION",
	"server.host":         "HOST_BIND_IP",
	"server.http_port":    "HOST_PORT",
	"database.use_sqlite": "USE_SQLITE",
	"database.host":       "POSTGRES_HOST",
	"database.port":       "POSTGRES_PORT",
	"database.user":       "POSTGRES_USER",
	"database.password":   "POSTGRES_PASSWORD",
	"database.name":       "POSTGRES_DB",
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("ITEMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envName := "ITEMS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/item-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Item Service")
	v.SetDefault("app.version", "0.1.0")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "2m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 50)

	// Database defaults
	v.SetDefault("database.use_sqlite", true)
	v.SetDefault("database.sqlite_path", "test_db.sqlite3")
	v.SetDefault("database.busy_timeout", "5s")
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "")
	v.SetDefault("database.ssl_mode", SSLModeDisable)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "")
	v.SetDefault("database.migration_auto_run", false)

	// API defaults
	v.SetDefault("api.default_limit", 100)
	v.SetDefault("api.max_limit", 100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Metrics.Enabled && (c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		return fmt.Errorf("server rate_burst must be positive when rate_limit is set")
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}

	// Validate API limits
	if c.API.MaxLimit <= 0 {
		return fmt.Errorf("api max_limit must be positive")
	}
	if c.API.DefaultLimit <= 0 || c.API.DefaultLimit > c.API.MaxLimit {
		return fmt.Errorf("api default_limit (%d) must be between 1 and max_limit (%d)", c.API.DefaultLimit, c.API.MaxLimit)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// Validate checks the settings of the selected backend only.
func (c *DatabaseConfig) Validate() error {
	if c.UseSQLite {
		if c.SQLitePath == "" {
			return fmt.Errorf("database sqlite_path is required when use_sqlite is true")
		}
		return nil
	}

	if c.Host == "" {
		return fmt.Errorf("database host is required when use_sqlite is false")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Port)
	}
	if c.Name == "" {
		return fmt.Errorf("database name is required when use_sqlite is false")
	}
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}
	return nil
}
