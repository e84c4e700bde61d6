package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix prefixes every environment override, e.g. SHELF_API_BASE_URL.
const EnvPrefix = "shelf"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Session  SessionConfig  `toml:"session"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Log      LogConfig      `toml:"log"`
}

// APIConfig points the client at the library backend.
type APIConfig struct {
	BaseURL        string  `toml:"base_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second, 0 disables
}

// SessionConfig controls how long a stored login stays valid.
type SessionConfig struct {
	Profile  string `toml:"profile"`
	TTLHours int    `toml:"ttl_hours"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings for the browser front end.
type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	CookieName    string `toml:"cookie_name"`
	SecureCookies bool   `toml:"secure_cookies"`
}

// CatalogConfig holds page sizes for book listings.
type CatalogConfig struct {
	PageSize      int `toml:"page_size"`
	AdminPageSize int `toml:"admin_page_size"`
}

// LogConfig holds the log level name.
type LogConfig struct {
	Level string `toml:"level"`
}

// envOverrides lists the settings that may be replaced from the environment.
// Zero values mean "not set".
type envOverrides struct {
	APIBaseURL     string `envconfig:"API_BASE_URL"`
	DatabasePath   string `envconfig:"DATABASE_PATH"`
	ServerPort     int    `envconfig:"SERVER_PORT"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	SessionProfile string `envconfig:"SESSION_PROFILE"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Missing keys fall back to the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads dotenvPath (if it exists) into the process environment, then
// overlays any SHELF_* variables onto c.
func (c *Config) ApplyEnv(dotenvPath string) error {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, dotenvPath, err)
		}
	}

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if env.APIBaseURL != "" {
		c.API.BaseURL = env.APIBaseURL
	}
	if env.DatabasePath != "" {
		c.Database.Path = env.DatabasePath
	}
	if env.ServerPort != 0 {
		c.Server.Port = env.ServerPort
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.SessionProfile != "" {
		c.Session.Profile = env.SessionProfile
	}
	return nil
}

// Timeout is the per-request HTTP timeout.
func (c *Config) Timeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// SessionTTL is how long a stored login remains valid after it is written.
func (c *Config) SessionTTL() time.Duration {
	if c.Session.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// Addr joins the server host and port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
