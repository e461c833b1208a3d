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

// Environment variables holding secrets. They are never written to config.toml.
const (
	EnvSecretKey = "FREQY_SECRET_KEY"
	EnvAPIKey    = "OPENAI_API_KEY"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Logging     LoggingConfig     `toml:"logging"`
	Auth        AuthConfig        `toml:"auth"`
	Generator   GeneratorConfig   `toml:"generator"`
	Leaderboard LeaderboardConfig `toml:"leaderboard"`
	Ngrok       NgrokConfig       `toml:"ngrok"`

	Secrets Secrets `toml:"-"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port           string `toml:"port"`
	Host           string `toml:"host"`
	StaticDir      string `toml:"static_dir"`
	TemplatesDir   string `toml:"templates_dir"` // empty means use the built-in templates
	WatchTemplates bool   `toml:"watch_templates"`
	ReadTimeout    int    `toml:"read_timeout_seconds"`
	WriteTimeout   int    `toml:"write_timeout_seconds"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	File           string `toml:"file"`
	RequestLogging bool   `toml:"request_logging"`
}

// AuthConfig contains session and password settings
type AuthConfig struct {
	SessionDuration string `toml:"session_duration"`
	SecureCookies   bool   `toml:"secure_cookies"`
	CookieName      string `toml:"cookie_name"`
	BcryptCost      int    `toml:"bcrypt_cost"`
	SessionStore    string `toml:"session_store"` // memory or redis
	RedisAddr       string `toml:"redis_addr"`
	RedisPassword   string `toml:"redis_password"`
	RedisPrefix     string `toml:"redis_prefix"`
}

// GeneratorConfig contains settings for the text-generation service
type GeneratorConfig struct {
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model"`
	Temperature       float64 `toml:"temperature"`
	MaxTokens         int     `toml:"max_tokens"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerMinute int     `toml:"requests_per_minute"`
	Burst             int     `toml:"burst"`
	// GenerationTimeoutSeconds bounds every service call of one playlist
	// generation together. It must stay below the server write timeout.
	GenerationTimeoutSeconds int  `toml:"generation_timeout_seconds"`
	SongCount                int  `toml:"song_count"`
	NamePlaylists            bool `toml:"name_playlists"`
}

// LeaderboardConfig contains leaderboard view settings
type LeaderboardConfig struct {
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
}

// Secrets are read from the environment (or a .env file) at startup.
type Secrets struct {
	SecretKey string
	APIKey    string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "5001",
			Host:           "0.0.0.0",
			StaticDir:      "./static",
			TemplatesDir:   "",
			WatchTemplates: false,
			ReadTimeout:    30,
			WriteTimeout:   60,
		},
		Database: DatabaseConfig{
			Path:           "./freqy.db",
			MaxConnections: 5,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			File:           "",
			RequestLogging: true,
		},
		Auth: AuthConfig{
			SessionDuration: "24h",
			SecureCookies:   false,
			CookieName:      "freqy_session",
			BcryptCost:      12,
			SessionStore:    "memory",
			RedisAddr:       "localhost:6379",
			RedisPrefix:     "freqy:session",
		},
		Generator: GeneratorConfig{
			BaseURL:                  "https://api.openai.com/v1",
			Model:                    "gpt-3.5-turbo",
			Temperature:              0,
			MaxTokens:                1024,
			TimeoutSeconds:           30,
			RequestsPerMinute:        20,
			Burst:                    2,
			GenerationTimeoutSeconds: 45,
			SongCount:                10,
			NamePlaylists:            true,
		},
		Leaderboard: LeaderboardConfig{
			CacheTTLSeconds: 30,
		},
		Ngrok: NgrokConfig{
			Enabled: false,
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		return cfg, nil
	}

	// Load from file
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadSecrets reads the session secret and the API key from the environment,
// loading envFile first when it exists. Both values are required.
func (c *Config) LoadSecrets(envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	c.Secrets.SecretKey = strings.TrimSpace(os.Getenv(EnvSecretKey))
	c.Secrets.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))

	var missing []string
	if c.Secrets.SecretKey == "" {
		missing = append(missing, EnvSecretKey)
	}
	if c.Secrets.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(c.Secrets.SecretKey) < 16 {
		return fmt.Errorf("%s must be at least 16 characters", EnvSecretKey)
	}

	return nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Freqy Configuration
# Secrets are not stored here. Set FREQY_SECRET_KEY and OPENAI_API_KEY
# in the environment or in a .env file next to this one.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	// Validate database config
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	// Validate auth config
	if _, err := time.ParseDuration(c.Auth.SessionDuration); err != nil {
		return fmt.Errorf("invalid session duration: %w", err)
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth cookie name cannot be empty")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31")
	}
	switch c.Auth.SessionStore {
	case "memory":
	case "redis":
		if c.Auth.RedisAddr == "" {
			return fmt.Errorf("redis address is required when session_store is redis")
		}
	default:
		return fmt.Errorf("invalid session store: %s (must be memory or redis)", c.Auth.SessionStore)
	}

	// Validate generator config
	if c.Generator.BaseURL == "" {
		return fmt.Errorf("generator base url cannot be empty")
	}
	if c.Generator.Model == "" {
		return fmt.Errorf("generator model cannot be empty")
	}
	if c.Generator.TimeoutSeconds < 1 {
		return fmt.Errorf("generator timeout must be at least 1 second")
	}
	if c.Generator.RequestsPerMinute < 1 {
		return fmt.Errorf("generator requests per minute must be at least 1")
	}
	if c.Generator.Burst < 1 {
		return fmt.Errorf("generator burst must be at least 1")
	}
	if c.Generator.GenerationTimeoutSeconds < 1 {
		return fmt.Errorf("generator generation timeout must be at least 1 second")
	}
	if c.Server.WriteTimeout > 0 && c.Generator.GenerationTimeoutSeconds >= c.Server.WriteTimeout {
		return fmt.Errorf("generator generation timeout (%ds) must be below the server write timeout (%ds)",
			c.Generator.GenerationTimeoutSeconds, c.Server.WriteTimeout)
	}
	if c.Generator.SongCount < 1 {
		return fmt.Errorf("generator song count must be at least 1")
	}

	if c.Leaderboard.CacheTTLSeconds < 0 {
		return fmt.Errorf("leaderboard cache ttl cannot be negative")
	}

	if c.Ngrok.Enabled && c.Ngrok.AuthToken == "" && os.Getenv("NGROK_AUTHTOKEN") == "" {
		return fmt.Errorf("ngrok is enabled but no auth token is configured")
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// SessionDuration returns the parsed session lifetime.
func (c *Config) SessionDuration() time.Duration {
	d, err := time.ParseDuration(c.Auth.SessionDuration)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GeneratorTimeout returns the bound applied to each text-generation call.
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}

// GenerationDeadline returns the budget for all service calls of one playlist.
func (c *Config) GenerationDeadline() time.Duration {
	return time.Duration(c.Generator.GenerationTimeoutSeconds) * time.Second
}
