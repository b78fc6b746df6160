package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig         `mapstructure:"server"`
	Database      DatabaseConfig       `mapstructure:"database"`
	Logging       LoggingConfig        `mapstructure:"logging"`
	State         StateConfig          `mapstructure:"state"`
	Downloaders   []DownloaderConfig   `mapstructure:"downloaders"`
	Notifications []NotificationConfig `mapstructure:"notifications"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"` // empty disables API key checks
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// StateConfig selects the backend of the plugin-state store.
type StateConfig struct {
	Driver   string `mapstructure:"driver"` // "sqlite" or "redis"
	RedisURL string `mapstructure:"redis_url"`
	Prefix   string `mapstructure:"prefix"`
}

// DownloaderConfig describes one download client instance managed by the host.
type DownloaderConfig struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseSSL   bool   `mapstructure:"use_ssl"`
	URLBase  string `mapstructure:"url_base"`
	Disabled bool   `mapstructure:"disabled"`
}

// NotificationConfig describes one notification channel.
type NotificationConfig struct {
	Name     string         `mapstructure:"name"`
	Type     string         `mapstructure:"type"`
	Disabled bool           `mapstructure:"disabled"`
	Settings map[string]any `mapstructure:"settings"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3030,
		},
		Database: DatabaseConfig{
			Path: "./data/qblimiter.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		State: StateConfig{
			Driver: "sqlite",
			Prefix: "qblimiter:plugin:",
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.qblimiter")
	}

	v.SetEnvPrefix("QBLIMITER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for i := range cfg.Downloaders {
		if err := cfg.Downloaders[i].validate(); err != nil {
			return nil, fmt.Errorf("downloaders[%d]: %w", i, err)
		}
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3030)
	v.SetDefault("server.api_key", "")

	v.SetDefault("database.path", "./data/qblimiter.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("state.driver", "sqlite")
	v.SetDefault("state.redis_url", "redis://localhost:6379/0")
	v.SetDefault("state.prefix", "qblimiter:plugin:")
}

func (d *DownloaderConfig) validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Type == "" {
		return fmt.Errorf("type is required for %q", d.Name)
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
