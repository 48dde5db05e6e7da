// Package config loads the scenaria configuration from a YAML file and SCENARIA_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SCENARIA_STORAGE_DRIVER.
const EnvPrefix = "SCENARIA"

// Config represents the complete scenaria configuration
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Editor  EditorConfig  `mapstructure:"editor"`
}

// LogConfig controls structured logging
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	// Format is "text" or "json" (default: "text")
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// StorageConfig selects the scenario repository
type StorageConfig struct {
	// Driver is one of "memory", "file", "sqlite", "redis" (default: "file")
	Driver string `mapstructure:"driver" validate:"oneof=memory file sqlite redis"`
	// Path is the directory of the file driver or the database file of the sqlite driver.
	// A sqlite path without extension is treated as a directory holding scenaria.db.
	Path  string      `mapstructure:"path" validate:"required_if=Driver file,required_if=Driver sqlite"`
	Redis RedisConfig `mapstructure:"redis"`
	// Redact lists regular expressions; matching step param keys are masked before storage
	Redact []string `mapstructure:"redact"`
}

// RedisConfig configures the redis repository and the distributed locker
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0,lte=15"`
	Prefix   string `mapstructure:"prefix" validate:"required"`
	// TTL expires stored scenarios; zero keeps them forever
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// ServerConfig controls the HTTP front-end
type ServerConfig struct {
	Port    int  `mapstructure:"port" validate:"gte=1,lte=65535"`
	Metrics bool `mapstructure:"metrics"`
}

// EditorConfig controls editing sessions
type EditorConfig struct {
	// StrictGeometry rejects branches that were never laid out
	StrictGeometry bool `mapstructure:"strict_geometry"`
	// LockTTL bounds how long a replica holds a scenario lock (default: 30s)
	LockTTL time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   ".scenaria",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "scenaria",
			},
		},
		Server: ServerConfig{
			Port:    8080,
			Metrics: true,
		},
		Editor: EditorConfig{
			LockTTL: 30 * time.Second,
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetDefault("storage.driver", defaults.Storage.Driver)
	v.SetDefault("storage.path", defaults.Storage.Path)
	v.SetDefault("storage.redis.addr", defaults.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", defaults.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", defaults.Storage.Redis.DB)
	v.SetDefault("storage.redis.prefix", defaults.Storage.Redis.Prefix)
	v.SetDefault("storage.redis.ttl", defaults.Storage.Redis.TTL)

	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.metrics", defaults.Server.Metrics)

	v.SetDefault("editor.strict_geometry", defaults.Editor.StrictGeometry)
	v.SetDefault("editor.lock_ttl", defaults.Editor.LockTTL)
}

// New returns a viper instance with defaults and environment overrides registered.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path (optional) and returns the validated configuration.
// An empty path looks for scenaria.yaml in the working directory and in ConfigDir.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scenaria")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return Unmarshal(v)
}

// Unmarshal decodes v into a Config and validates it.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks the configuration. Redis settings are only checked when the redis
// driver is selected.
func (c *Config) Validate() error {
	if err := validate.StructExcept(c, "Storage.Redis"); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Driver == "redis" {
		if err := validate.Struct(c.Storage.Redis); err != nil {
			return fmt.Errorf("invalid redis config: %w", err)
		}
	}
	return nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "scenaria")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scenaria"
	}
	return filepath.Join(home, ".config", "scenaria")
}
