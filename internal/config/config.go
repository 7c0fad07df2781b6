// Package config loads the client configuration from the environment.
//
// Values come from, in order of precedence:
//  1. process environment variables
//  2. a .env file, when present (read with godotenv, never exported into
//     the process environment)
//  3. the defaults below
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is read by Load when it exists.
const DefaultEnvFile = ".env"

type Config struct {
	APIURL     string        `mapstructure:"SNIPPETHUB_API_URL" validate:"required,url"`
	WSURL      string        `mapstructure:"SNIPPETHUB_WS_URL" validate:"required,url"`
	WSEnabled  bool          `mapstructure:"SNIPPETHUB_WS_ENABLED"`
	DBPath     string        `mapstructure:"SNIPPETHUB_DB_PATH" validate:"required"`
	LogLevel   string        `mapstructure:"SNIPPETHUB_LOG_LEVEL" validate:"oneof=debug info warn error"`
	StaleTime  time.Duration `mapstructure:"SNIPPETHUB_STALE_TIME"`
	AuthCookie string        `mapstructure:"SNIPPETHUB_AUTH_COOKIE" validate:"required"`
}

var defaults = map[string]any{
	"SNIPPETHUB_API_URL":     "http://localhost:3000/api",
	"SNIPPETHUB_WS_URL":      "ws://localhost:3000/ws",
	"SNIPPETHUB_WS_ENABLED":  true,
	"SNIPPETHUB_DB_PATH":     "data/snippethub.db",
	"SNIPPETHUB_LOG_LEVEL":   "info",
	"SNIPPETHUB_STALE_TIME":  "0s",
	"SNIPPETHUB_AUTH_COOKIE": "token",
}

// Load reads the configuration. envFile may be empty to skip the .env file;
// a missing file is not an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if envFile != "" {
		fileVals, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
		default:
			// File values sit between the defaults and the real environment.
			for k, val := range fileVals {
				v.SetDefault(k, val)
			}
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unable to decode: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks every field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.StaleTime < 0 {
		return fmt.Errorf("config: SNIPPETHUB_STALE_TIME must not be negative, got %s", c.StaleTime)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values read as info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// String prints the configuration for `snippethub config`.
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "api url:      %s\n", c.APIURL)
	fmt.Fprintf(&sb, "ws url:       %s\n", c.WSURL)
	fmt.Fprintf(&sb, "ws enabled:   %v\n", c.WSEnabled)
	fmt.Fprintf(&sb, "db path:      %s\n", c.DBPath)
	fmt.Fprintf(&sb, "log level:    %s\n", c.LogLevel)
	fmt.Fprintf(&sb, "stale time:   %s\n", c.StaleTime)
	fmt.Fprintf(&sb, "auth cookie:  %s\n", c.AuthCookie)
	return sb.String()
}

// EnsureDir creates the directory holding DBPath.
func (c *Config) EnsureDir() error {
	if c.DBPath == ":memory:" {
		return nil
	}
	dir := dirOf(c.DBPath)
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", dir, err)
	}
	return nil
}

func dirOf(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i <= 0 {
		return ""
	}
	return path[:i]
}
