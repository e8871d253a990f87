package throttling

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds process-level settings for throttling.
type Config struct {
	// Enabled is nil until set by the file, defaults or the environment.
	Enabled    *bool  `yaml:"enabled"`
	LimitsFile string `yaml:"limits_file"`
	Watch      bool   `yaml:"watch"`

	Redis RedisConfig `yaml:"redis"`
	Log   LogConfig   `yaml:"log"`
}

// RedisConfig points at the Redis counter store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IsEnabled reports the effective enabled flag.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// LoadConfig loads settings from a YAML file, applies defaults and
// environment overrides, and validates the result. An empty path or a
// missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
			}
		}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Enabled == nil {
		enabled := true
		cfg.Enabled = &enabled
	}
	if cfg.LimitsFile == "" {
		cfg.LimitsFile = DefaultLimitsPath()
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// applyEnvOverrides applies THROTTLING_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("THROTTLING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Enabled = &b
		}
	}
	if val := os.Getenv("THROTTLING_LIMITS_FILE"); val != "" {
		cfg.LimitsFile = val
	}
	if val := os.Getenv("THROTTLING_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Watch = b
		}
	}
	if val := os.Getenv("THROTTLING_REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
	}
	if val := os.Getenv("THROTTLING_REDIS_DB"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = i
		}
	}
	if val := os.Getenv("THROTTLING_REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("THROTTLING_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv("THROTTLING_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
}

// Validate checks the settings for consistency.
func Validate(cfg *Config) error {
	if cfg.LimitsFile == "" {
		return errors.New("limits_file must not be empty")
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative, got %d", cfg.Redis.DB)
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", cfg.Log.Format)
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds a slog logger from the log settings, writing to w
// (stderr when nil).
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), nil
}
