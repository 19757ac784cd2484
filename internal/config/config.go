// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TEAMCHAT_DATABASE_URL.
const EnvPrefix = "TEAMCHAT_"

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr" env:"ADDR"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	} `yaml:"server" envPrefix:"SERVER_"`

	// An empty URL selects SQLite; an empty SQLitePath keeps it in memory.
	Database struct {
		URL          string `yaml:"url" env:"URL"`
		MaxOpenConns int    `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
		SQLitePath   string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	} `yaml:"database" envPrefix:"DATABASE_"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"URL"`
	} `yaml:"rabbitmq" envPrefix:"RABBITMQ_"`

	Redis struct {
		URL string `yaml:"url" env:"URL"`
	} `yaml:"redis" envPrefix:"REDIS_"`

	Notify struct {
		Backend string        `yaml:"backend" env:"BACKEND"` // none, rabbitmq or redis
		Workers int           `yaml:"workers" env:"WORKERS"`
		Buffer  int           `yaml:"buffer" env:"BUFFER"`
		Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	} `yaml:"notify" envPrefix:"NOTIFY_"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	} `yaml:"auth" envPrefix:"AUTH_"`

	Censor struct {
		Mask      string        `yaml:"mask" env:"MASK"`
		CacheSize int           `yaml:"cache_size" env:"CACHE_SIZE"`
		CacheTTL  time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	} `yaml:"censor" envPrefix:"CENSOR_"`

	History struct {
		PageSize int `yaml:"page_size" env:"PAGE_SIZE"`
	} `yaml:"history" envPrefix:"HISTORY_"`

	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"` // json or console
	} `yaml:"log" envPrefix:"LOG_"`

	// SeedFile preloads users, channels, bots and forbidden words.
	SeedFile string `yaml:"seed_file" env:"SEED_FILE"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Database.MaxOpenConns = 10
	cfg.Notify.Backend = "none"
	cfg.Notify.Workers = 4
	cfg.Notify.Buffer = 256
	cfg.Notify.Timeout = 5 * time.Second
	cfg.Censor.Mask = "*"
	cfg.Censor.CacheSize = 256
	cfg.Censor.CacheTTL = 5 * time.Minute
	cfg.History.PageSize = 50
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// LoadConfig layers the YAML file at path (skipped when path is empty), a
// .env file if present, and TEAMCHAT_* environment variables over the
// defaults, then validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.Notify.Backend {
	case "none":
	case "rabbitmq":
		if c.RabbitMQ.URL == "" {
			return errors.New("rabbitmq.url is required when notify.backend is rabbitmq")
		}
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required when notify.backend is redis")
		}
	default:
		return fmt.Errorf("unknown notify.backend %q", c.Notify.Backend)
	}
	if utf8.RuneCountInString(c.Censor.Mask) != 1 {
		return fmt.Errorf("censor.mask must be a single character, got %q", c.Censor.Mask)
	}
	if c.History.PageSize <= 0 {
		return fmt.Errorf("history.page_size must be positive, got %d", c.History.PageSize)
	}
	return nil
}

// MaskRune returns the censor mask character.
func (c *Config) MaskRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Censor.Mask)
	return r
}
