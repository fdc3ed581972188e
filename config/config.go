// Package config loads service settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"board-service/storage"
)

const (
	DriverMemory = "memory"
	DriverTables = "tables"
)

type Config struct {
	Port           string        `yaml:"port"`
	Debug          bool          `yaml:"debug"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	Storage        StorageConfig `yaml:"storage"`
	Redis          RedisConfig   `yaml:"redis"`
	Auth           AuthConfig    `yaml:"auth"`
	RateLimit      RateLimit     `yaml:"rate_limit"`
	Events         EventsConfig  `yaml:"events"`
}

type StorageConfig struct {
	Driver           string             `yaml:"driver"`
	ConnectionString string             `yaml:"connection_string"`
	Tables           storage.TableNames `yaml:"tables"`
}

// RedisConfig enables the shared cache and reorder locks when a connection
// string is set.
type RedisConfig struct {
	ConnectionString string        `yaml:"connection_string"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
}

type AuthConfig struct {
	Domain       string        `yaml:"domain"`
	Audience     string        `yaml:"audience"`
	TestMode     bool          `yaml:"test_mode"`
	TestSecret   string        `yaml:"test_secret"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type EventsConfig struct {
	BufferSize   int           `yaml:"buffer_size"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Port: "8080",
		Storage: StorageConfig{
			Driver: DriverTables,
			Tables: storage.TableNames{
				Boards:  "boards",
				Members: "members",
				Columns: "columns",
				Tasks:   "tasks",
			},
		},
		Redis: RedisConfig{
			CacheTTL: 5 * time.Minute,
			LockTTL:  10 * time.Second,
		},
		Auth: AuthConfig{
			JWKSCacheTTL: 15 * time.Minute,
		},
		RateLimit: RateLimit{RPS: 5, Burst: 10},
		Events: EventsConfig{
			BufferSize:   100,
			PingInterval: 30 * time.Second,
		},
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the
// environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
func (c *Config) ApplyEnv() error {
	envString("PORT", &c.Port)
	envString("FUNCTIONS_CUSTOMHANDLER_PORT", &c.Port)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	envString("STORAGE_DRIVER", &c.Storage.Driver)
	envString("STORAGE_CONNECTION_STRING", &c.Storage.ConnectionString)
	envString("BOARDS_TABLE", &c.Storage.Tables.Boards)
	envString("MEMBERS_TABLE", &c.Storage.Tables.Members)
	envString("COLUMNS_TABLE", &c.Storage.Tables.Columns)
	envString("TASKS_TABLE", &c.Storage.Tables.Tasks)

	envString("REDIS_CONNECTION_STRING", &c.Redis.ConnectionString)
	envString("AUTH0_DOMAIN", &c.Auth.Domain)
	envString("AUTH0_AUDIENCE", &c.Auth.Audience)
	envString("TEST_JWT_SECRET", &c.Auth.TestSecret)

	return errors.Join(
		envBool("DEBUG", &c.Debug),
		envBool("AUTH0_TEST_MODE", &c.Auth.TestMode),
		envDur("JWKS_CACHE_TTL", &c.Auth.JWKSCacheTTL),
		envDur("CACHE_TTL", &c.Redis.CacheTTL),
		envDur("LOCK_TTL", &c.Redis.LockTTL),
		envFloat("RATE_LIMIT_RPS", &c.RateLimit.RPS),
		envInt("RATE_LIMIT_BURST", &c.RateLimit.Burst),
		envInt("EVENT_BUFFER_SIZE", &c.Events.BufferSize),
		envDur("PING_INTERVAL", &c.Events.PingInterval),
	)
}

// Validate reports every problem with cfg at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port must be set"))
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverTables:
		if c.Storage.ConnectionString == "" {
			errs = append(errs, errors.New("missing storage config: STORAGE_CONNECTION_STRING"))
		}
		for _, name := range c.Storage.Tables.All() {
			if name == "" {
				errs = append(errs, errors.New("missing storage config: table names must not be empty"))
				break
			}
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Auth.TestMode {
		if c.Auth.TestSecret == "" {
			errs = append(errs, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE is enabled"))
		}
	} else if c.Auth.Domain == "" || c.Auth.Audience == "" {
		errs = append(errs, errors.New("missing Auth0 config"))
	}
	if c.Redis.CacheTTL < 0 {
		errs = append(errs, errors.New("CACHE_TTL must not be negative"))
	}
	if c.Redis.LockTTL <= 0 {
		errs = append(errs, errors.New("LOCK_TTL must be greater than zero"))
	}
	if c.Events.BufferSize < 0 {
		errs = append(errs, errors.New("EVENT_BUFFER_SIZE must not be negative"))
	}
	if c.Events.PingInterval < 0 {
		errs = append(errs, errors.New("PING_INTERVAL must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func envDur(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
