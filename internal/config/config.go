package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/optionsrun/internal/overlay"
)

// DefaultPath is where the service looks for its configuration file
const DefaultPath = "config/optionsrun.yaml"

// EnvPrefix namespaces every environment override
const EnvPrefix = "OPTIONSRUN_"

// AppConfig represents the complete service configuration
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Circuit   CircuitConfig   `yaml:"circuit"`
	Engine    overlay.Config  `yaml:"engine"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig represents the HTTP listener settings
type ServerConfig struct {
	Addr              string `yaml:"addr"`
	ReadTimeoutMS     int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS    int    `yaml:"write_timeout_ms"`
	ShutdownTimeoutMS int    `yaml:"shutdown_timeout_ms"`
}

// RedisConfig represents the report cache connection
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLSecs  int    `yaml:"ttl_secs"` // Cache TTL in seconds
}

// DatabaseConfig represents the decision journal connection
type DatabaseConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DSN              string `yaml:"dsn"`
	MaxOpenConns     int    `yaml:"max_open_conns"`
	MaxIdleConns     int    `yaml:"max_idle_conns"`
	ConnectTimeoutMS int    `yaml:"connect_timeout_ms"` // Total retry budget for the initial connect
}

// RateLimitConfig represents per-client request limits
type RateLimitConfig struct {
	RPS           float64 `yaml:"rps"`   // Requests per second per client
	Burst         int     `yaml:"burst"` // Burst capacity
	IdleEvictSecs int     `yaml:"idle_evict_secs"`
}

// CircuitConfig represents circuit breaker configuration for the cache and journal
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold"` // Consecutive failures to open circuit
	OpenTimeoutMS    int `yaml:"open_timeout_ms"`   // Time spent open before a half-open probe
}

// Default returns a configuration that runs the service with no external stores
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeoutMS:     5000,
			WriteTimeoutMS:    10000,
			ShutdownTimeoutMS: 10000,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			TTLSecs: 300,
		},
		Database: DatabaseConfig{
			MaxOpenConns:     10,
			MaxIdleConns:     5,
			ConnectTimeoutMS: 30000,
		},
		RateLimit: RateLimitConfig{
			RPS:           10,
			Burst:         20,
			IdleEvictSecs: 600,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 5,
			OpenTimeoutMS:    30000,
		},
		Engine:   overlay.DefaultConfig(),
		LogLevel: "info",
	}
}

// Load reads .env (if present), then the YAML file over the defaults, then
// OPTIONSRUN_* environment overrides. A missing YAML file is not an error.
func Load(configPath string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func (c *AppConfig) applyEnv() error {
	setString(&c.Server.Addr, "ADDR")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.LogLevel, "LOG_LEVEL")

	if err := setBool(&c.Redis.Enabled, "REDIS_ENABLED"); err != nil {
		return err
	}
	if err := setBool(&c.Database.Enabled, "DATABASE_ENABLED"); err != nil {
		return err
	}
	if err := setInt(&c.RateLimit.Burst, "RATE_BURST"); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvPrefix + "RATE_RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_RPS: %w", EnvPrefix, err)
		}
		c.RateLimit.RPS = rps
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

// Validate ensures the configuration is valid and consistent
func (c *AppConfig) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate_limit rps must be positive, got %f", c.RateLimit.RPS)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit burst must be >= 1, got %d", c.RateLimit.Burst)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr cannot be empty when redis is enabled")
	}
	if c.Redis.TTLSecs < 0 {
		return fmt.Errorf("redis ttl_secs cannot be negative, got %d", c.Redis.TTLSecs)
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database dsn cannot be empty when the journal is enabled")
	}
	if c.Circuit.FailureThreshold <= 0 {
		return fmt.Errorf("circuit failure_threshold must be positive, got %d", c.Circuit.FailureThreshold)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel for zerolog
func (c *AppConfig) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// GetCacheTTL returns the cache TTL as a time.Duration
func (r RedisConfig) GetCacheTTL() time.Duration {
	return time.Duration(r.TTLSecs) * time.Second
}

// GetConnectTimeout returns the journal connect retry budget
func (d DatabaseConfig) GetConnectTimeout() time.Duration {
	return time.Duration(d.ConnectTimeoutMS) * time.Millisecond
}

// GetOpenTimeout returns how long a tripped breaker stays open
func (c CircuitConfig) GetOpenTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutMS) * time.Millisecond
}

// GetIdleEvict returns how long an unused client limiter is kept
func (r RateLimitConfig) GetIdleEvict() time.Duration {
	return time.Duration(r.IdleEvictSecs) * time.Second
}

// Timeouts returns the read, write and shutdown timeouts
func (s ServerConfig) Timeouts() (read, write, shutdown time.Duration) {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond,
		time.Duration(s.WriteTimeoutMS) * time.Millisecond,
		time.Duration(s.ShutdownTimeoutMS) * time.Millisecond
}
