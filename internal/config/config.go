package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	ReplayAPI ReplayAPIConfig `mapstructure:"replay_api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Summary   SummaryConfig   `mapstructure:"summary"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"api_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// ReplayAPIConfig holds the replay backend configuration
type ReplayAPIConfig struct {
	BaseURL              string   `mapstructure:"base_url"`
	Mirrors              []string `mapstructure:"mirrors"`
	Organization         string   `mapstructure:"organization"`
	Project              string   `mapstructure:"project"`
	Token                string   `mapstructure:"token"`
	Timeout              int      `mapstructure:"timeout"`
	HTTPRetries          int      `mapstructure:"http_retries"`
	MaxRetries           int      `mapstructure:"max_retries"`
	MaxWorkers           int      `mapstructure:"max_workers"`
	MaxRequestsPerSecond int      `mapstructure:"max_requests_per_second"`
	CircuitBreakerDelay  int      `mapstructure:"circuit_breaker_delay"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DSN returns the pgx connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MinIdleTime   int    `mapstructure:"min_idle_time"`
	StreamMaxLen  int64  `mapstructure:"stream_max_len"` // 0 keeps streams untrimmed
}

// SummaryConfig controls trail caching
type SummaryConfig struct {
	CacheTTL int `mapstructure:"cache_ttl"` // seconds
}

// Load reads config.yaml from the working directory with environment
// variable overrides. A missing file leaves defaults and environment in place.
func Load() (*Config, error) {
	return load(viper.New(), ".")
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values that have no sensible fallback
func (c *Config) Validate() error {
	if c.ReplayAPI.BaseURL == "" {
		return fmt.Errorf("replay_api.base_url is required")
	}
	if c.ReplayAPI.MaxWorkers <= 0 {
		return fmt.Errorf("replay_api.max_workers must be positive, got %d", c.ReplayAPI.MaxWorkers)
	}
	if c.ReplayAPI.MaxRequestsPerSecond <= 0 {
		return fmt.Errorf("replay_api.max_requests_per_second must be positive, got %d", c.ReplayAPI.MaxRequestsPerSecond)
	}
	if c.Redis.MinIdleTime <= 0 {
		return fmt.Errorf("redis.min_idle_time must be positive, got %d", c.Redis.MinIdleTime)
	}
	if c.Summary.CacheTTL < 0 {
		return fmt.Errorf("summary.cache_ttl must not be negative, got %d", c.Summary.CacheTTL)
	}
	if c.Redis.StreamMaxLen < 0 {
		return fmt.Errorf("redis.stream_max_len must not be negative, got %d", c.Redis.StreamMaxLen)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.api_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("replay_api.base_url", "https://sentry.io")
	v.SetDefault("replay_api.mirrors", []string{})
	v.SetDefault("replay_api.organization", "")
	v.SetDefault("replay_api.project", "")
	v.SetDefault("replay_api.token", "")
	v.SetDefault("replay_api.timeout", 30)
	v.SetDefault("replay_api.http_retries", 2)
	v.SetDefault("replay_api.max_retries", 5)
	v.SetDefault("replay_api.max_workers", 4)
	v.SetDefault("replay_api.max_requests_per_second", 10)
	v.SetDefault("replay_api.circuit_breaker_delay", 60)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "replaycrumbs")
	v.SetDefault("database.user", "replaycrumbs_user")
	v.SetDefault("database.password", "replaycrumbs_pass")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.consumer_group", "replaycrumbs_consumer")
	v.SetDefault("redis.min_idle_time", 120)
	v.SetDefault("redis.stream_max_len", 100000)

	v.SetDefault("summary.cache_ttl", 3600)
}
