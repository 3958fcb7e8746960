package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"codeduel/internal/problem"
)

// EnvPrefix prefixes every environment variable, e.g. CODEDUEL_HTTP_PORT.
const EnvPrefix = "CODEDUEL"

// Config is the whole server configuration.
type Config struct {
	HTTP      *HTTPConfig      `mapstructure:"http"`
	WebSocket *WebSocketConfig `mapstructure:"websocket"`
	Database  *DatabaseConfig  `mapstructure:"database"`
	Match     *MatchConfig     `mapstructure:"match"`
	Redis     *RedisConfig     `mapstructure:"redis"`
	Log       *LogConfig       `mapstructure:"log"`
	RateLimit *RateLimitConfig `mapstructure:"rate_limit"`
}

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BufferSize   int           `mapstructure:"buffer_size"`
}

type DatabaseConfig struct {
	Path           string        `mapstructure:"path"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
	// MigrationsPath is empty to use the migrations built into the binary.
	MigrationsPath string `mapstructure:"migrations_path"`
}

// MatchConfig tunes room behavior.
type MatchConfig struct {
	GracePeriod         time.Duration `mapstructure:"grace_period"`
	ProblemFetchTimeout time.Duration `mapstructure:"problem_fetch_timeout"`
	ProblemSourceURL    string        `mapstructure:"problem_source_url"`
}

// RedisConfig enables the shared problem-list cache.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Key      string        `mapstructure:"key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// RateLimitConfig bounds inbound websocket events per connection.
type RateLimitConfig struct {
	EventsPerSecond float64 `mapstructure:"events_per_second"`
	Burst           int     `mapstructure:"burst"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Database: &DatabaseConfig{
			Path:           "./data/codeduel.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		Match: &MatchConfig{
			GracePeriod:         15 * time.Second,
			ProblemFetchTimeout: problem.DefaultFetchTimeout,
			ProblemSourceURL:    problem.DefaultFeedURL,
		},
		Redis: &RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DB:       0,
			CacheTTL: 6 * time.Hour,
			Key:      problem.DefaultCacheKey,
		},
		Log: &LogConfig{
			Level:  "info",
			Pretty: false,
		},
		RateLimit: &RateLimitConfig{
			EventsPerSecond: 20,
			Burst:           40,
		},
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}

	if c.Match == nil {
		return fmt.Errorf("match configuration is required")
	}
	if c.Match.GracePeriod <= 0 {
		return fmt.Errorf("match grace period must be positive")
	}
	if c.Match.ProblemFetchTimeout <= 0 {
		return fmt.Errorf("problem fetch timeout must be positive")
	}
	if c.Match.ProblemSourceURL == "" {
		return fmt.Errorf("problem source URL cannot be empty")
	}

	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address cannot be empty when redis is enabled")
		}
		if c.Redis.CacheTTL <= 0 {
			return fmt.Errorf("redis cache TTL must be positive")
		}
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}

	if c.RateLimit == nil {
		return fmt.Errorf("rate limit configuration is required")
	}
	if c.RateLimit.EventsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	return nil
}

// Address returns the HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadFromEnv overlays CODEDUEL_* environment variables on the defaults.
// A .env file in the working directory is loaded first when present.
// Any unparseable value falls back to DefaultConfig.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	v := newViper()
	v.AutomaticEnv()

	cfg, err := decode(v)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// LoadFromFile reads a YAML or JSON file, chosen by extension, over the defaults.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return cfg, nil
}

// LoadConfigWithPrecedence resolves file > environment > defaults. A file
// that cannot be loaded is ignored.
func LoadConfigWithPrecedence(path string) *Config {
	cfg := LoadFromEnv()

	if path != "" {
		if fileCfg, err := LoadFromFile(path); err == nil {
			cfg = fileCfg
		}
	}

	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	d := DefaultConfig()
	defaults := map[string]any{
		"http.host":                    d.HTTP.Host,
		"http.port":                    d.HTTP.Port,
		"http.read_timeout":            d.HTTP.ReadTimeout,
		"http.write_timeout":           d.HTTP.WriteTimeout,
		"websocket.ping_interval":      d.WebSocket.PingInterval,
		"websocket.read_timeout":       d.WebSocket.ReadTimeout,
		"websocket.write_timeout":      d.WebSocket.WriteTimeout,
		"websocket.buffer_size":        d.WebSocket.BufferSize,
		"database.path":                d.Database.Path,
		"database.timeout":             d.Database.Timeout,
		"database.max_connections":     d.Database.MaxConnections,
		"database.migrations_path":     d.Database.MigrationsPath,
		"match.grace_period":           d.Match.GracePeriod,
		"match.problem_fetch_timeout":  d.Match.ProblemFetchTimeout,
		"match.problem_source_url":     d.Match.ProblemSourceURL,
		"redis.enabled":                d.Redis.Enabled,
		"redis.addr":                   d.Redis.Addr,
		"redis.password":               d.Redis.Password,
		"redis.db":                     d.Redis.DB,
		"redis.cache_ttl":              d.Redis.CacheTTL,
		"redis.key":                    d.Redis.Key,
		"log.level":                    d.Log.Level,
		"log.pretty":                   d.Log.Pretty,
		"rate_limit.events_per_second": d.RateLimit.EventsPerSecond,
		"rate_limit.burst":             d.RateLimit.Burst,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
