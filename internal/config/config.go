// Package config loads service configuration from an optional YAML file
// overlaid with environment variables. A .env file is honored when present.
// The provider API key is deliberately not required at load time: the
// service starts without one and reports the configuration error per
// request and through /health.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration.
type Config struct {
	ServerPort string

	APIKey         string
	WeatherBaseURL string
	GeoBaseURL     string

	UpstreamTimeout time.Duration
	RetryMax        int
	RetryDelay      time.Duration

	CurrentTTL  time.Duration
	ForecastTTL time.Duration
	SearchTTL   time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitPerMin int
	RateLimitBurst  int

	BreakerEnabled     bool
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Provider struct {
		WeatherBaseURL string `yaml:"weather_base_url"`
		GeoBaseURL     string `yaml:"geo_base_url"`
		Timeout        string `yaml:"timeout"`
		RetryMax       *int   `yaml:"retry_max"`
		RetryDelay     string `yaml:"retry_delay"`
	} `yaml:"provider"`

	Cache struct {
		Backend     string `yaml:"backend"`
		CurrentTTL  string `yaml:"current_ttl"`
		ForecastTTL string `yaml:"forecast_ttl"`
		SearchTTL   string `yaml:"search_ttl"`
		Memcached   struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitPerMin    int    `yaml:"rate_limit_per_min"`
		RateLimitBurst     int    `yaml:"rate_limit_burst"`
		BreakerEnabled     bool   `yaml:"breaker_enabled"`
		BreakerMaxRequests int    `yaml:"breaker_max_requests"`
		BreakerInterval    string `yaml:"breaker_interval"`
		BreakerTimeout     string `yaml:"breaker_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev; the
// file is optional) and the environment. OPENWEATHER_API_KEY, PORT,
// CACHE_BACKEND, and MEMCACHED_ADDRS override file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = os.Getenv("PORT")
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.APIKey = strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY"))

	cfg.WeatherBaseURL = fc.Provider.WeatherBaseURL
	cfg.GeoBaseURL = fc.Provider.GeoBaseURL
	cfg.UpstreamTimeout = parseDuration(fc.Provider.Timeout, 5*time.Second)
	cfg.RetryMax = 2
	if fc.Provider.RetryMax != nil && *fc.Provider.RetryMax >= 0 {
		cfg.RetryMax = *fc.Provider.RetryMax
	}
	cfg.RetryDelay = parseDuration(fc.Provider.RetryDelay, 250*time.Millisecond)

	cfg.CurrentTTL = parseDuration(fc.Cache.CurrentTTL, 2*time.Minute)
	cfg.ForecastTTL = parseDuration(fc.Cache.ForecastTTL, 5*time.Minute)
	cfg.SearchTTL = parseDuration(fc.Cache.SearchTTL, 6*time.Hour)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitPerMin = fc.Reliability.RateLimitPerMin
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 60
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}

	cfg.BreakerEnabled = fc.Reliability.BreakerEnabled
	cfg.BreakerMaxRequests = uint32(fc.Reliability.BreakerMaxRequests)
	if cfg.BreakerMaxRequests == 0 {
		cfg.BreakerMaxRequests = 5
	}
	cfg.BreakerInterval = parseDuration(fc.Reliability.BreakerInterval, time.Minute)
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 2*time.Minute)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func validate(cfg *Config) error {
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
