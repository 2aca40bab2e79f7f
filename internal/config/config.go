package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"photoresizer/internal/pipeline"
)

type Config struct {
	ServerAddr     string `yaml:"server_addr"`
	DatabasePath   string `yaml:"database_path"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	// Engine defaults. The zero value of any field falls back to
	// pipeline.DefaultOptions.
	DefaultQuality float64 `yaml:"default_quality"`
	DefaultDPI     float64 `yaml:"default_dpi"`
	MinDPI         float64 `yaml:"min_dpi"`
	MaxDPI         float64 `yaml:"max_dpi"`
	MaxIterations  int     `yaml:"max_iterations"`
	Tolerance      float64 `yaml:"tolerance"`
	MaxDimension   int     `yaml:"max_dimension"`

	SearchTimeout time.Duration `yaml:"search_timeout"`
	SearchWorkers int           `yaml:"search_workers"`

	SessionTTL      time.Duration `yaml:"session_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	EventRetention  time.Duration `yaml:"event_retention"`

	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	TrustedProxyCIDRs  string `yaml:"trusted_proxy_cidrs"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	o := pipeline.DefaultOptions()
	return &Config{
		ServerAddr:         ":8080",
		DatabasePath:       "./data/photoresizer.db",
		MaxUploadBytes:     pipeline.DefaultMaxBytes,
		DefaultQuality:     o.DefaultQuality,
		DefaultDPI:         o.DefaultDPI,
		MinDPI:             o.MinDPI,
		MaxDPI:             o.MaxDPI,
		MaxIterations:      o.MaxIterations,
		Tolerance:          o.Tolerance,
		MaxDimension:       o.MaxDimension,
		SearchTimeout:      20 * time.Second,
		SearchWorkers:      4,
		SessionTTL:         30 * time.Minute,
		JanitorInterval:    5 * time.Minute,
		EventRetention:     90 * 24 * time.Hour,
		RateLimitPerMinute: 60,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and environment variables, in that order of
// increasing precedence. A broken config file is logged and ignored.
func Load() *Config {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			log.Printf("config: ignoring %s: %v", path, err)
		}
	}
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML file on top of the defaults. Environment variables
// are not consulted.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.DefaultQuality = getEnvFloat("DEFAULT_QUALITY", c.DefaultQuality)
	c.DefaultDPI = getEnvFloat("DEFAULT_DPI", c.DefaultDPI)
	c.MinDPI = getEnvFloat("MIN_DPI", c.MinDPI)
	c.MaxDPI = getEnvFloat("MAX_DPI", c.MaxDPI)
	c.MaxIterations = getEnvInt("MAX_ITERATIONS", c.MaxIterations)
	c.Tolerance = getEnvFloat("TOLERANCE", c.Tolerance)
	c.MaxDimension = getEnvInt("MAX_DIMENSION", c.MaxDimension)
	c.SearchTimeout = getEnvDuration("SEARCH_TIMEOUT", c.SearchTimeout)
	c.SearchWorkers = getEnvInt("SEARCH_WORKERS", c.SearchWorkers)
	c.SessionTTL = getEnvDuration("SESSION_TTL", c.SessionTTL)
	c.JanitorInterval = getEnvDuration("JANITOR_INTERVAL", c.JanitorInterval)
	c.EventRetention = getEnvDuration("EVENT_RETENTION", c.EventRetention)
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.TrustedProxyCIDRs = getEnv("TRUSTED_PROXY_CIDRS", c.TrustedProxyCIDRs)
}

// Pipeline converts the engine settings to pipeline.Options.
func (c *Config) Pipeline() pipeline.Options {
	o := pipeline.DefaultOptions()
	if c == nil {
		return o
	}
	if c.DefaultQuality > 0 && c.DefaultQuality <= 1 {
		o.DefaultQuality = c.DefaultQuality
	}
	if c.DefaultDPI > 0 {
		o.DefaultDPI = c.DefaultDPI
	}
	if c.MinDPI > 0 {
		o.MinDPI = c.MinDPI
	}
	if c.MaxDPI >= o.MinDPI {
		o.MaxDPI = c.MaxDPI
	}
	if c.MaxIterations > 0 {
		o.MaxIterations = c.MaxIterations
	}
	if c.Tolerance > 0 && c.Tolerance < 1 {
		o.Tolerance = c.Tolerance
	}
	if c.MaxDimension >= pipeline.MinDimension {
		o.MaxDimension = c.MaxDimension
	}
	return o
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %g", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
