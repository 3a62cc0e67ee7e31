package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// LocalMapConfig holds Region Builder defaults and limits.
type LocalMapConfig struct {
	DefaultMaxHops    int `yaml:"default_max_hops" json:"default_max_hops"`
	DefaultMaxSectors int `yaml:"default_max_sectors" json:"default_max_sectors"`
	MaxHopsLimit      int `yaml:"max_hops_limit" json:"max_hops_limit"`
	MaxSectorsLimit   int `yaml:"max_sectors_limit" json:"max_sectors_limit"` // 0 = unlimited
}

// CoverageConfig holds client-side coverage cache settings.
type CoverageConfig struct {
	InFlightTTL    time.Duration `yaml:"in_flight_ttl" json:"in_flight_ttl"`
	FitRetryLimit  int           `yaml:"fit_retry_limit" json:"fit_retry_limit"`
	RecenterMargin float64       `yaml:"recenter_margin" json:"recenter_margin"` // fraction of the half-extent
}

// Config holds application settings (in-memory representation).
type Config struct {
	ListenAddr       string `yaml:"listen_addr" json:"listen_addr"`
	DBPath           string `yaml:"db_path" json:"db_path"`
	KnowledgeBackend string `yaml:"knowledge_backend" json:"knowledge_backend"` // sqlite | redis
	RedisAddr        string `yaml:"redis_addr" json:"redis_addr"`
	RedisNamespace   string `yaml:"redis_namespace" json:"redis_namespace"`
	UniverseFile     string `yaml:"universe_file" json:"universe_file"`

	// Optimistic-concurrency retries for visit upserts.
	VisitRetries int `yaml:"visit_retries" json:"visit_retries"`
	// Number of sector rows kept by the graph cache; 0 disables caching.
	GraphCacheSize int `yaml:"graph_cache_size" json:"graph_cache_size"`

	LocalMap LocalMapConfig `yaml:"local_map" json:"local_map"`
	Coverage CoverageConfig `yaml:"coverage" json:"coverage"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		ListenAddr:       "127.0.0.1:13380",
		DBPath:           "sectormap.db",
		KnowledgeBackend: BackendSQLite,
		RedisAddr:        "127.0.0.1:6379",
		RedisNamespace:   "default",
		VisitRetries:     3,
		GraphCacheSize:   50000,
		LocalMap: LocalMapConfig{
			DefaultMaxHops:    4,
			DefaultMaxSectors: 28,
			MaxHopsLimit:      100,
		},
		Coverage: CoverageConfig{
			InFlightTTL:    10 * time.Second,
			FitRetryLimit:  5,
			RecenterMargin: 0.2,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DBPath = envOrDefault("SECTORMAP_DB", c.DBPath)
	c.ListenAddr = envOrDefault("SECTORMAP_LISTEN", c.ListenAddr)
	c.RedisAddr = envOrDefault("SECTORMAP_REDIS", c.RedisAddr)
}

// Normalize fills zero values with defaults and trims strings.
func (c *Config) Normalize() {
	d := Default()
	c.KnowledgeBackend = strings.ToLower(strings.TrimSpace(c.KnowledgeBackend))
	if c.KnowledgeBackend == "" {
		c.KnowledgeBackend = d.KnowledgeBackend
	}
	if strings.TrimSpace(c.RedisNamespace) == "" {
		c.RedisNamespace = d.RedisNamespace
	}
	if c.VisitRetries <= 0 {
		c.VisitRetries = d.VisitRetries
	}
	if c.LocalMap.DefaultMaxHops <= 0 {
		c.LocalMap.DefaultMaxHops = d.LocalMap.DefaultMaxHops
	}
	if c.LocalMap.DefaultMaxSectors <= 0 {
		c.LocalMap.DefaultMaxSectors = d.LocalMap.DefaultMaxSectors
	}
	if c.LocalMap.MaxHopsLimit <= 0 {
		c.LocalMap.MaxHopsLimit = d.LocalMap.MaxHopsLimit
	}
	if c.Coverage.InFlightTTL <= 0 {
		c.Coverage.InFlightTTL = d.Coverage.InFlightTTL
	}
	if c.Coverage.FitRetryLimit <= 0 {
		c.Coverage.FitRetryLimit = d.Coverage.FitRetryLimit
	}
	if c.Coverage.RecenterMargin < 0 || c.Coverage.RecenterMargin >= 1 {
		c.Coverage.RecenterMargin = d.Coverage.RecenterMargin
	}
}

// Validate rejects settings that cannot be normalized.
func (c *Config) Validate() error {
	switch c.KnowledgeBackend {
	case BackendSQLite:
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown knowledge_backend %q", c.KnowledgeBackend)
	}
	if c.LocalMap.DefaultMaxHops > c.LocalMap.MaxHopsLimit {
		return fmt.Errorf("local_map.default_max_hops %d exceeds max_hops_limit %d",
			c.LocalMap.DefaultMaxHops, c.LocalMap.MaxHopsLimit)
	}
	if c.LocalMap.MaxSectorsLimit > 0 && c.LocalMap.DefaultMaxSectors > c.LocalMap.MaxSectorsLimit {
		return fmt.Errorf("local_map.default_max_sectors %d exceeds max_sectors_limit %d",
			c.LocalMap.DefaultMaxSectors, c.LocalMap.MaxSectorsLimit)
	}
	if c.GraphCacheSize < 0 {
		return fmt.Errorf("graph_cache_size must not be negative")
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
