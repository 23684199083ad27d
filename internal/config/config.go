package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Search backend names accepted in search.backend.
const (
	BackendBleve  = "bleve"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Project config file names, in lookup order.
const (
	ProjectConfigFile    = ".microblog.yaml"
	projectConfigFileAlt = ".microblog.yml"
)

// maxPerPage matches the largest page the query layer serves.
const maxPerPage = 100

// Config is the complete microblog configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// Path is the SQLite database file. Empty means in-memory.
	Path string `yaml:"path" json:"path"`

	// CacheMB is the SQLite page cache size in megabytes.
	CacheMB int `yaml:"cache_mb" json:"cache_mb"`
}

// SearchConfig configures the full-text search engine and its callers.
//
// Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/microblog/config.yaml)
//  3. Project config (.microblog.yaml)
//  4. Env vars (MICROBLOG_SEARCH_BACKEND, MICROBLOG_SEARCH_PATH, ...)
type SearchConfig struct {
	// Backend is one of bleve, sqlite, redis or none.
	Backend string `yaml:"backend" json:"backend"`

	// Path is the index directory for bleve and sqlite. Empty keeps bleve
	// indexes in memory.
	Path string `yaml:"path" json:"path"`

	RedisAddrs    []string `yaml:"redis_addrs" json:"redis_addrs"`
	RedisPassword string   `yaml:"redis_password" json:"-"`
	KeyPrefix     string   `yaml:"key_prefix" json:"key_prefix"`

	// PerPage is the page size when a query does not ask for one.
	PerPage int `yaml:"per_page" json:"per_page"`

	// Timeout bounds every engine call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	ReindexBatch   int     `yaml:"reindex_batch" json:"reindex_batch"`
	ReindexWorkers int     `yaml:"reindex_workers" json:"reindex_workers"`
	ReindexRate    float64 `yaml:"reindex_rate" json:"reindex_rate"`

	// MaxOpenIndexes caps the bleve index handles kept open.
	MaxOpenIndexes int `yaml:"max_open_indexes" json:"max_open_indexes"`

	// BreakerFailures consecutive engine failures open the circuit for
	// BreakerReset. Zero disables the breaker.
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" json:"breaker_reset"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	LogLevel     string        `yaml:"log_level" json:"log_level"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DataDir returns the default directory for the database and indexes.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".microblog")
	}
	return filepath.Join(home, ".microblog")
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Version: 1,
		Database: DatabaseConfig{
			Path:    filepath.Join(dataDir, "microblog.db"),
			CacheMB: 64,
		},
		Search: SearchConfig{
			Backend:         BackendBleve,
			Path:            filepath.Join(dataDir, "index"),
			KeyPrefix:       "microblog:",
			PerPage:         25,
			Timeout:         5 * time.Second,
			ReindexBatch:    500,
			ReindexWorkers:  4,
			MaxOpenIndexes:  16,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			LogLevel:     "info",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/microblog/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/microblog/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "microblog", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "microblog", "config.yaml")
	}
	return filepath.Join(home, ".config", "microblog", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/microblog/config.yaml)
//  3. Project config (.microblog.yaml in dir)
//  4. Environment variables (MICROBLOG_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads .microblog.yaml or, failing that, .microblog.yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectConfigFile, projectConfigFileAlt} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML merges the values present in the file at path into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Database
	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}
	if other.Database.CacheMB != 0 {
		c.Database.CacheMB = other.Database.CacheMB
	}

	// Search
	s, o := &c.Search, &other.Search
	if o.Backend != "" {
		s.Backend = o.Backend
	}
	if o.Path != "" {
		s.Path = o.Path
	}
	if len(o.RedisAddrs) > 0 {
		s.RedisAddrs = o.RedisAddrs
	}
	if o.RedisPassword != "" {
		s.RedisPassword = o.RedisPassword
	}
	if o.KeyPrefix != "" {
		s.KeyPrefix = o.KeyPrefix
	}
	if o.PerPage != 0 {
		s.PerPage = o.PerPage
	}
	if o.Timeout != 0 {
		s.Timeout = o.Timeout
	}
	if o.ReindexBatch != 0 {
		s.ReindexBatch = o.ReindexBatch
	}
	if o.ReindexWorkers != 0 {
		s.ReindexWorkers = o.ReindexWorkers
	}
	if o.ReindexRate != 0 {
		s.ReindexRate = o.ReindexRate
	}
	if o.MaxOpenIndexes != 0 {
		s.MaxOpenIndexes = o.MaxOpenIndexes
	}
	if o.BreakerFailures != 0 {
		s.BreakerFailures = o.BreakerFailures
	}
	if o.BreakerReset != 0 {
		s.BreakerReset = o.BreakerReset
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.ReadTimeout != 0 {
		c.Server.ReadTimeout = other.Server.ReadTimeout
	}
	if other.Server.WriteTimeout != 0 {
		c.Server.WriteTimeout = other.Server.WriteTimeout
	}
}

// applyEnvOverrides applies MICROBLOG_* environment variable overrides.
// Malformed values are ignored.
func (c *Config) applyEnvOverrides() {
	if v, ok := os.LookupEnv("MICROBLOG_DB_PATH"); ok {
		c.Database.Path = v
	}
	if v := os.Getenv("MICROBLOG_SEARCH_BACKEND"); v != "" {
		c.Search.Backend = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("MICROBLOG_SEARCH_PATH"); ok {
		c.Search.Path = v
	}
	if v := os.Getenv("MICROBLOG_REDIS_ADDRS"); v != "" {
		var addrs []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
		c.Search.RedisAddrs = addrs
	}
	if v := os.Getenv("MICROBLOG_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.Search.Timeout = d
		}
	}
	if v := os.Getenv("MICROBLOG_SEARCH_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.PerPage = n
		}
	}
	if v := os.Getenv("MICROBLOG_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("MICROBLOG_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Search.Backend) {
	case BackendBleve, BackendSQLite, BackendNone:
	case BackendRedis:
		if len(c.Search.RedisAddrs) == 0 {
			return fmt.Errorf("search.redis_addrs is required for the redis backend")
		}
	default:
		return fmt.Errorf("search.backend must be 'bleve', 'sqlite', 'redis' or 'none', got %s", c.Search.Backend)
	}
	if c.Search.Backend == BackendSQLite && c.Search.Path == "" {
		return fmt.Errorf("search.path is required for the sqlite backend")
	}

	if c.Search.PerPage <= 0 || c.Search.PerPage > maxPerPage {
		return fmt.Errorf("search.per_page must be between 1 and %d, got %d", maxPerPage, c.Search.PerPage)
	}
	if c.Search.Timeout < 0 {
		return fmt.Errorf("search.timeout must be non-negative, got %s", c.Search.Timeout)
	}
	if c.Search.ReindexBatch < 0 || c.Search.ReindexWorkers < 0 || c.Search.ReindexRate < 0 {
		return fmt.Errorf("search.reindex_* values must be non-negative")
	}
	if c.Search.BreakerFailures < 0 {
		return fmt.Errorf("search.breaker_failures must be non-negative, got %d", c.Search.BreakerFailures)
	}
	if c.Database.CacheMB < 0 {
		return fmt.Errorf("database.cache_mb must be non-negative, got %d", c.Database.CacheMB)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
