package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty temp dir and clears every
// MICROBLOG_* override for the duration of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"MICROBLOG_DB_PATH", "MICROBLOG_SEARCH_BACKEND", "MICROBLOG_SEARCH_PATH",
		"MICROBLOG_REDIS_ADDRS", "MICROBLOG_SEARCH_TIMEOUT", "MICROBLOG_SEARCH_PER_PAGE",
		"MICROBLOG_LOG_LEVEL", "MICROBLOG_HTTP_ADDR",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, BackendBleve, cfg.Search.Backend)
	assert.Equal(t, 25, cfg.Search.PerPage)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout)
	assert.Equal(t, 500, cfg.Search.ReindexBatch)
	assert.Equal(t, "microblog:", cfg.Search.KeyPrefix)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "microblog.db", filepath.Base(cfg.Database.Path))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_LayersUserProjectEnv(t *testing.T) {
	// Given: a user file, a project file and an env var
	isolate(t)
	writeFile(t, GetUserConfigPath(), `
search:
  backend: sqlite
  per_page: 10
  timeout: 2s
server:
  log_level: debug
`)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigFile), `
search:
  per_page: 50
`)
	t.Setenv("MICROBLOG_LOG_LEVEL", "warn")

	// When: loading
	cfg, err := Load(dir)

	// Then: each layer wins over the one below it
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Search.Backend)
	assert.Equal(t, 50, cfg.Search.PerPage)
	assert.Equal(t, 2*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
}

func TestLoad_YmlFallback(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".microblog.yml"), "server:\n  addr: \":9000\"\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("MICROBLOG_SEARCH_BACKEND", "REDIS")
	t.Setenv("MICROBLOG_REDIS_ADDRS", "a:6379, b:6379,")
	t.Setenv("MICROBLOG_SEARCH_TIMEOUT", "250ms")
	t.Setenv("MICROBLOG_DB_PATH", "")
	t.Setenv("MICROBLOG_HTTP_ADDR", ":7000")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Search.Backend)
	assert.Equal(t, []string{"a:6379", "b:6379"}, cfg.Search.RedisAddrs)
	assert.Equal(t, 250*time.Millisecond, cfg.Search.Timeout)
	assert.Empty(t, cfg.Database.Path)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoad_MalformedEnvIgnored(t *testing.T) {
	isolate(t)
	t.Setenv("MICROBLOG_SEARCH_TIMEOUT", "soon")
	t.Setenv("MICROBLOG_SEARCH_PER_PAGE", "-3")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout)
	assert.Equal(t, 25, cfg.Search.PerPage)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigFile), "search: [unclosed")

	_, err := Load(dir)

	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Search.Backend = "solr" }, "search.backend"},
		{"redis without addrs", func(c *Config) { c.Search.Backend = BackendRedis }, "redis_addrs"},
		{"sqlite without path", func(c *Config) { c.Search.Backend = BackendSQLite; c.Search.Path = "" }, "search.path"},
		{"zero per page", func(c *Config) { c.Search.PerPage = 0 }, "per_page"},
		{"oversized per page", func(c *Config) { c.Search.PerPage = 500 }, "per_page"},
		{"negative timeout", func(c *Config) { c.Search.Timeout = -time.Second }, "timeout"},
		{"negative workers", func(c *Config) { c.Search.ReindexWorkers = -1 }, "reindex"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }, "log_level"},
		{"none backend", func(c *Config) { c.Search.Backend = BackendNone }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	// Given: a modified config written to disk
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Search.Backend = BackendNone
	cfg.Search.Timeout = 1500 * time.Millisecond
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigFile)))

	// When: loading it back as a project config
	loaded, err := Load(dir)

	// Then: the values survive
	require.NoError(t, err)
	assert.Equal(t, BackendNone, loaded.Search.Backend)
	assert.Equal(t, 1500*time.Millisecond, loaded.Search.Timeout)
}

func TestBackupFile(t *testing.T) {
	// Given: no file yet
	path := filepath.Join(t.TempDir(), "config.yaml")
	got, err := BackupFile(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	// When: backing up an existing file more times than are kept
	writeFile(t, path, "version: 1\n")
	for range MaxBackups + 2 {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	// Then: only the newest MaxBackups remain, with the original content
	backups, err := ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, MaxBackups)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}
