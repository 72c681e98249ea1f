package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inEmptyDir runs the test from a directory without .env or portwatch.yaml.
func inEmptyDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prevDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prevDir) })
	return dir
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.Equal(t, "connect", cfg.Scanner.Mode)
	assert.Equal(t, 10, cfg.Scanner.DefaultWorkers)
	assert.Equal(t, time.Second, cfg.Scanner.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	inEmptyDir(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := inEmptyDir(t)
	path := filepath.Join(dir, "custom.yaml")
	content := []byte(`
server:
  addr: "127.0.0.1:9000"
logging:
  level: DEBUG
  format: text
scanner:
  mode: udp
  max_workers: 4
  timeout: 250ms
export:
  dir: /var/lib/portwatch
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "udp", cfg.Scanner.Mode)
	assert.Equal(t, 4, cfg.Scanner.MaxWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.Scanner.Timeout)
	assert.Equal(t, "/var/lib/portwatch", cfg.Export.Dir)
}

func TestLoad_DiscoversPortwatchYAML(t *testing.T) {
	dir := inEmptyDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "portwatch.yaml"), []byte("export:\n  dir: found\n"), 0o644))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "found", cfg.Export.Dir)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	inEmptyDir(t)

	_, err := Load("does-not-exist.yaml", nil)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("PORTWATCH_SERVER_ADDR", ":9090")
	t.Setenv("PORTWATCH_SCANNER_TIMEOUT", "3s")
	t.Setenv("PORTWATCH_REDIS_ENABLED", "true")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Scanner.Timeout)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoad_LegacyRedisAddr(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)

	t.Setenv("PORTWATCH_REDIS_ADDR", "primary:6379")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "primary:6379", cfg.Redis.Addr)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := inEmptyDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORTWATCH_EXPORT_DIR=from-dotenv\n"), 0o644))

	// Registers restoration of the variable godotenv is about to set.
	t.Setenv("PORTWATCH_EXPORT_DIR", "placeholder")
	require.NoError(t, os.Unsetenv("PORTWATCH_EXPORT_DIR"))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Export.Dir)
}

func TestLoad_FlagsOverrideOnlyWhenSet(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("PORTWATCH_SERVER_ADDR", ":9090")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("addr", ":1111", "")
	fs.String("log-level", "error", "")
	require.NoError(t, fs.Parse([]string{"--addr", ":7070"}))

	cfg, err := Load("", map[string]*pflag.Flag{
		"server.addr":   fs.Lookup("addr"),
		"logging.level": fs.Lookup("log-level"),
	})
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("PORTWATCH_SCANNER_MODE", "syn")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scanner mode")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server address"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"rate limit without redis", func(c *Config) { c.Server.RateLimit = 5 }, "requires redis"},
		{"rate limit with redis", func(c *Config) { c.Server.RateLimit = 5; c.Redis.Enabled = true }, ""},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis address"},
		{"no export dir", func(c *Config) { c.Export.Dir = "" }, "export directory"},
		{"negative workers", func(c *Config) { c.Scanner.DefaultWorkers = -1 }, "default workers"},
		{"negative max workers", func(c *Config) { c.Scanner.MaxWorkers = -1 }, "max workers"},
		{"zero timeout", func(c *Config) { c.Scanner.Timeout = 0 }, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
