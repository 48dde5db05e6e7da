package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Editor.LockTTL)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenaria.yaml")
	content := `
log:
  level: debug
storage:
  driver: sqlite
  path: /tmp/scenaria.db
editor:
  strict_geometry: true
  lock_ttl: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("SCENARIA_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset keys keep their defaults")
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/scenaria.db", cfg.Storage.Path)
	assert.True(t, cfg.Editor.StrictGeometry)
	assert.Equal(t, 5*time.Second, cfg.Editor.LockTTL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Defaults", func(*Config) {}, false},
		{"Unknown Driver", func(c *Config) { c.Storage.Driver = "postgres" }, true},
		{"File Driver Needs Path", func(c *Config) { c.Storage.Path = "" }, true},
		{"Memory Driver Needs No Path", func(c *Config) { c.Storage.Driver = "memory"; c.Storage.Path = "" }, false},
		{"Redis Ignored For Other Drivers", func(c *Config) { c.Storage.Redis.Addr = "" }, false},
		{"Redis Bad Address", func(c *Config) { c.Storage.Driver = "redis"; c.Storage.Redis.Addr = "nowhere" }, true},
		{"Redis Valid", func(c *Config) { c.Storage.Driver = "redis" }, false},
		{"Port Out Of Range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"Unknown Log Level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"Zero Lock TTL", func(c *Config) { c.Editor.LockTTL = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "scenaria"), ConfigDir())
}
