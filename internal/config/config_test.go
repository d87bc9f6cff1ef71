package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciffer/timewarden/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8321, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "./timewarden.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Engine.TickInterval)
	assert.Equal(t, int64(2), cfg.Engine.UsageStep)
	assert.Empty(t, cfg.Engine.SessionUser)
	assert.Equal(t, "screenshots", cfg.Engine.ScreenshotDir)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  log_level: debug
database:
  path: /var/lib/timewarden/state.db
engine:
  tick_interval: 5s
  usage_step: 5
  session_user: alice
filter:
  hosts_path: /tmp/hosts
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	// Unset keys keep their defaults
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/var/lib/timewarden/state.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Engine.TickInterval)
	assert.Equal(t, int64(5), cfg.Engine.UsageStep)
	assert.Equal(t, "alice", cfg.Engine.SessionUser)
	assert.Equal(t, "/tmp/hosts", cfg.Filter.HostsPath)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
`)

	t.Setenv("TIMEWARDEN_PORT", "9100")
	t.Setenv("TIMEWARDEN_SESSION_USER", "bob")
	t.Setenv("TIMEWARDEN_TICK_INTERVAL", "10s")
	t.Setenv("TIMEWARDEN_DB_DSN", "postgres://localhost/timewarden")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "bob", cfg.Engine.SessionUser)
	assert.Equal(t, 10*time.Second, cfg.Engine.TickInterval)
	assert.Equal(t, "postgres://localhost/timewarden", cfg.Database.DSN)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad port": `
server:
  port: 99999
`,
		"tick too short": `
engine:
  tick_interval: 10ms
`,
		"negative step": `
engine:
  usage_step: -1
`,
		"no storage": `
database:
  path: ""
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
