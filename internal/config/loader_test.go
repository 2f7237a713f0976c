package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	// Point the default location at an empty directory so a developer's
	// real config cannot leak into the test.
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Empty(t, cfg.Profiles)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9000
logging:
  level: debug
  format: console
profiles:
  archive:
    connector: s3
    credentials:
      access_key_id: AKIA123
      secret_access_key: secret
      region: us-east-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.Equal(t, "debug", cfg.Logging.Level)

	p, err := cfg.Profile("archive")
	require.NoError(t, err)
	assert.Equal(t, "s3", p.Connector)

	creds := p.DatasourceCredentials()
	assert.Equal(t, "AKIA123", creds["access_key_id"])
	assert.Equal(t, "us-east-1", creds["region"])
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CIRRUS_SERVER_PORT", "9443")
	t.Setenv("CIRRUS_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestProfileErrors(t *testing.T) {
	cfg := &Config{Profiles: map[string]Profile{
		"bad": {Credentials: map[string]string{"token": "t"}},
	}}

	_, err := cfg.Profile("missing")
	require.Error(t, err)

	_, err = cfg.Profile("bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no connector")
}
