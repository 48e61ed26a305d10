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

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqlgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""), nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "file", cfg.Definitions.Source)
	assert.Equal(t, []string{"definitions"}, cfg.Definitions.Paths)
	assert.Equal(t, int64(8), cfg.Async.Workers)
	assert.Equal(t, time.Minute, cfg.Async.JobTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Async.JobTTL)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listenAddr: ":9000"
  baseURL: /gateway
definitions:
  source: file
  paths:
    - /etc/sqlgate/defs
  watch: true
async:
  workers: 4
  jobTimeout: 30s
metrics:
  enabled: true
  listenAddr: ":9101"
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, "/gateway", cfg.Server.BaseURL)
	assert.Equal(t, []string{"/etc/sqlgate/defs"}, cfg.Definitions.Paths)
	assert.True(t, cfg.Definitions.Watch)
	assert.Equal(t, int64(4), cfg.Async.Workers)
	assert.Equal(t, 30*time.Second, cfg.Async.JobTimeout)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9101", cfg.Metrics.ListenAddr)
}

func TestLoadPostgresSource(t *testing.T) {
	path := writeConfig(t, `
definitions:
  source: postgres
  connString: postgres://localhost:5432/sqlgate
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Definitions.Source)
	assert.Equal(t, "sqlgate", cfg.Definitions.Schema)
}

func TestLoadRejectsBadSource(t *testing.T) {
	_, err := Load(writeConfig(t, "definitions:\n  source: etcd\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}

func TestLoadRejectsPostgresWithoutConnString(t *testing.T) {
	_, err := Load(writeConfig(t, "definitions:\n  source: postgres\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connString")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SQLGATE_SERVER_LISTENADDR", ":7070")

	cfg, err := Load(writeConfig(t, ""), nil)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
}

func TestFlagOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listenAddr: ":9000"
  baseURL: /gateway
`)

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("server.listenAddr", "", "")
	flags.String("server.baseURL", "", "")
	flags.Bool("definitions.watch", false, "")
	require.NoError(t, flags.Set("server.listenAddr", ":9999"))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.ListenAddr, "a set flag wins over the file")
	assert.Equal(t, "/gateway", cfg.Server.BaseURL, "an unset flag keeps the file value")
	assert.Equal(t, "file", cfg.Definitions.Source, "unbound keys keep their defaults")
}
