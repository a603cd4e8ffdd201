package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "schemas", cfg.Schemas.Dir)
	assert.Equal(t, "schema_changed", cfg.Schemas.Channel)
	assert.Equal(t, 100, cfg.Listing.MaxPageSize)
	assert.Equal(t, 20, cfg.Listing.DefaultPageSize)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9000
schemas:
  dir: /etc/crudschema/schemas
  listen: true
listing:
  max_page_size: 250
database:
  statement_timeout: 5s
`), 0o600))

	t.Setenv("CRUDSCHEMA_HTTP_PORT", "9100")
	t.Setenv("CRUDSCHEMA_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTP.Port, "env wins over the file")
	assert.Equal(t, "/etc/crudschema/schemas", cfg.Schemas.Dir)
	assert.True(t, cfg.Schemas.Listen)
	assert.Equal(t, 250, cfg.Listing.MaxPageSize)
	assert.Equal(t, 5*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("log:\n  level: debug\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config file not found")

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listing:\n  max_page_size: 10\n  default_page_size: 50\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "default_page_size")
}
