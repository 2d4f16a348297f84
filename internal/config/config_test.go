package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGameServer_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadGameServer(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9056, cfg.Port)
	assert.Equal(t, "0.13.3", cfg.ProtocolVersion)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadGameServer_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gameserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
log_level: debug
database:
  host: db.internal
  dbname: wod_prod
`), 0o644))

	cfg, err := LoadGameServer(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "wod_prod", cfg.Database.DBName)
	assert.Equal(t, 5432, cfg.Database.Port, "unset keys keep defaults")
	assert.Equal(t, "0.13.3", cfg.ProtocolVersion)
}

func TestLoadGameServer_SMTPFromEnv(t *testing.T) {
	t.Setenv("EMAIL_USER", "bot@example.com")
	t.Setenv("EMAIL_PASS", "hunter2")

	cfg, err := LoadGameServer(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, "bot@example.com", cfg.SMTP.User)
	assert.Equal(t, "bot@example.com", cfg.SMTP.From, "from falls back to the login user")
}

func TestLoadGameServer_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [nope"), 0o644))

	_, err := LoadGameServer(path)
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	dsn := DatabaseConfig{
		Host: "localhost", Port: 5432,
		User: "wod", Password: "pw", DBName: "wod", SSLMode: "disable",
	}.DSN()
	assert.Equal(t, "postgres://wod:pw@localhost:5432/wod?sslmode=disable", dsn)
}
