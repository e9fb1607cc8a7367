package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfigMergesEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  name: base_db
server:
  port: ":8080"
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)

	cfgMap, err := LoadConfig("production", dir)
	require.NoError(t, err)

	var cfg struct {
		DB     DBConfig     `yaml:"db"`
		Server ServerConfig `yaml:"server"`
	}
	require.NoError(t, Decode(cfgMap, &cfg))

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "base_db", cfg.DB.Name)
	assert.Equal(t, ":8080", cfg.Server.Port)
}

func TestLoadConfigSubstitutesSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  password: "${DV_TEST_DB_PASSWORD}"
  user: "${DV_TEST_UNKNOWN}"
`)
	writeFile(t, dir, "secrets.env", `
# comment
DV_TEST_DB_PASSWORD="s3cret"
`)

	cfgMap, err := LoadConfig("local", dir)
	require.NoError(t, err)

	var cfg struct {
		DB DBConfig `yaml:"db"`
	}
	require.NoError(t, Decode(cfgMap, &cfg))
	assert.Equal(t, "s3cret", cfg.DB.Password)
	assert.Equal(t, "${DV_TEST_UNKNOWN}", cfg.DB.User)
}

func TestLoadConfigProcessEnvWinsOverSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
redis:
  password: "${DV_TEST_REDIS_PASSWORD}"
`)
	writeFile(t, dir, "secrets.env", "DV_TEST_REDIS_PASSWORD=from-file\n")
	t.Setenv("DV_TEST_REDIS_PASSWORD", "from-env")

	cfgMap, err := LoadConfig("", dir)
	require.NoError(t, err)

	var cfg struct {
		Redis RedisConfig `yaml:"redis"`
	}
	require.NoError(t, Decode(cfgMap, &cfg))
	assert.Equal(t, "from-env", cfg.Redis.Password)
}

func TestLoadConfigMissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base.yaml")
}

func TestOverrideDBFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_PASSWORD", "pw")

	cfg := DBConfig{Host: "localhost", Port: 5432, Name: "app"}
	OverrideDBFromEnv(&cfg)

	assert.Equal(t, DBConfig{Host: "pg", Port: 6543, Password: "pw", Name: "app"}, cfg)
}
