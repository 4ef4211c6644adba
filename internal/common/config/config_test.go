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
	path := filepath.Join(t.TempDir(), "sallyport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  platform_domain: example.dev
storage:
  type: redis
  redis:
    addr: localhost:6379
deployer:
  type: stub
  stale_timeout: 5m
`)

	cfg, cfgPath, err := LoadConfig[GatewayConfig](path)
	require.NoError(t, err)
	assert.Equal(t, path, cfgPath)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "example.dev", cfg.Server.PlatformDomain)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, 5*time.Minute, cfg.Deployer.StaleTimeout)
}

func TestLoadConfigResolvesEnv(t *testing.T) {
	t.Setenv("SALLYPORT_TEST_PORT", "7070")
	os.Unsetenv("SALLYPORT_TEST_DOMAIN")

	path := writeConfig(t, `
server:
  port: ${SALLYPORT_TEST_PORT:8080}
  platform_domain: ${SALLYPORT_TEST_DOMAIN:fallback.dev}
`)

	cfg, _, err := LoadConfig[GatewayConfig](path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "fallback.dev", cfg.Server.PlatformDomain)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, _, err := LoadConfig[GatewayConfig](filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSetDefaults(t *testing.T) {
	var cfg GatewayConfig
	cfg.SetDefaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sallyport.aixtiv.dev", cfg.Server.PlatformDomain)
	assert.Equal(t, "default", cfg.Server.DefaultTenant)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "stub", cfg.Deployer.Type)
	assert.Equal(t, 10*time.Second, cfg.Deployer.Timeout)
	assert.Equal(t, time.Minute, cfg.Deployer.SweepInterval)
	assert.Equal(t, 15*time.Minute, cfg.Deployer.StaleTimeout)
	assert.Equal(t, "sallyport", cfg.Metrics.Namespace)
}

func TestGetDSN(t *testing.T) {
	pg := DatabaseConfig{
		Type: "postgres", Host: "db", Port: 5432,
		User: "sally", Password: "pw", DBName: "sallyport", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://sally:pw@db:5432/sallyport?sslmode=disable", pg.GetDSN())

	my := DatabaseConfig{
		Type: "mysql", Host: "db", Port: 3306,
		User: "sally", Password: "pw", DBName: "sallyport",
	}
	assert.Equal(t, "sally:pw@tcp(db:3306)/sallyport?charset=utf8mb4&parseTime=True&loc=Local", my.GetDSN())

	lite := DatabaseConfig{Type: "sqlite", DBName: "./data/sallyport.db"}
	assert.Equal(t, "./data/sallyport.db", lite.GetDSN())

	unknown := DatabaseConfig{Type: "oracle"}
	assert.Empty(t, unknown.GetDSN())
}
