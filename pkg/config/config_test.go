package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileNotExistReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "module-engine", cfg.ModuleEngine.General.InstanceName)
	assert.Equal(t, "sqlite", cfg.GetDatabaseType())
	assert.Equal(t, 10, cfg.GetMaxWorkers())
	assert.Equal(t, 5*time.Minute, cfg.GetStepTimeout())
	assert.Equal(t, "0.0.0.0:8080", cfg.GetListenAddr())
}

func TestLoad_ParsesYAMLAndFillsDefaults(t *testing.T) {
	content := `
module-engine:
  general:
    instance_name: launcher-engine
    log_level: debug
  storage:
    database:
      type: postgres
      dsn: "host=localhost dbname=modules sslmode=disable"
  execution:
    max_workers: 32
    step_timeout: 10m
  retention:
    enabled: true
    workflow_ttl: 48h
  api:
    port: 9090
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "launcher-engine", cfg.ModuleEngine.General.InstanceName)
	assert.Equal(t, "debug", cfg.ModuleEngine.General.LogLevel)
	assert.Equal(t, "postgres", cfg.GetDatabaseType())
	assert.Equal(t, 32, cfg.GetMaxWorkers())
	assert.Equal(t, 10*time.Minute, cfg.GetStepTimeout())
	assert.True(t, cfg.ModuleEngine.Retention.Enabled)
	assert.Equal(t, 48*time.Hour, cfg.ModuleEngine.Retention.WorkflowTTL)
	assert.Equal(t, 9090, cfg.ModuleEngine.API.Port)

	// 未显式配置的字段回落到默认值
	assert.Equal(t, "dev", cfg.ModuleEngine.General.Env)
	assert.Equal(t, "0 3 * * *", cfg.ModuleEngine.Retention.CronSpec)
	assert.Equal(t, 30*24*time.Hour, cfg.ModuleEngine.Retention.ErrorTTL)
}

func TestLoad_InvalidDatabaseType(t *testing.T) {
	content := `
module-engine:
  storage:
    database:
      type: oracle
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEngineConfig_Validate(t *testing.T) {
	cfg := &EngineConfig{}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())

	cfg.ModuleEngine.API.Port = 70000
	assert.Error(t, cfg.Validate())
}
