package config

import (
	"fmt"
	"time"
)

// EngineConfig 模块引擎框架配置（对外导出）
type EngineConfig struct {
	ModuleEngine struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
				ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
			} `yaml:"database"`
		} `yaml:"storage"`
		Execution struct {
			MaxWorkers         int           `yaml:"max_workers"`
			StepTimeout        time.Duration `yaml:"step_timeout"`
			ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
			BulkMaxConcurrency int           `yaml:"bulk_max_concurrency"`
		} `yaml:"execution"`
		Retention struct {
			Enabled      bool          `yaml:"enabled"`
			CronSpec     string        `yaml:"cron_spec"`
			WorkflowTTL  time.Duration `yaml:"workflow_ttl"`
			ErrorTTL     time.Duration `yaml:"error_ttl"`
			OnlyResolved bool          `yaml:"only_resolved"`
		} `yaml:"retention"`
		API struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			GinMode  string `yaml:"gin_mode"`
			BasePath string `yaml:"base_path"`
		} `yaml:"api"`
		Notifications struct {
			Enabled bool     `yaml:"enabled"`
			Events  []string `yaml:"events"` // 触发通知的事件类型
			Email   struct {
				SMTPHost string `yaml:"smtp_host"`
				SMTPPort int    `yaml:"smtp_port"`
				Username string `yaml:"username"`
				Password string `yaml:"password"`
				From     string `yaml:"from"`
				To       string `yaml:"to"` // 多个收件人用逗号分隔
			} `yaml:"email"`
		} `yaml:"notifications"`
	} `yaml:"module-engine"`
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.ModuleEngine.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.ModuleEngine.Storage.Database.DSN
}

// GetMaxWorkers 获取Worker并发上限
func (c *EngineConfig) GetMaxWorkers() int {
	workers := c.ModuleEngine.Execution.MaxWorkers
	if workers <= 0 {
		return 10 // 默认值
	}
	return workers
}

// GetStepTimeout 获取单步骤执行超时时间
func (c *EngineConfig) GetStepTimeout() time.Duration {
	timeout := c.ModuleEngine.Execution.StepTimeout
	if timeout <= 0 {
		return 5 * time.Minute // 默认值
	}
	return timeout
}

// GetListenAddr 获取API监听地址
func (c *EngineConfig) GetListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ModuleEngine.API.Host, c.ModuleEngine.API.Port)
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	// General默认值
	if c.ModuleEngine.General.InstanceName == "" {
		c.ModuleEngine.General.InstanceName = "module-engine"
	}
	if c.ModuleEngine.General.LogLevel == "" {
		c.ModuleEngine.General.LogLevel = "info"
	}
	if c.ModuleEngine.General.Env == "" {
		c.ModuleEngine.General.Env = "dev"
	}

	// Database默认值
	if c.ModuleEngine.Storage.Database.Type == "" {
		c.ModuleEngine.Storage.Database.Type = "sqlite"
	}
	if c.ModuleEngine.Storage.Database.DSN == "" {
		c.ModuleEngine.Storage.Database.DSN = "module-engine.db"
	}
	if c.ModuleEngine.Storage.Database.MaxOpenConns <= 0 {
		c.ModuleEngine.Storage.Database.MaxOpenConns = 10
	}
	if c.ModuleEngine.Storage.Database.MaxIdleConns <= 0 {
		c.ModuleEngine.Storage.Database.MaxIdleConns = 5
	}
	if c.ModuleEngine.Storage.Database.ConnMaxLifetime <= 0 {
		c.ModuleEngine.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}
	if c.ModuleEngine.Storage.Database.ConnMaxIdleTime <= 0 {
		c.ModuleEngine.Storage.Database.ConnMaxIdleTime = 1 * time.Hour
	}

	// Execution默认值
	if c.ModuleEngine.Execution.MaxWorkers <= 0 {
		c.ModuleEngine.Execution.MaxWorkers = 10
	}
	if c.ModuleEngine.Execution.StepTimeout <= 0 {
		c.ModuleEngine.Execution.StepTimeout = 5 * time.Minute
	}
	if c.ModuleEngine.Execution.ShutdownTimeout <= 0 {
		c.ModuleEngine.Execution.ShutdownTimeout = 30 * time.Second
	}
	if c.ModuleEngine.Execution.BulkMaxConcurrency <= 0 {
		c.ModuleEngine.Execution.BulkMaxConcurrency = 4
	}

	// Retention默认值
	if c.ModuleEngine.Retention.CronSpec == "" {
		c.ModuleEngine.Retention.CronSpec = "0 3 * * *"
	}
	if c.ModuleEngine.Retention.WorkflowTTL <= 0 {
		c.ModuleEngine.Retention.WorkflowTTL = 7 * 24 * time.Hour
	}
	if c.ModuleEngine.Retention.ErrorTTL <= 0 {
		c.ModuleEngine.Retention.ErrorTTL = 30 * 24 * time.Hour
	}

	// API默认值
	if c.ModuleEngine.API.Host == "" {
		c.ModuleEngine.API.Host = "0.0.0.0"
	}
	if c.ModuleEngine.API.Port <= 0 {
		c.ModuleEngine.API.Port = 8080
	}
	if c.ModuleEngine.API.GinMode == "" {
		c.ModuleEngine.API.GinMode = "release"
	}
	if c.ModuleEngine.API.BasePath == "" {
		c.ModuleEngine.API.BasePath = "/api/v1"
	}

	// Notifications默认值
	if len(c.ModuleEngine.Notifications.Events) == 0 {
		c.ModuleEngine.Notifications.Events = []string{
			"workflow.step.failed",
			"workflow.completed",
		}
	}
}

// Validate 校验配置合法性
func (c *EngineConfig) Validate() error {
	switch c.ModuleEngine.Storage.Database.Type {
	case "sqlite", "mysql", "postgres", "postgresql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.ModuleEngine.Storage.Database.Type)
	}
	if c.ModuleEngine.API.Port < 0 || c.ModuleEngine.API.Port > 65535 {
		return fmt.Errorf("非法的API端口: %d", c.ModuleEngine.API.Port)
	}
	return nil
}
