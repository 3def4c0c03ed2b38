package app

import (
	"context"
	"fmt"
	"log"

	"github.com/LENAX/module-engine/internal/storage"
	"github.com/LENAX/module-engine/pkg/api"
	"github.com/LENAX/module-engine/pkg/config"
	"github.com/LENAX/module-engine/pkg/core/bulk"
	"github.com/LENAX/module-engine/pkg/core/engine"
	"github.com/LENAX/module-engine/pkg/core/events"
	"github.com/LENAX/module-engine/pkg/core/failure"
	"github.com/LENAX/module-engine/pkg/module"
	"github.com/LENAX/module-engine/pkg/plugin"
	pkgstorage "github.com/LENAX/module-engine/pkg/storage"
)

// App 模块引擎应用组装（内部使用）
// 按配置装配存储、引擎、批量协调器、保留策略和API服务器
type App struct {
	Config          *config.EngineConfig
	Store           pkgstorage.Store
	Engine          engine.WorkflowEngine
	BulkCoordinator bulk.Coordinator
	Manager         *module.Manager
	Plugins         plugin.Manager
	Pruner          *engine.RetentionPruner
	APIServer       *api.APIServer
}

// Options 应用组装参数（内部使用）
type Options struct {
	ConfigPath  string // 引擎配置文件路径
	CatalogPath string // 模块目录文件路径
	DataDir     string // 模块数据目录（staging/modules）
	Version     string // 版本号（注入API服务器）
	Host        string // 监听地址（覆盖配置文件，可为空）
	Port        int    // 监听端口（覆盖配置文件，0表示使用配置）
}

// New 组装应用（内部方法）
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if opts.Host != "" {
		cfg.ModuleEngine.API.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.ModuleEngine.API.Port = opts.Port
	}

	store, err := storage.NewStore(cfg.GetDatabaseType(), cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	catalog, err := module.LoadCatalog(opts.CatalogPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("加载模块目录失败: %w", err)
	}

	manager, err := module.NewManager(catalog, opts.DataDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("初始化模块管理器失败: %w", err)
	}

	registry, err := manager.Registry()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("构建操作注册表失败: %w", err)
	}

	bus, err := events.NewBus(cfg.ModuleEngine.General.LogLevel == "debug")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("初始化事件总线失败: %w", err)
	}

	classifier := failure.NewClassifier(failure.DefaultRules(), store)

	eng, err := engine.NewWorkflowEngine(engine.Options{
		Store:       store,
		Registry:    registry,
		Classifier:  classifier,
		Bus:         bus,
		MaxWorkers:  cfg.GetMaxWorkers(),
		StepTimeout: cfg.GetStepTimeout(),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("创建工作流引擎失败: %w", err)
	}

	bulkCoordinator, err := bulk.NewCoordinator(eng, catalog, bus, cfg.ModuleEngine.Execution.BulkMaxConcurrency)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("创建批量协调器失败: %w", err)
	}
	registerBulkActions(bulkCoordinator, manager)

	plugins, err := setupNotifications(cfg, bus)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("初始化通知插件失败: %w", err)
	}

	pruner, err := engine.NewRetentionPruner(store, classifier, engine.RetentionPolicy{
		CronSpec:     cfg.ModuleEngine.Retention.CronSpec,
		WorkflowTTL:  cfg.ModuleEngine.Retention.WorkflowTTL,
		ErrorTTL:     cfg.ModuleEngine.Retention.ErrorTTL,
		OnlyResolved: cfg.ModuleEngine.Retention.OnlyResolved,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("创建保留策略失败: %w", err)
	}

	apiServer := api.NewAPIServer(eng, bulkCoordinator, api.ServerConfig{
		Host:         cfg.ModuleEngine.API.Host,
		Port:         cfg.ModuleEngine.API.Port,
		ReadTimeout:  api.DefaultServerConfig().ReadTimeout,
		WriteTimeout: api.DefaultServerConfig().WriteTimeout,
	}, opts.Version)

	return &App{
		Config:          cfg,
		Store:           store,
		Engine:          eng,
		BulkCoordinator: bulkCoordinator,
		Manager:         manager,
		Plugins:         plugins,
		Pruner:          pruner,
		APIServer:       apiServer,
	}, nil
}

// setupNotifications 装配通知插件（内部方法）
// 通知未启用时返回空的插件管理器
func setupNotifications(cfg *config.EngineConfig, bus events.Bus) (plugin.Manager, error) {
	plugins := plugin.NewManager()
	notifications := cfg.ModuleEngine.Notifications
	if !notifications.Enabled {
		return plugins, nil
	}

	params := map[string]string{
		"smtp_host": notifications.Email.SMTPHost,
		"username":  notifications.Email.Username,
		"password":  notifications.Email.Password,
		"from":      notifications.Email.From,
		"to":        notifications.Email.To,
	}
	if notifications.Email.SMTPPort > 0 {
		params["smtp_port"] = fmt.Sprintf("%d", notifications.Email.SMTPPort)
	}
	if err := plugins.RegisterWithInit(plugin.NewEmailPlugin(), params); err != nil {
		return nil, err
	}

	for _, eventType := range notifications.Events {
		if err := plugins.Bind(plugin.Binding{
			PluginName: "email",
			Event:      events.EventType(eventType),
		}); err != nil {
			return nil, err
		}
	}
	if err := plugins.AttachBus(bus); err != nil {
		return nil, err
	}
	return plugins, nil
}

// registerBulkActions 注册批量操作的直接动作（内部方法）
func registerBulkActions(coordinator bulk.Coordinator, manager *module.Manager) {
	actions := map[bulk.Kind]bulk.ActionFunc{
		bulk.KindEnable:   manager.EnableModule,
		bulk.KindDisable:  manager.DisableModule,
		bulk.KindValidate: manager.ValidateModule,
		bulk.KindBackup:   manager.BackupModule,
		bulk.KindDelete:   manager.DeleteModule,
	}
	for kind, fn := range actions {
		if err := coordinator.RegisterAction(kind, fn); err != nil {
			log.Printf("⚠️ 注册批量动作失败: kind=%s, err=%v", kind, err)
		}
	}
}

// Start 启动应用（内部方法）
// 恢复非终态工作流、启动保留策略，API服务器在独立goroutine启动
func (a *App) Start(ctx context.Context) error {
	resumed, err := a.Engine.ResumeIncompleteWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("恢复工作流失败: %w", err)
	}
	if resumed > 0 {
		log.Printf("✅ 已恢复 %d 个非终态工作流", resumed)
	}

	if a.Config.ModuleEngine.Retention.Enabled {
		a.Pruner.Start()
	}

	if a.Config.ModuleEngine.API.Enabled {
		go func() {
			if err := a.APIServer.Start(); err != nil {
				log.Printf("API服务器错误: %v", err)
			}
		}()
	}
	return nil
}

// Stop 优雅关闭应用（内部方法）
func (a *App) Stop(ctx context.Context) error {
	if a.Config.ModuleEngine.API.Enabled {
		if err := a.APIServer.Shutdown(ctx); err != nil {
			log.Printf("关闭API服务器失败: %v", err)
		}
	}
	if a.Config.ModuleEngine.Retention.Enabled {
		a.Pruner.Stop()
	}
	if err := a.Engine.Shutdown(ctx); err != nil {
		log.Printf("关闭工作流引擎失败: %v", err)
	}
	if err := a.Engine.Bus().Close(); err != nil {
		log.Printf("关闭事件总线失败: %v", err)
	}
	return a.Store.Close()
}
