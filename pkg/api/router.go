package api

import (
	"github.com/gin-gonic/gin"

	"github.com/LENAX/module-engine/pkg/api/handler"
	"github.com/LENAX/module-engine/pkg/api/middleware"
	"github.com/LENAX/module-engine/pkg/core/bulk"
	"github.com/LENAX/module-engine/pkg/core/engine"
)

// SetupRouter 设置路由
func SetupRouter(eng engine.WorkflowEngine, bulkCoordinator bulk.Coordinator, version string) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	// 创建handlers
	workflowHandler := handler.NewWorkflowHandler(eng)
	bulkHandler := handler.NewBulkHandler(bulkCoordinator)
	errorsHandler := handler.NewErrorsHandler(eng.Classifier())
	eventsHandler := handler.NewEventsHandler(eng.Bus())
	healthHandler := handler.NewHealthHandler(version)

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// 工作流路由
		workflows := v1.Group("/workflows")
		{
			workflows.GET("", workflowHandler.List)
			workflows.POST("", workflowHandler.Create)
			workflows.GET("/:id", workflowHandler.Get)
			workflows.POST("/:id/advance", workflowHandler.Advance)
			workflows.POST("/:id/run", workflowHandler.Run)
			workflows.POST("/:id/rollback", workflowHandler.Rollback)
			workflows.POST("/:id/cancel", workflowHandler.Cancel)
		}

		// 批量操作路由
		bulkGroup := v1.Group("/bulk")
		{
			bulkGroup.POST("", bulkHandler.Start)
			bulkGroup.GET("/:id", bulkHandler.Get)
			bulkGroup.POST("/:id/cancel", bulkHandler.Cancel)
		}

		// 错误历史与恢复路由
		errorsGroup := v1.Group("/errors")
		{
			errorsGroup.GET("", errorsHandler.List)
			errorsGroup.GET("/:id", errorsHandler.Get)
			errorsGroup.POST("/:id/recover", errorsHandler.Recover)
		}

		// 事件流路由
		v1.GET("/events/stream", eventsHandler.Stream)
	}

	return router
}
