package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inboxrelay/backend/internal/config"
	"inboxrelay/backend/internal/engine"
	"inboxrelay/backend/internal/gate"
	"inboxrelay/backend/internal/health"
	"inboxrelay/backend/internal/middleware"
	"inboxrelay/backend/internal/monitoring"
	"inboxrelay/backend/internal/registry"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config   *config.Config
	Engine   *engine.Engine
	Gate     *gate.AccessGate
	Registry *registry.SessionRegistry
	Metrics  *monitoring.Metrics
	Health   *health.Checker
	Logger   *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(1 * 1024 * 1024))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Operator-Token"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	handler := NewHandler(deps.Engine, deps.Gate, deps.Registry)
	adminHandler := NewAdminHandler(deps.Engine, deps.Gate)

	// 创建中间件
	operatorAuth := middleware.NewOperatorAuth(deps.Config.Admin.Token)

	// 健康检查与指标
	if deps.Health != nil {
		router.GET("/healthz/live", gin.WrapH(deps.Health.LiveHandler()))
		router.GET("/healthz/ready", gin.WrapH(deps.Health.ReadyHandler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// ========== Subscriber Routes ==========
	api := router.Group("/api")
	{
		subscriberRoutes := api.Group("/subscribers")
		{
			subscriberRoutes.POST("", handler.register)                     // 登记订阅者（进入待审批）
			subscriberRoutes.GET("/:id/session", handler.getSession)        // 查询当前邮箱会话
			subscriberRoutes.POST("/:id/mailbox", handler.createMailbox)    // 申请新的临时邮箱
			subscriberRoutes.POST("/:id/refresh", handler.refresh)          // 按需触发一次轮询
		}
	}

	// ========== Admin Routes ==========
	adminRoutes := router.Group("/admin")
	adminRoutes.Use(operatorAuth.RequireOperator()) // 所有管理路由都需要操作员令牌
	{
		adminRoutes.GET("/subscribers/pending", adminHandler.listPending)  // 待审批列表
		adminRoutes.POST("/subscribers/:id/approve", adminHandler.approve) // 批准
		adminRoutes.POST("/subscribers/:id/reject", adminHandler.reject)   // 拒绝
		adminRoutes.POST("/subscribers/:id/remove", adminHandler.remove)   // 移除并清退
	}

	return router
}
