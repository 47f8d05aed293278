package router

import (
	"bluegreen-cd/internal/api/handler"
	"bluegreen-cd/internal/api/middleware"
	"bluegreen-cd/internal/pkg/config"
	"bluegreen-cd/internal/service"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Setup 设置路由
func Setup(cfg *config.Config) *gin.Engine {
	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger API 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 获取数据库连接
	db := cfg.DB.(*gorm.DB)

	// 初始化Service
	targetService := service.NewTargetService(db)
	deployService := service.NewDeployService(db, cfg)
	approvalService := service.NewApprovalService(db)

	// 初始化Handler
	targetHandler := handler.NewTargetHandler(targetService)
	attemptHandler := handler.NewAttemptHandler(deployService)
	approvalHandler := handler.NewApprovalHandler(approvalService)
	authHandler := handler.NewAuthHandler()

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 只读查询(无需token)
		v1.GET("/targets", targetHandler.List)
		v1.GET("/target/:id", targetHandler.GetByID)
		v1.GET("/target/:id/attempts", targetHandler.History)
		v1.GET("/attempt/:attempt_id", attemptHandler.GetByAttemptID)
		v1.GET("/approval/:attempt_id", approvalHandler.Get)

		// Token刷新(凭refresh token本身认证)
		v1.POST("/auth/refresh", authHandler.Refresh)

		// 需要认证的路由
		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware())
		{
			// 目标管理
			authed.POST("/target", targetHandler.Create)

			// 审批操作(记录审批人)
			authed.POST("/approval/:attempt_id/decide", approvalHandler.Decide)
		}
	}

	return r
}
