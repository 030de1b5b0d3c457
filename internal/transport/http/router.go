package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xinicimail/backend/internal/config"
	"xinicimail/backend/internal/edge"
	"xinicimail/backend/internal/middleware"
	"xinicimail/backend/internal/monitoring"
	"xinicimail/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	MailboxService *service.MailboxService
	InboundHandler *edge.Handler       // 仅边缘进程提供，为 nil 时不注册 /api/inbound
	Metrics        *monitoring.Metrics // 为 nil 时不暴露 /metrics
	Health         http.Handler        // 挂载在 /health 下
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(middleware.RecoveryHandler(logger, deps.Metrics))
	router.Use(middleware.RequestLogger(logger.Named("http")))
	router.Use(middleware.SecurityHeaders())
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 允许所有来源时不能携带凭证
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowOrigins = nil
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		mailboxes: deps.MailboxService,
		inbound:   deps.InboundHandler,
	}

	if deps.Health != nil {
		router.GET("/health/live", gin.WrapH(deps.Health))
		router.GET("/health/ready", gin.WrapH(deps.Health))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	api := router.Group("/api")
	{
		api.GET("/messages", handler.listMessages)
		api.GET("/read", handler.readMessage)
		api.GET("/status", handler.status)

		if deps.InboundHandler != nil {
			api.POST("/inbound",
				middleware.BearerToken(deps.Config.Edge.InboundToken, logger.Named("inbound")),
				middleware.BodySizeLimit(deps.Config.Edge.MaxMessageBytes),
				handler.receiveInbound,
			)
		}
	}

	router.NoRoute(notFound)
	return router
}
