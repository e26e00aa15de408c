/**
 * API 路由注册
 * @author: sun977
 * @date: 2025.11.16
 * @description: 统一创建 gin 引擎、全局中间件与路由分组
 */
package router

import (
	"github.com/gin-gonic/gin"

	"reconledger/internal/app/api/middleware"
	"reconledger/internal/config"
	reconHandler "reconledger/internal/handler/recon"
	"reconledger/internal/pkg/logger"
)

// APIPrefix 业务路由前缀
const APIPrefix = "/api/v1"

// Router API 路由器
type Router struct {
	engine  *gin.Engine
	config  *config.ServerConfig
	handler *reconHandler.Handler

	authMiddleware      *middleware.AuthMiddleware
	loggingMiddleware   *middleware.LoggingMiddleware
	rateLimitMiddleware *middleware.RateLimitMiddleware
}

// NewRouter 创建路由器
func NewRouter(cfg *config.ServerConfig, handler *reconHandler.Handler) *Router {
	if cfg == nil {
		cfg = &config.ServerConfig{Mode: gin.ReleaseMode, RateLimit: middleware.DefaultRequestsPerMinute}
	}
	switch cfg.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	// 直接暴露时不信任任何转发头，限流按连接来源 IP 计
	if err := engine.SetTrustedProxies(nil); err != nil {
		logger.Warnf("failed to reset trusted proxies: %v", err)
	}

	r := &Router{
		engine:  engine,
		config:  cfg,
		handler: handler,
	}
	r.initMiddleware()
	r.registerRoutes()
	return r
}

// initMiddleware 初始化中间件
func (r *Router) initMiddleware() {
	r.authMiddleware = middleware.NewAuthMiddleware(&middleware.AuthConfig{
		APIKey: r.config.APIKey,
	})
	r.loggingMiddleware = middleware.NewLoggingMiddleware("/health", "/ping")
	r.rateLimitMiddleware = middleware.NewRateLimitMiddleware(&middleware.RateLimitConfig{
		RequestsPerMinute: r.config.RateLimit,
	})
}

// registerRoutes 注册路由
func (r *Router) registerRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(r.loggingMiddleware.Handler())
	r.engine.Use(r.rateLimitMiddleware.Handler())

	r.registerHealthRoutes()

	api := r.engine.Group(APIPrefix)
	api.Use(r.authMiddleware.Handler())
	r.registerReconRoutes(api)
}

// Engine 返回 gin 引擎
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
