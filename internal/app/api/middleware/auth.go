/**
 * 认证中间件
 * @author: sun977
 * @date: 2025.11.16
 * @description: X-API-Key 认证，未配置密钥时不鉴权；健康检查类路径免认证
 */
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"reconledger/internal/core/model"
	"reconledger/internal/pkg/logger"
)

// DefaultAPIKeyHeader 默认认证头
const DefaultAPIKeyHeader = "X-API-Key"

// AuthConfig 认证配置
type AuthConfig struct {
	APIKey       string   `json:"api_key"`
	APIKeyHeader string   `json:"api_key_header"`
	SkipPaths    []string `json:"skip_paths"` // 跳过认证的路径
}

// AuthMiddleware 认证中间件
type AuthMiddleware struct {
	config *AuthConfig
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(config *AuthConfig) *AuthMiddleware {
	if config == nil {
		config = &AuthConfig{}
	}
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = DefaultAPIKeyHeader
	}
	if config.SkipPaths == nil {
		config.SkipPaths = []string{"/health", "/ping", "/version"}
	}
	return &AuthMiddleware{config: config}
}

// Handler 认证处理器
func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.config.APIKey == "" || m.shouldSkipAuth(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := c.GetHeader(m.config.APIKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(m.config.APIKey)) != 1 {
			reason := "invalid api key"
			if key == "" {
				reason = "missing api key"
			}
			logger.LogSecurityEvent("auth_failed", "medium", ClientIP(c), reason, map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.Failure(http.StatusUnauthorized, "unauthorized", nil))
			return
		}

		c.Next()
	}
}

// shouldSkipAuth 检查是否应该跳过认证
func (m *AuthMiddleware) shouldSkipAuth(path string) bool {
	for _, skip := range m.config.SkipPaths {
		if path == skip || strings.HasPrefix(path, skip+"/") {
			return true
		}
	}
	return false
}
