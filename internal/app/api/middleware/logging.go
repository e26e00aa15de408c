package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"reconledger/internal/pkg/logger"
)

// LoggingMiddleware 访问日志
type LoggingMiddleware struct {
	skipPaths map[string]bool
}

// NewLoggingMiddleware 创建访问日志中间件，skipPaths 中的路径不记录
func NewLoggingMiddleware(skipPaths ...string) *LoggingMiddleware {
	m := &LoggingMiddleware{skipPaths: make(map[string]bool, len(skipPaths))}
	for _, p := range skipPaths {
		m.skipPaths[p] = true
	}
	return m
}

// Handler 日志处理器
func (m *LoggingMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m.skipPaths[c.Request.URL.Path] {
			return
		}
		logger.LogAccessRequest(c, start)
	}
}
