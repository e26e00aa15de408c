/**
 * 限流中间件
 * @author: sun977
 * @date: 2025.11.16
 * @description: 按客户端 IP 的令牌桶限流，默认每分钟 60 次
 */
package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"reconledger/internal/core/model"
	"reconledger/internal/pkg/logger"
)

// DefaultRequestsPerMinute 默认每客户端每分钟请求数
const DefaultRequestsPerMinute = 60

// 空闲超过该时长的桶在下次清理时移除
const idleBucketTTL = 10 * time.Minute

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RequestsPerMinute int      `json:"requests_per_minute"` // <=0 表示关闭限流
	Burst             int      `json:"burst"`               // 桶容量，默认等于每分钟请求数
	SkipPaths         []string `json:"skip_paths"`
}

// TokenBucketLimiter 令牌桶限流器
type TokenBucketLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // 每秒补充的令牌数
	lastRefill time.Time
}

// NewTokenBucketLimiter 创建满桶
func NewTokenBucketLimiter(perMinute, burst int) *TokenBucketLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &TokenBucketLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: float64(perMinute) / 60,
		lastRefill: time.Now(),
	}
}

// Allow 消耗一个令牌
func (t *TokenBucketLimiter) Allow() bool {
	return t.allowAt(time.Now())
}

func (t *TokenBucketLimiter) allowAt(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refill(now)
	if t.tokens >= 1 {
		t.tokens--
		return true
	}
	return false
}

func (t *TokenBucketLimiter) refill(now time.Time) {
	elapsed := now.Sub(t.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	t.tokens = math.Min(t.maxTokens, t.tokens+elapsed*t.refillRate)
	t.lastRefill = now
}

// Remaining 剩余整数令牌
func (t *TokenBucketLimiter) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.tokens)
}

// RetryAfter 获得下一个令牌需要等待的时长
func (t *TokenBucketLimiter) RetryAfter() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tokens >= 1 || t.refillRate <= 0 {
		return 0
	}
	return time.Duration((1 - t.tokens) / t.refillRate * float64(time.Second))
}

func (t *TokenBucketLimiter) idleSince(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.lastRefill)
}

// RateLimitMiddleware 限流中间件
type RateLimitMiddleware struct {
	config      *RateLimitConfig
	mu          sync.Mutex
	limiters    map[string]*TokenBucketLimiter
	lastCleanup time.Time
}

// NewRateLimitMiddleware 创建限流中间件
func NewRateLimitMiddleware(config *RateLimitConfig) *RateLimitMiddleware {
	if config == nil {
		config = &RateLimitConfig{RequestsPerMinute: DefaultRequestsPerMinute}
	}
	if config.SkipPaths == nil {
		config.SkipPaths = []string{"/health", "/ping"}
	}
	return &RateLimitMiddleware{
		config:      config,
		limiters:    make(map[string]*TokenBucketLimiter),
		lastCleanup: time.Now(),
	}
}

// Handler 限流处理器
func (m *RateLimitMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.config.RequestsPerMinute <= 0 || m.shouldSkip(c.Request.URL.Path) {
			c.Next()
			return
		}

		client := ClientIP(c)
		limiter := m.getLimiter(client)

		c.Header("X-RateLimit-Limit", strconv.Itoa(m.config.RequestsPerMinute))
		if !limiter.Allow() {
			retry := int(math.Ceil(limiter.RetryAfter().Seconds()))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retry))
			logger.WithField("client_ip", client).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, model.Failure(http.StatusTooManyRequests, "rate limit exceeded", nil))
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining()))
		c.Next()
	}
}

func (m *RateLimitMiddleware) shouldSkip(path string) bool {
	for _, p := range m.config.SkipPaths {
		if path == p {
			return true
		}
	}
	return false
}

// getLimiter 获取或创建客户端的令牌桶，顺带清理长时间空闲的桶
func (m *RateLimitMiddleware) getLimiter(key string) *TokenBucketLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if now.Sub(m.lastCleanup) > idleBucketTTL {
		for k, l := range m.limiters {
			if l.idleSince(now) > idleBucketTTL {
				delete(m.limiters, k)
			}
		}
		m.lastCleanup = now
	}

	limiter, ok := m.limiters[key]
	if !ok {
		limiter = NewTokenBucketLimiter(m.config.RequestsPerMinute, m.config.Burst)
		m.limiters[key] = limiter
	}
	return limiter
}

// ClientIP 客户端 IP，IPv4-mapped 地址转为纯 IPv4
// 只信任 gin 的 ClientIP 结果（受 TrustedProxies 约束），不直接读取转发头
func ClientIP(c *gin.Context) string {
	raw := c.ClientIP()
	ip := net.ParseIP(raw)
	if ip == nil {
		return raw
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
