package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"portwatch/metrics"
)

// callerKey is the gin context key holding the caller id.
const callerKey = "portwatch.caller_id"

// CallerIDHeader names the header the default identity provider trusts.
const CallerIDHeader = "X-Caller-ID"

// IdentityProvider derives a caller id from a request. The id only tags
// export records; an empty id is an anonymous caller.
type IdentityProvider interface {
	CallerID(r *http.Request) string
}

// HeaderIdentity reads X-Caller-ID, falling back to a digest of a bearer
// token so raw tokens never reach the history store.
type HeaderIdentity struct{}

// CallerID implements IdentityProvider.
func (HeaderIdentity) CallerID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(CallerIDHeader)); id != "" {
		return id
	}
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(sum[:8])
}

// IdentityMiddleware stores the caller id on the gin context.
func IdentityMiddleware(provider IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(callerKey, provider.CallerID(c.Request))
		c.Next()
	}
}

func callerID(c *gin.Context) string {
	return c.GetString(callerKey)
}

// RequestLoggingMiddleware emits structured logs for every HTTP request.
func RequestLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		logger.Log(c.Request.Context(), level, "request completed",
			"client_ip", c.ClientIP(),
			"caller_id", callerID(c),
			"method", c.Request.Method,
			"path", routeOf(c),
			"status_code", status,
			"latency_ms", float64(latency)/float64(time.Millisecond),
			"user_agent", c.Request.UserAgent(),
		)
	}
}

// MetricsMiddleware records request counts and latencies per route.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func routeOf(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

// RateLimitMiddleware enforces a per-IP request limit backed by Redis.
// Requests are let through when Redis is unavailable.
func RateLimitMiddleware(client *redis.Client, limit int64, window time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		key := fmt.Sprintf("portwatch:ratelimit:%s", c.ClientIP())
		pipe := client.TxPipeline()
		counter := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Error("rate limiter redis error", "error", err)
			c.Next()
			return
		}

		if counter.Val() > limit {
			logger.Warn("rate limit exceeded", "client_ip", c.ClientIP(), "count", counter.Val())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// SecurityHeadersMiddleware adds standard security headers to each response.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		headers := c.Writer.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'")
		c.Next()
	}
}
