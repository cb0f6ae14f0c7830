package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Armour007/fast-tasks/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type ctxKey string

const requestIDKey ctxKey = "requestID"

// AuthMiddleware checks the JWT in the Authorization header. Both
// "Bearer <token>" and a bare token are accepted. disabled turns the
// check off for local runs and tests.
func AuthMiddleware(secret string, disabled bool) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if disabled {
			c.Next()
			return
		}
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			abortWithError(c, http.StatusUnauthorized, "Token not provided")
			return
		}
		token := header
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = strings.TrimSpace(parts[1])
		}
		claims, err := utils.ParseJWT(key, token)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "Token not valid")
			return
		}
		if uid, ok := claims["user_id"].(string); ok {
			c.Set("userID", uid)
		}
		if name, ok := claims["username"].(string); ok {
			c.Set("username", name)
		}
		c.Next()
	}
}

// RequestIDMiddleware ensures every request has an X-Request-ID. If absent, generate one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.New().String()
		}
		ctx := context.WithValue(c.Request.Context(), requestIDKey, rid)
		c.Request = c.Request.WithContext(ctx)
		c.Set("requestID", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// LoggerMiddleware writes one structured line per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
			"request_id": c.GetString("requestID"),
			"client_ip":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}

// Simple in-memory IP rate limiter (fixed window)
type clientWindow struct {
	count       int
	windowStart time.Time
}

type ipLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientWindow
	limit     int
	window    time.Duration
	lastPrune time.Time
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
	}
}

func (l *ipLimiter) allow(ip string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)
	cw, ok := l.clients[ip]
	if !ok || now.Sub(cw.windowStart) >= l.window {
		l.clients[ip] = &clientWindow{count: 1, windowStart: now}
		return true, 0
	}
	if cw.count < l.limit {
		cw.count++
		return true, 0
	}
	return false, l.window - now.Sub(cw.windowStart)
}

// prune drops expired windows, at most once per window.
func (l *ipLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < l.window {
		return
	}
	l.lastPrune = now
	for ip, cw := range l.clients {
		if now.Sub(cw.windowStart) >= l.window {
			delete(l.clients, ip)
		}
	}
}

func clientKey(c *gin.Context) string {
	ip := c.ClientIP()
	if net.ParseIP(ip) == nil {
		return "unknown"
	}
	return ip
}

// RateLimitMiddleware limits requests per client IP within one process.
func RateLimitMiddleware(limitPerMinute int) gin.HandlerFunc {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	limiter := newIPLimiter(limitPerMinute, time.Minute)
	return func(c *gin.Context) {
		ok, retryAfter := limiter.allow(clientKey(c), time.Now())
		if !ok {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			abortWithError(c, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
			return
		}
		c.Next()
	}
}

// RedisRateLimitMiddleware shares minute-window counters across api
// replicas. It falls back to the in-memory limiter when rc is nil or Redis
// is unreachable.
func RedisRateLimitMiddleware(rc *redis.Client, limitPerMinute int) gin.HandlerFunc {
	local := RateLimitMiddleware(limitPerMinute)
	if rc == nil {
		return local
	}
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	return func(c *gin.Context) {
		now := time.Now().UTC()
		key := fmt.Sprintf("rl:%s:%s:%s", c.FullPath(), clientKey(c), now.Format("200601021504"))
		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		defer cancel()

		n, err := rc.Incr(ctx, key).Result()
		if err != nil {
			local(c)
			return
		}
		if n == 1 {
			_ = rc.Expire(ctx, key, 61*time.Second).Err()
		}
		if int(n) > limitPerMinute {
			c.Header("Retry-After", "60")
			abortWithError(c, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
			return
		}
		c.Next()
	}
}
