package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterConfig collects what NewRouter needs besides the backend.
type RouterConfig struct {
	JwtSecret    string
	AuthDisabled bool
	CORSOrigins  []string
	LoginRPM     int
	// RateLimitRedis shares login rate limits across replicas when set.
	RateLimitRedis *redis.Client
	// ServiceName enables otelgin spans when non-empty.
	ServiceName string
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// NewRouter wires middleware and routes around h.
func NewRouter(h *Handlers, rc RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if rc.ServiceName != "" {
		router.Use(otelgin.Middleware(rc.ServiceName))
	}
	router.Use(MetricsMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(corsConfig(rc.CORSOrigins)))

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
		defer cancel()
		if err := h.backend.Ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRoutes := router.Group("/")
	authRoutes.Use(RedisRateLimitMiddleware(rc.RateLimitRedis, rc.LoginRPM))
	{
		authRoutes.POST("/login", h.Login)
		authRoutes.POST("/signin", h.Signin)
	}

	protected := router.Group("/")
	protected.Use(AuthMiddleware(rc.JwtSecret, rc.AuthDisabled))
	{
		protected.GET("/tasks", h.GetAllTasks)
		protected.POST("/task", h.CreateTask)
		protected.POST("/tasks/bulk", h.BulkCreateTasks)
	}

	router.NoRoute(func(c *gin.Context) { abortWithError(c, http.StatusNotFound, "") })
	return router
}
