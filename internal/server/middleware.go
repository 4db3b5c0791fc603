package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			config.AllowAllOrigins = true
		}
	}
	if !config.AllowAllOrigins {
		config.AllowOrigins = allowedOrigins
		if len(allowedOrigins) == 0 {
			config.AllowAllOrigins = true
		}
	}
	return cors.New(config)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		}
		if member, ok := c.Get(memberContextKey); ok {
			if resolved, ok := member.(users.Member); ok {
				fields = append(fields, zap.String("user_id", resolved.UserID))
			}
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("http request", fields...)
			return
		}
		logger.Info("http request", fields...)
	}
}
