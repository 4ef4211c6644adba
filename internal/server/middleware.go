package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// tenantKey is the gin context key holding the resolved tenant id.
const tenantKey = "tenant"

// loggerMiddleware logs incoming requests and outgoing responses
func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.logger.Debug("incoming request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("remote_addr", c.Request.RemoteAddr),
		)

		c.Next()

		s.logger.Debug("outgoing response",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
		)
	}
}

// recoveryMiddleware recovers from panics and returns 500 error
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
				)
				c.JSON(http.StatusInternalServerError, gin.H{
					"code":  "system_error",
					"error": "internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// corsMiddleware handles CORS configuration
func (s *Server) corsMiddleware() gin.HandlerFunc {
	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			for _, allowed := range origins {
				if allowed == "*" || allowed == origin {
					c.Header("Access-Control-Allow-Origin", allowed)
					c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Tenant-ID")
					break
				}
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// tenantMiddleware resolves the tenant for the request: X-Tenant-ID header
// first, then the host subdomain, then the configured default.
func (s *Server) tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(tenantKey, s.resolveTenant(c))
		c.Next()
	}
}

func (s *Server) resolveTenant(c *gin.Context) string {
	if header := c.GetHeader("X-Tenant-ID"); header != "" {
		return header
	}

	host := c.Request.Host
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if parts := strings.Split(host, "."); len(parts) > 2 {
		return parts[0]
	}

	return s.cfg.Server.DefaultTenant
}

func tenantFrom(c *gin.Context) string {
	return c.GetString(tenantKey)
}
