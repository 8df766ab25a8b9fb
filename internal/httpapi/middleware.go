package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ownerKey = "docrender.owner"

// requireOwner rejects requests without an owner header.
func (s *Server) requireOwner(c *gin.Context) {
	owner := strings.TrimSpace(c.GetHeader(s.ownerHeader))
	if owner == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
			Error:   "unauthorized",
			Message: "missing " + s.ownerHeader + " header",
		})
		return
	}
	c.Set(ownerKey, owner)
	c.Next()
}

// ownerOf returns the owner set by requireOwner, or the raw header on
// routes where ownership is optional.
func (s *Server) ownerOf(c *gin.Context) string {
	if owner := c.GetString(ownerKey); owner != "" {
		return owner
	}
	return strings.TrimSpace(c.GetHeader(s.ownerHeader))
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		code := c.Writer.Status()

		if s.observer != nil {
			s.observer.ObserveRequest(c.Request.Method, route, code, elapsed)
		}
		if route == "/healthz" || route == "/metrics" {
			return
		}
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", code),
			zap.Duration("latency", elapsed),
			zap.Int("bytes", c.Writer.Size()))
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		s.logger.Error("handler panic",
			zap.Any("panic", rec),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Error:   "internal",
			Message: "internal server error",
		})
	})
}
