package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	docrender "github.com/alnah/go-docrender"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps an error category to its HTTP status.
func statusFor(cat docrender.Category) int {
	switch cat {
	case docrender.CategoryNotFound:
		return http.StatusNotFound
	case docrender.CategoryInvalidInput:
		return http.StatusBadRequest
	case docrender.CategoryUploadFailed:
		return http.StatusBadGateway
	case docrender.CategoryTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the classified error and logs the full chain.
// Internal errors are not echoed to the client.
func (s *Server) fail(c *gin.Context, err error) {
	cat := docrender.Classify(err)
	status := statusFor(cat)

	fields := []zap.Field{
		zap.String("route", c.FullPath()),
		zap.String("owner", s.ownerOf(c)),
		zap.String("category", cat.String()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Warn("request failed", fields...)
	}

	msg := err.Error()
	if cat == docrender.CategoryInternal {
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: cat.String(), Message: msg})
}

// badRequest rejects a malformed request before it reaches the pipeline.
func (s *Server) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error:   docrender.CategoryInvalidInput.String(),
		Message: msg,
	})
}
