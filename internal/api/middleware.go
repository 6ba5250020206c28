package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scribe/internal/logging"
	"scribe/internal/services"
)

const requestIDKey = "request_id"

// requestLogger tags each request with an id, echoes it in X-Request-ID and
// logs the outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDKey, reqID)
		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), reqID))

		c.Next()

		logger := logging.WithContext(c.Request.Context(), s.logger)
		attrs := logging.Args(
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
			logging.String(logging.FieldEventType, "http_request"),
		)
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("http request failed", attrs...)
			return
		}
		logger.Debug("http request", attrs...)
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// statusFor maps the services error classes onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), ErrorResponse{Error: err.Error(), RequestID: requestID(c)})
}

func (s *Server) writeMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, RequestID: requestID(c)})
}

func (s *Server) unavailable(c *gin.Context, what string) {
	s.writeMessage(c, http.StatusServiceUnavailable, what+" is not available")
}
