package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Next()
	}
}

// requestID tags each request with a ULID unless the caller sent one.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = s.ids.Next()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// observe logs and measures each request.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		code := c.Writer.Status()
		if s.metrics != nil && endpoint != "/metrics" {
			s.metrics.Request(endpoint, code, elapsed)
		}
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("endpoint", endpoint),
			zap.Int("code", code),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", c.GetString("request_id")))
	}
}

// requireJSON rejects bodies that are not JSON with 415 and callers that
// will not accept JSON with 406. It also caps the body size.
func requireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.ContentType() != gin.MIMEJSON {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType,
				gin.H{"error": "content type must be " + gin.MIMEJSON})
			return
		}
		if c.GetHeader("Accept") != "" && c.NegotiateFormat(gin.MIMEJSON) == "" {
			c.AbortWithStatusJSON(http.StatusNotAcceptable,
				gin.H{"error": "response is only available as " + gin.MIMEJSON})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	}
}
