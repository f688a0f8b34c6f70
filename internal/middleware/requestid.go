package middleware

import (
	"log/slog"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/simp-lee/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// upstreamID is what a reused X-Request-ID must look like.
var upstreamID = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

type RequestIDConfig struct {
	// TrustUpstream reuses a well-formed incoming X-Request-ID.
	TrustUpstream bool
}

// RequestID tags each request with a new UUID. The id is readable with
// GetRequestID, returned in the X-Request-ID header and added to the
// request context with logger.WithContextAttrs.
func RequestID() gin.HandlerFunc {
	return RequestIDWithConfig(RequestIDConfig{})
}

func RequestIDWithConfig(cfg RequestIDConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := cfg.pick(c.GetHeader(requestIDHeader))
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(
			logger.WithContextAttrs(c.Request.Context(), slog.String(requestIDKey, id)),
		)
		c.Next()
	}
}

func (cfg RequestIDConfig) pick(upstream string) string {
	if cfg.TrustUpstream && upstreamID.MatchString(upstream) {
		return upstream
	}
	return uuid.NewString()
}

// GetRequestID returns the id RequestID stored on c, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
