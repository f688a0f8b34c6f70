package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger writes one "request" record per request once the handlers return.
// The record goes through the request context, so context attributes such
// as request_id are kept when log uses logger.ContextMiddleware.
func Logger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		log.LogAttrs(c.Request.Context(), levelFor(status), "request", accessAttrs(c, status, time.Since(start))...)
	}
}

func accessAttrs(c *gin.Context, status int, latency time.Duration) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", status),
		slog.Duration("latency", latency),
		slog.Int("size", c.Writer.Size()),
		slog.String("client_ip", c.ClientIP()),
	}
	if route := c.FullPath(); route != "" && route != c.Request.URL.Path {
		attrs = append(attrs, slog.String("route", route))
	}
	if len(c.Errors) > 0 {
		attrs = append(attrs, slog.String("errors", c.Errors.String()))
	}
	return attrs
}

// levelFor maps server errors to Error and client errors to Warn.
func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
