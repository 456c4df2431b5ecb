// Package httpops is the operational HTTP surface: liveness and readiness
// probes, Prometheus metrics, and a small read-only inspection API for group
// policies and restriction history. It is not exposed to end users; the chat
// platform side of the service speaks through the gateway, not HTTP.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. Rate limiter on the inspection API
package httpops

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
)

// RequestID attaches (or propagates) a correlation identifier per request.
// An incoming X-Request-ID is reused; otherwise a fresh UUID is generated.
// The ID is echoed on the response and stored in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes a structured access log per request. Level follows outcome:
// error for 5xx or collected Gin errors, warn for 4xx, info otherwise.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := c.Writer.Status()
		ev := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery intercepts panics, logs a stack trace, and returns a JSON 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				log.Error().
					Interface("panic", rec).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// asString converts a context value to a string, empty when not a string.
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
