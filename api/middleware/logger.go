package middleware

import (
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger emits one structured line per request; probe and scrape traffic logs at debug.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := map[string]interface{}{
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"latency_ms": latency.Milliseconds(),
			"ip":         c.ClientIP(),
		}

		if query != "" {
			fields["query"] = query
		}

		// Set on /alarms/:id and its history route.
		if alarmID := c.Param("id"); alarmID != "" {
			fields["alarm_id"] = alarmID
		}

		if traceID := GetTraceID(c); traceID != "" {
			fields["trace_id"] = traceID
		}

		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)

		switch {
		case status >= 500:
			entry.Error("server error")
		case status >= 400:
			entry.Warn("client error")
		case path == "/health/live" || path == "/metrics":
			entry.Debug("request completed")
		default:
			entry.Info("request completed")
		}
	}
}