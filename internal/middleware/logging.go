package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

const (
	// LoggerKey holds the request-scoped logger in the gin context.
	LoggerKey = "logger"
	// RiderIDKey holds the id of the rider the request acts for.
	RiderIDKey = "rider_id"
	// ErrorCodeKey holds the fault code a handler failed with.
	ErrorCodeKey = "error_code"
)

// Logging attaches a request-scoped logger carrying the trace ids and logs
// one line per request. Failed requests log at warn (4xx) or error (5xx)
// with the fault code the handler reported.
func Logging(baseLogger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		sc := trace.SpanFromContext(c.Request.Context()).SpanContext()
		logger := baseLogger.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
		)
		c.Set(LoggerKey, logger)

		c.Next()

		level := slog.LevelInfo
		switch status := c.Writer.Status(); {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.Int("size", c.Writer.Size()),
		}
		if code := c.GetString(ErrorCodeKey); code != "" {
			attrs = append(attrs, slog.String("error_code", code))
		}
		// Handlers may have replaced the logger once the rider was known.
		GetLogger(c).LogAttrs(c.Request.Context(), level, "request completed", attrs...)
	}
}

// GetLogger returns the request-scoped logger, or the default logger outside
// of a request.
func GetLogger(c *gin.Context) *slog.Logger {
	if logger, exists := c.Get(LoggerKey); exists {
		return logger.(*slog.Logger)
	}
	return slog.Default()
}

// SetRider records the rider a request acts for. Later log lines of the
// request, including the completion line, carry rider_id.
func SetRider(c *gin.Context, riderID string) {
	c.Set(RiderIDKey, riderID)
	c.Set(LoggerKey, GetLogger(c).With(slog.String("rider_id", riderID)))
}

// SetErrorCode records the fault code of a failed request for logs, metrics
// and traces.
func SetErrorCode(c *gin.Context, code string) {
	c.Set(ErrorCodeKey, code)
}
