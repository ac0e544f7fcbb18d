// Package logging builds the application's zap logger and the gin
// access-log middleware that rides on top of it.
package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/globeco/order-submission-service/internal/middleware"
)

// New builds a zap.Logger for the given environment: console-encoded,
// debug-level development output, or JSON-encoded, info-level
// production output.
func New(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// AccessLog logs one entry per request at info level (warn for 4xx,
// error for 5xx), carrying the request's correlation id so a 503 body
// can be matched back to the log line that explains it.
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zapcore.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("correlationId", middleware.CorrelationID(c)),
			zap.String("clientIP", c.ClientIP()),
		}

		switch {
		case status >= 500:
			logger.Error("request completed", fields...)
		case status >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}
