// Package middleware holds gin middleware shared across the HTTP
// surface: request correlation. The access-log middleware lives in the
// logging package.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader is the header callers may supply and that every
// response carries back, so a 5xx body's correlation id can be grepped
// straight out of logs.
const CorrelationIDHeader = "X-Correlation-ID"

// correlationIDKey is the gin context key RequestID stores under.
const correlationIDKey = "correlation_id"

// RequestID assigns each request a correlation id, reusing one supplied
// by the caller so a request can be traced across service boundaries.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(correlationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// CorrelationID returns the id RequestID attached to c, or "" if the
// middleware was never installed.
func CorrelationID(c *gin.Context) string {
	v, ok := c.Get(correlationIDKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}
