package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDContextKey = "request_id"

// requestIDFromContext resolves the request id once per request: the incoming
// X-Request-ID header when present, a generated uuid otherwise.
func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// userIDFromContext reads the authenticated user set by the auth middleware.
// Nil when the route is unauthenticated.
func userIDFromContext(c *gin.Context) *int64 {
	userID := c.GetInt("userID")
	if userID == 0 {
		return nil
	}
	value := int64(userID)
	return &value
}
