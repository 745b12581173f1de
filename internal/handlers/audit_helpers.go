package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"realtime-chat/internal/observability"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(observability.RequestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader(observability.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(observability.RequestIDContextKey, requestID)
	return requestID
}

// userIDFromContext returns the authenticated user id, or zero for anonymous
// requests.
func userIDFromContext(c *gin.Context) int {
	if val, ok := c.Get("userID"); ok {
		if userID, ok := val.(int); ok {
			return userID
		}
	}

	if header := c.GetHeader("X-User-ID"); header != "" {
		if parsed, err := strconv.Atoi(header); err == nil {
			return parsed
		}
	}

	return 0
}
