package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/models"
)

type UserResolver interface {
	ResolveUser(ctx context.Context, token string) (models.User, error)
}

// AuthMiddleware validates the Authorization header and stores the caller's
// id under "userID".
func AuthMiddleware(users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ParseAuthorizationHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.RejectionFor(err).Reason})
			return
		}

		user, err := users.ResolveUser(c.Request.Context(), token)
		if err != nil {
			rejectErr := auth.RejectionFor(err)
			if rejectErr == nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": rejectErr.Reason})
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}
