package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

type resolverFunc func(ctx context.Context, token string) (models.User, error)

func (f resolverFunc) ResolveUser(ctx context.Context, token string) (models.User, error) {
	return f(ctx, token)
}

func setupRouter(resolver resolverFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(resolver), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt("userID")})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	resolver := resolverFunc(func(_ context.Context, token string) (models.User, error) {
		switch token {
		case "good":
			return models.User{ID: 5}, nil
		case "ghost":
			return models.User{}, repositories.ErrUserNotFound
		case "broken":
			return models.User{}, errors.New("db down")
		default:
			return models.User{}, auth.ErrInvalidToken
		}
	})
	router := setupRouter(resolver)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer good", status: http.StatusOK, body: `{"user_id":5}`},
		{name: "missing", status: http.StatusUnauthorized, body: `{"error":"Missing authentication header"}`},
		{name: "scheme", header: "Token good", status: http.StatusUnauthorized, body: `{"error":"Invalid authentication scheme"}`},
		{name: "invalid", header: "Bearer bad", status: http.StatusUnauthorized, body: `{"error":"Invalid authentication token"}`},
		{name: "unknown user", header: "Bearer ghost", status: http.StatusUnauthorized, body: `{"error":"User not found"}`},
		{name: "store failure", header: "Bearer broken", status: http.StatusInternalServerError, body: `{"error":"failed to authenticate"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
			assert.True(t, json.Valid(rec.Body.Bytes()))
		})
	}
}
