package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/mocks"
	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

func setupUserRouter(t *testing.T, userRepo *mocks.UserRepositoryMock, audit AuditEmitter) (*gin.Engine, *auth.TokenManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens, err := auth.NewTokenManager("secret", "HS256", time.Hour)
	require.NoError(t, err)

	handler := NewUserHandler(userRepo, tokens, audit)
	r := gin.New()
	r.POST("/users", handler.CreateUser)
	r.POST("/users/login", handler.Login)
	r.POST("/users/token", handler.Token)
	r.GET("/users/me", func(c *gin.Context) {
		c.Set("userID", 4)
		c.Next()
	}, handler.Me)
	r.GET("/users/:user_id", handler.GetUser)
	return r, tokens
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateUser(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	audit := &recordingAudit{}
	router, _ := setupUserRouter(t, userRepo, audit)

	userRepo.On("GetUserByEmail", mock.Anything, "ann@example.com").Return(nil, repositories.ErrUserNotFound).Once()
	userRepo.On("CreateUser", mock.Anything, "ann", "ann@example.com", mock.MatchedBy(func(hash string) bool {
		return auth.CheckPassword(hash, "password123")
	})).Return(models.User{ID: 4, Name: "ann", Email: "ann@example.com"}, nil).Once()

	rec := postJSON(router, "/users", `{"name":"ann","email":"ann@example.com","password":"password123"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, float64(4), resp["id"])
	assert.NotContains(t, resp, "password")
	require.Len(t, audit.calls, 1)
	assert.Equal(t, 4, audit.calls[0].userID)
	userRepo.AssertExpectations(t)
}

func TestCreateUserRejects(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	router, _ := setupUserRouter(t, userRepo, nil)

	userRepo.On("GetUserByEmail", mock.Anything, "dup@example.com").Return(models.User{ID: 1}, nil).Once()

	rec := postJSON(router, "/users", `{"name":"dup","email":"dup@example.com","password":"password123"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Email already registered"}`, rec.Body.String())

	rec = postJSON(router, "/users", `{"name":"short","email":"s@example.com","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	userRepo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginIssuesToken(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	router, tokens := setupUserRouter(t, userRepo, nil)

	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	userRepo.On("GetUserByEmail", mock.Anything, "ann@example.com").Return(models.User{ID: 4, Password: hash}, nil)

	rec := postJSON(router, "/users/login", `{"email":"ann@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "bearer", resp.TokenType)
	userID, err := tokens.ParseSubject(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, 4, userID)

	form := url.Values{"username": {"ann@example.com"}, "password": {"password123"}}
	req := httptest.NewRequest(http.MethodPost, "/users/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	audit := &recordingAudit{}
	router, _ := setupUserRouter(t, userRepo, audit)

	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	userRepo.On("GetUserByEmail", mock.Anything, "ann@example.com").Return(models.User{ID: 4, Password: hash}, nil).Once()
	userRepo.On("GetUserByEmail", mock.Anything, "nobody@example.com").Return(nil, repositories.ErrUserNotFound).Once()

	rec := postJSON(router, "/users/login", `{"email":"ann@example.com","password":"wrong-password"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = postJSON(router, "/users/login", `{"email":"nobody@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Incorrect email or password"}`, rec.Body.String())

	require.Len(t, audit.calls, 2)
	assert.Equal(t, "WARN", audit.calls[0].level)
}

func TestGetUserAndMe(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	router, _ := setupUserRouter(t, userRepo, nil)

	userRepo.On("GetUser", mock.Anything, 4).Return(models.User{ID: 4, Name: "ann", Email: "ann@example.com"}, nil).Twice()
	userRepo.On("GetUser", mock.Anything, 5).Return(nil, repositories.ErrUserNotFound).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/4", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp userResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ann", resp.Name)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/5", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	userRepo.AssertExpectations(t)
}
