package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

// TokenIssuer mints access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID int) (string, error)
}

// UserHandler serves account endpoints.
type UserHandler struct {
	userRepo repositories.UserRepository
	tokens   TokenIssuer
	audit    AuditEmitter
}

func NewUserHandler(userRepo repositories.UserRepository, tokens TokenIssuer, audit AuditEmitter) *UserHandler {
	return &UserHandler{userRepo: userRepo, tokens: tokens, audit: audit}
}

type userResponse struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{ID: user.ID, Name: user.Name, Email: user.Email, CreatedAt: user.CreatedAt}
}

// CreateUser registers an account.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required,min=1,max=100"`
		Email    string `json:"email" binding:"required,min=5,max=255"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.userRepo.GetUserByEmail(ctx, req.Email); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
		return
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user, err := h.userRepo.CreateUser(ctx, req.Name, req.Email, hash)
	if err != nil {
		if errors.Is(err, repositories.ErrEmailTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	if h.audit != nil {
		h.audit.Emit(ctx, "INFO", fmt.Sprintf("user %d registered", user.ID), requestIDFromContext(c), user.ID)
	}
	c.JSON(http.StatusCreated, newUserResponse(user))
}

// Login exchanges a JSON email/password pair for an access token.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.issueToken(c, req.Email, req.Password)
}

// Token is the form-encoded variant of Login; username carries the email.
func (h *UserHandler) Token(c *gin.Context) {
	var req struct {
		Username string `form:"username" binding:"required"`
		Password string `form:"password" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.issueToken(c, req.Username, req.Password)
}

func (h *UserHandler) issueToken(c *gin.Context, email, password string) {
	ctx := c.Request.Context()
	user, err := h.userRepo.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	if err != nil || !auth.CheckPassword(user.Password, password) {
		if h.audit != nil {
			h.audit.Emit(ctx, "WARN", "failed login", requestIDFromContext(c), 0)
		}
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect email or password"})
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// Me returns the authenticated user.
func (h *UserHandler) Me(c *gin.Context) {
	h.writeUser(c, c.GetInt("userID"))
}

// GetUser returns a user by id.
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	h.writeUser(c, userID)
}

func (h *UserHandler) writeUser(c *gin.Context, userID int) {
	user, err := h.userRepo.GetUser(c.Request.Context(), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}
