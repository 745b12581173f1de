package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

const (
	defaultChatPageSize    = 100
	defaultMessagePageSize = 50
)

// AuditEmitter records audit_log entries. *telemetry.AuditEmitter satisfies it.
type AuditEmitter interface {
	Emit(ctx context.Context, level, text, requestID string, userID int)
}

// ChatHandler manages chat endpoints.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	audit       AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, audit AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		audit:       audit,
	}
}

type chatResponse struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Type           models.ChatType `json:"type"`
	ParticipantIDs []int           `json:"participant_ids"`
	CreatorID      *int            `json:"creator_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func newChatResponse(chat models.Chat) chatResponse {
	return chatResponse{
		ID:             chat.ID,
		Name:           chat.Name,
		Type:           chat.Type,
		ParticipantIDs: chat.ParticipantIDs(),
		CreatorID:      chat.CreatorID,
		CreatedAt:      chat.CreatedAt,
	}
}

type pageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

func bindPage(c *gin.Context, defaultLimit int) (pageQuery, bool) {
	var page pageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return page, false
	}
	if page.Limit == 0 {
		page.Limit = defaultLimit
	}
	return page, true
}

// CreateChat creates a personal or group chat after checking that every
// referenced user exists.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		Name           string          `json:"name" binding:"required,min=1,max=255"`
		Type           models.ChatType `json:"type" binding:"required,oneof=personal group"`
		ParticipantIDs []int           `json:"participant_ids" binding:"required,min=2"`
		CreatorID      *int            `json:"creator_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	for _, userID := range lo.Uniq(req.ParticipantIDs) {
		if ok := h.requireUser(c, userID, fmt.Sprintf("User with ID %d not found", userID)); !ok {
			return
		}
	}
	if req.CreatorID != nil {
		if ok := h.requireUser(c, *req.CreatorID, fmt.Sprintf("Creator with ID %d not found", *req.CreatorID)); !ok {
			return
		}
	}

	chat, err := h.chatRepo.CreateChat(ctx, req.Name, req.Type, req.ParticipantIDs, req.CreatorID)
	if err != nil {
		if errors.Is(err, repositories.ErrTooFewParticipants) || errors.Is(err, repositories.ErrGroupCreatorMissing) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	if h.audit != nil {
		h.audit.Emit(ctx, "INFO", fmt.Sprintf("chat %d created", chat.ID), requestIDFromContext(c), userIDFromContext(c))
	}
	c.JSON(http.StatusCreated, newChatResponse(chat))
}

func (h *ChatHandler) requireUser(c *gin.Context, userID int, notFound string) bool {
	_, err := h.userRepo.GetUser(c.Request.Context(), userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return false
	}
	return true
}

// ListChats returns the chats visible to the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	page, ok := bindPage(c, defaultChatPageSize)
	if !ok {
		return
	}

	chats, err := h.chatRepo.ListChats(c.Request.Context(), c.GetInt("userID"), page.Limit, page.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": lo.Map(chats, func(chat models.Chat, _ int) chatResponse {
		return newChatResponse(chat)
	})})
}

// GetChatMessages returns a page of chat history, oldest first.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	page, ok := bindPage(c, defaultMessagePageSize)
	if !ok {
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID, true)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if !chat.HasParticipant(c.GetInt("userID")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	msgs, err := h.messageRepo.GetHistory(c.Request.Context(), chatID, page.Limit, page.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
