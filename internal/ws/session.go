package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/wire"
)

const (
	outcomeBroadcast = "broadcast"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
	outcomeDropped   = "dropped"
)

// UserResolver turns a bearer token into the user it was issued for.
type UserResolver interface {
	ResolveUser(ctx context.Context, token string) (models.User, error)
}

type SessionConfig struct {
	HistoryLimit   int
	MaxMessageSize int64
	WriteWait      time.Duration
	// PongWait bounds the silence between pongs. Zero disables read deadlines.
	PongWait time.Duration
}

// ChatWebSocketHandler runs the chat socket protocol: authenticate, check
// membership, accept, replay history, then stream until the client leaves.
type ChatWebSocketHandler struct {
	manager  *Manager
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    UserResolver
	cfg      SessionConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewChatWebSocketHandler(
	manager *Manager,
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	users UserResolver,
	cfg SessionConfig,
	logger *slog.Logger,
) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		manager:  manager,
		chats:    chats,
		messages: messages,
		users:    users,
		cfg:      cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle serves GET /ws/chat/:chat_id.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	ctx, span := otel.Tracer("realtime-chat/ws").Start(c.Request.Context(), "ws.handshake", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(attribute.Int("chat.id", chatID))
	c.Request = c.Request.WithContext(ctx)

	info := ConnInfo{
		DeviceID:  observability.DeviceIDFromRequest(c.Request),
		IP:        observability.IPFromRequest(c.Request),
		RequestID: observability.RequestIDFromRequest(c.Request),
		TraceID:   span.SpanContext().TraceID().String(),
	}

	user, err := h.authorize(ctx, c.GetHeader("Authorization"), chatID)
	if err != nil {
		span.RecordError(err)
		span.End()
		info.UserID = user.ID
		h.reject(c, chatID, info, err)
		return
	}
	info.UserID = user.ID

	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		h.logger.Debug("websocket upgrade failed", "chat_id", chatID, "error", err)
		return
	}

	info.ConnID = newConnID()
	info.ConnectedAt = time.Now()
	conn := NewConnection(socket, chatID, info, h.cfg.WriteWait)
	if err := h.manager.Connect(ctx, conn); err != nil {
		span.RecordError(err)
		span.End()
		h.logger.Error("register websocket failed", "chat_id", chatID, "user_id", user.ID, "error", err)
		conn.close(websocket.CloseInternalServerErr, "")
		return
	}
	span.End()

	publishWSEvent(ctx, "ws_connect", chatID, info, "")
	h.logger.Info("websocket connected", "chat_id", chatID, "user_id", user.ID, "conn_id", info.ConnID)

	h.serve(ctx, socket, conn)
}

// authorize resolves the caller and checks chat membership. Failures a client
// can fix come back as *auth.RejectError.
func (h *ChatWebSocketHandler) authorize(ctx context.Context, header string, chatID int) (models.User, error) {
	token, err := auth.ParseAuthorizationHeader(header)
	if err != nil {
		return models.User{}, err
	}

	user, err := h.users.ResolveUser(ctx, token)
	if err != nil {
		if rejectErr := auth.RejectionFor(err); rejectErr != nil {
			return models.User{}, rejectErr
		}
		return models.User{}, fmt.Errorf("resolve user: %w", err)
	}

	chat, err := h.chats.GetChat(ctx, chatID, true)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			return user, &auth.RejectError{Reason: auth.ReasonChatNotFound, Err: err}
		}
		return user, fmt.Errorf("load chat %d: %w", chatID, err)
	}
	if !chat.HasParticipant(user.ID) {
		return user, &auth.RejectError{Reason: auth.ReasonNotAParticipant}
	}
	return user, nil
}

// reject upgrades the socket only to deliver a close frame, so the client sees
// the close code and reason. Nothing is registered.
func (h *ChatWebSocketHandler) reject(c *gin.Context, chatID int, info ConnInfo, err error) {
	code := websocket.CloseInternalServerErr
	reason := ""
	var rejectErr *auth.RejectError
	if errors.As(err, &rejectErr) {
		code = websocket.ClosePolicyViolation
		reason = rejectErr.Reason
		h.logger.Info("websocket rejected", "chat_id", chatID, "reason", reason)
	} else {
		h.logger.Error("websocket authorization failed", "chat_id", chatID, "error", err)
	}

	eventReason := reason
	if eventReason == "" {
		eventReason = err.Error()
	}
	publishWSEvent(c.Request.Context(), "ws_reject", chatID, info, eventReason)

	socket, upgradeErr := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if upgradeErr != nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	if h.cfg.WriteWait > 0 {
		deadline = time.Now().Add(h.cfg.WriteWait)
	}
	_ = socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = socket.Close()
}

func (h *ChatWebSocketHandler) serve(ctx context.Context, socket *websocket.Conn, conn *Connection) {
	info := conn.Info
	closeReason := ""
	defer func() {
		h.manager.Disconnect(conn)
		publishWSEvent(ctx, "ws_disconnect", conn.ChatID, info, closeReason)
		h.logger.Info("websocket disconnected", "chat_id", conn.ChatID, "conn_id", info.ConnID, "reason", closeReason)
	}()

	if err := h.replayHistory(ctx, conn); err != nil {
		closeReason = err.Error()
		h.logger.Warn("history replay failed", "chat_id", conn.ChatID, "conn_id", info.ConnID, "error", err)
		return
	}
	conn.BeginStreaming()

	if h.cfg.MaxMessageSize > 0 {
		socket.SetReadLimit(h.cfg.MaxMessageSize)
	}
	if h.cfg.PongWait > 0 {
		_ = socket.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		socket.SetPongHandler(func(string) error {
			return socket.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		})
	}

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !conn.Closed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, "ws_error", conn.ChatID, info, closeReason)
			}
			return
		}
		h.handleFrame(ctx, conn, data)
	}
}

func (h *ChatWebSocketHandler) replayHistory(ctx context.Context, conn *Connection) error {
	history, err := h.messages.GetHistory(ctx, conn.ChatID, h.cfg.HistoryLimit, 0)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, msg := range history {
		if err := conn.SendJSON(wire.NewMessageOut(msg)); err != nil {
			return fmt.Errorf("send history: %w", err)
		}
	}
	return nil
}

// handleFrame processes one client frame. Nothing that goes wrong here ends
// the session.
func (h *ChatWebSocketHandler) handleFrame(ctx context.Context, conn *Connection, data []byte) {
	frameType := "unknown"
	defer func() {
		if r := recover(); r != nil {
			observability.IncWSFrame(frameType, outcomeFailed)
			h.logger.Error("websocket frame panicked", "chat_id", conn.ChatID, "conn_id", conn.Info.ConnID, "panic", r)
		}
	}()

	frame, err := wire.Decode(data)
	if err != nil {
		observability.IncWSFrame(frameType, outcomeDropped)
		h.logger.Debug("websocket frame dropped", "chat_id", conn.ChatID, "conn_id", conn.Info.ConnID, "error", err)
		return
	}
	frameType = string(frame.FrameType())

	var outcome string
	switch f := frame.(type) {
	case wire.MessageIn:
		outcome, err = h.handleMessage(ctx, conn, f)
	case wire.ReadStatusIn:
		outcome, err = h.handleReadStatus(ctx, conn, f)
	default:
		outcome = outcomeDropped
	}
	if err != nil {
		h.logger.Error("websocket frame failed", "type", frameType, "chat_id", conn.ChatID, "conn_id", conn.Info.ConnID, "error", err)
	}
	observability.IncWSFrame(frameType, outcome)
}

func (h *ChatWebSocketHandler) handleMessage(ctx context.Context, conn *Connection, frame wire.MessageIn) (string, error) {
	if strings.TrimSpace(frame.Content) == "" {
		return outcomeIgnored, nil
	}

	unlock := h.manager.LockChat(conn.ChatID)
	defer unlock()

	msg, err := h.messages.CreateMessage(ctx, conn.ChatID, conn.Info.UserID, frame.Content)
	if err != nil {
		return outcomeFailed, fmt.Errorf("create message: %w", err)
	}
	if err := h.manager.BroadcastMessage(ctx, conn.ChatID, wire.NewMessageOut(msg)); err != nil {
		return outcomeFailed, fmt.Errorf("broadcast message %d: %w", msg.ID, err)
	}
	return outcomeBroadcast, nil
}

func (h *ChatWebSocketHandler) handleReadStatus(ctx context.Context, conn *Connection, frame wire.ReadStatusIn) (string, error) {
	msg, err := h.messages.MarkRead(ctx, frame.MessageID, conn.ChatID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return outcomeIgnored, nil
	}
	if err != nil {
		return outcomeFailed, fmt.Errorf("mark read %d: %w", frame.MessageID, err)
	}
	if err := h.manager.BroadcastReadStatus(ctx, msg.ID, conn.ChatID, conn.Info.UserID); err != nil {
		return outcomeFailed, fmt.Errorf("broadcast read status %d: %w", msg.ID, err)
	}
	return outcomeBroadcast, nil
}
