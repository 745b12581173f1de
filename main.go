package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/config"
	"realtime-chat/internal/db"
	"realtime-chat/internal/handlers"
	"realtime-chat/internal/middleware"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/pubsub"
	"realtime-chat/internal/rabbitmq"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/telemetry"
	"realtime-chat/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		slog.Error("chat service stopped", "error", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return 2, fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return 1, fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	database, err := db.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return 1, fmt.Errorf("connect db: %w", err)
	}
	defer database.Close()

	broker, err := pubsub.NewBroker(ctx, cfg.RedisURL, logger)
	if err != nil {
		return 1, fmt.Errorf("connect pubsub: %w", err)
	}
	defer broker.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher), "bus", pubsub.Mode(broker))

	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, logger)

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	tokens, err := auth.NewTokenManager(cfg.SecretKey, cfg.Algorithm, cfg.AccessTokenExpire)
	if err != nil {
		return 2, fmt.Errorf("token manager: %w", err)
	}
	verifier := auth.NewVerifier(tokens, userRepo)

	manager := ws.NewManager(broker, logger, ws.WithPingInterval(cfg.PingInterval))
	pongWait := cfg.PongWait
	if cfg.PingInterval == 0 {
		pongWait = 0
	}
	chatWS := ws.NewChatWebSocketHandler(manager, chatRepo, messageRepo, verifier, ws.SessionConfig{
		HistoryLimit:   cfg.HistoryLimit,
		MaxMessageSize: cfg.MaxMessageSize,
		WriteWait:      cfg.WriteWait,
		PongWait:       pongWait,
	}, logger)

	userHandler := handlers.NewUserHandler(userRepo, tokens, audit)
	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, userRepo, audit)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.POST("/users", userHandler.CreateUser)
	router.POST("/users/login", userHandler.Login)
	router.POST("/users/token", userHandler.Token)
	router.GET("/users/me", authMiddleware, userHandler.Me)
	router.GET("/users/:user_id", userHandler.GetUser)

	router.POST("/chats", authMiddleware, chatHandler.CreateChat)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)

	router.GET("/ws/chat/:chat_id", chatWS.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("chat service listening", "addr", server.Addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return 1, fmt.Errorf("serve http: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket shutdown incomplete", "error", err)
	}
	return 0, nil
}
