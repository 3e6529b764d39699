package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const serviceName = "messaging-service"

func main() {
	cfg := config.Load()

	shutdownTracing := observability.InitTracing(context.Background(), serviceName, cfg.OTLPEndpoint, cfg.Environment)
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.EventExchange)
	if err != nil {
		log.Printf("ws event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(auditPublisher))
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit_log.messaging", serviceName, cfg.Environment)

	verifier := auth.NewVerifier(cfg.JWTSecret)

	userRepo := repositories.NewUserRepo(database)
	friendshipRepo := repositories.NewFriendshipRepo(database)
	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	presence := ws.NewPresenceRegistry()
	gateway := ws.NewGateway(hub, presence, userRepo, conversationRepo, messageRepo, verifier)

	conversationHandler := handlers.NewConversationHandler(conversationRepo, messageRepo, friendshipRepo, hub, audit)
	messageHandler := handlers.NewMessageHandler(conversationRepo, messageRepo, userRepo, hub)
	friendHandler := handlers.NewFriendHandler(friendshipRepo, userRepo)
	userHandler := handlers.NewUserHandler(userRepo)

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.POST("/conversations", authMiddleware, conversationHandler.CreateConversation)
	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.PATCH("/conversations/:id", authMiddleware, conversationHandler.Rename)
	router.POST("/conversations/:id/members", authMiddleware, conversationHandler.AddMember)
	router.DELETE("/conversations/:id/members/:user_id", authMiddleware, conversationHandler.RemoveMember)
	router.POST("/conversations/:id/leave", authMiddleware, conversationHandler.Leave)

	router.GET("/conversations/:id/messages", authMiddleware, messageHandler.ListMessages)
	router.POST("/conversations/:id/messages", authMiddleware, messageHandler.PostMessage)
	router.POST("/conversations/:id/read", authMiddleware, messageHandler.MarkRead)

	router.POST("/friends/requests", authMiddleware, friendHandler.SendRequest)
	router.GET("/friends/requests", authMiddleware, friendHandler.ListRequests)
	router.POST("/friends/requests/:id/accept", authMiddleware, friendHandler.AcceptRequest)
	router.POST("/friends/requests/:id/decline", authMiddleware, friendHandler.DeclineRequest)
	router.DELETE("/friends/requests/:id", authMiddleware, friendHandler.CancelRequest)
	router.DELETE("/friends/:user_id", authMiddleware, friendHandler.RemoveFriend)
	router.GET("/friends", authMiddleware, friendHandler.ListFriends)

	router.GET("/users", authMiddleware, userHandler.ListUsers)
	router.GET("/users/:id", authMiddleware, userHandler.GetUser)

	router.GET("/ws", gateway.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
