package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ravi0js/directchat/internal/config"
	"github.com/ravi0js/directchat/internal/handlers"
	"github.com/ravi0js/directchat/internal/middleware"
	"github.com/ravi0js/directchat/internal/realtime"
	"github.com/ravi0js/directchat/internal/repository"
	"github.com/ravi0js/directchat/internal/services"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var storageService services.StorageService
	switch cfg.StorageDriver {
	case "supabase":
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	default:
		storageService = services.NewLocalStorageService(cfg.UploadDir, cfg.PublicBaseURL)
	}

	hub := realtime.NewHub()
	go hub.Run()

	chatService := services.NewChatService(messageRepo, userRepo, storageService)
	chatHandler := handlers.NewChatHandler(chatService, hub, cfg.JWTSecret)
	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	protected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	protected.Get("/contacts", chatHandler.ListContacts)
	protected.Get("/unread", chatHandler.UnreadTotal)
	protected.Get("/attachments/url", chatHandler.AttachmentURL)

	chats := protected.Group("/chat")
	chats.Get("/:id", chatHandler.OpenConversation)
	chats.Post("/:id/messages", chatHandler.SendMessage)
	chats.Get("/:id/search", chatHandler.SearchMessages)
	chats.Post("/:id/typing", chatHandler.NotifyTyping)

	if cfg.StorageDriver == "local" {
		app.Static(cfg.PublicBaseURL, cfg.UploadDir)
	}

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))
}
