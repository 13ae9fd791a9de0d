package routes

import (
	"log/slog"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/tageampi/vintohub/internal/config"
	"github.com/tageampi/vintohub/internal/handlers"
	"github.com/tageampi/vintohub/internal/middleware"
	"github.com/tageampi/vintohub/internal/services"
	chatws "github.com/tageampi/vintohub/internal/websocket"
)

type Dependencies struct {
	Chat   *services.ChatService
	Router *chatws.Router
	Users  handlers.UserDirectory
	Log    *slog.Logger
}

// NewApp builds the fiber application with the shared middleware stack and
// every route mounted.
func NewApp(cfg *config.Config, deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: !cfg.IsDevelopment()})

	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))
	app.Use(logger.New(logger.Config{
		Next: func(c *fiber.Ctx) bool { return strings.HasPrefix(c.Path(), "/health") },
	}))
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	RegisterRoutes(app, cfg, deps)
	return app
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.Users, cfg.JWTSecret, deps.Log)
	chatHandler := handlers.NewChatHandler(deps.Chat, deps.Router, handlers.ChatHandlerOptions{
		JWTSecret:    cfg.JWTSecret,
		RequireToken: cfg.RequireToken,
		SendBuffer:   cfg.SendBufferSize,
	}, deps.Log)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)
	if cfg.IsDevelopment() {
		auth.Post("/register", authHandler.Register)
		auth.Post("/token", authHandler.IssueToken)
	}

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	messages := authProtected.Group("/messages")
	messages.Get("/conversations", chatHandler.ListConversations)
	messages.Get("/:userId", chatHandler.GetConversation)

	app.Use("/ws", chatHandler.WebSocketAuth)
	app.Get("/ws", websocket.New(chatHandler.HandleWebSocket))
}
