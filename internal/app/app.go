package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatsync/internal/db"
	"chatsync/internal/handlers"
	"chatsync/internal/services"
	"chatsync/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func Run() {
	// Load Env
	if err := utils.LoadEnv(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Init DB
	connString := utils.GetEnv("DATABASE_URL", "")
	if connString == "" {
		// Fallback to individual vars
		connString = "postgres://" + utils.GetEnv("POSTGRES_USER", "postgres") + ":" +
			utils.GetEnv("POSTGRES_PASSWORD", "postgres") + "@" +
			utils.GetEnv("POSTGRES_HOST", "localhost") + ":" +
			utils.GetEnv("POSTGRES_PORT", "5432") + "/" +
			utils.GetEnv("POSTGRES_DB", "chatdb") + "?sslmode=disable"
	}

	if err := db.InitDB(connString); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseDB()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		cancel()
		log.Fatalf("Failed to run migrations: %v", err)
	}
	cancel()

	// Services
	userService := services.NewUserService()
	chatService := services.NewChatService()
	pollService := services.NewPollService()

	// Connection registry shared by the websocket layer and the REST
	// handlers that push events.
	manager := handlers.NewRoomManager()
	api := handlers.NewAPI(chatService, pollService, userService, manager)
	ws := handlers.NewWS(manager, chatService)

	// Fiber App
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Routes
	group := app.Group("/api")

	// Public Routes
	group.Post("/register", api.Register)
	group.Post("/login", api.Login)

	// Protected Routes
	protected := group.Group("/")
	protected.Use(handlers.AuthMiddleware)

	protected.Post("/rooms", api.CreateRoom)
	protected.Get("/rooms/:id", api.RoomDetails)
	protected.Post("/rooms/:id/messages", api.SendMessage)

	protected.Delete("/messages/:id", api.DeleteMessage)
	protected.Put("/messages/:id", api.EditMessage)

	protected.Post("/polls", api.CreatePoll)
	protected.Get("/polls/:id", api.GetPoll)
	protected.Post("/polls/:id/vote", api.Vote)
	protected.Post("/polls/:id/toggle", api.TogglePoll)
	protected.Put("/polls/:id", api.EditPoll)

	// Health Check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// WebSocket Route
	// Note: Middleware order matters. AuthMiddleware checks token.
	// UpgradeMiddleware checks if it's a WS request.
	app.Use("/ws", handlers.UpgradeMiddleware)
	app.Use("/ws", handlers.AuthMiddleware)
	app.Get("/ws", ws.Handler())

	// Start Server
	port := utils.GetEnv("PORT", "3001")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Panic(err)
		}
	}()

	// Graceful Shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c // Block until signal
	log.Println("Gracefully shutting down...")
	_ = app.Shutdown()
	log.Println("Server shutdown complete")
}
