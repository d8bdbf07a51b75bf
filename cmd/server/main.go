package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"amble/internal/bootstrap"
	"amble/internal/config"
	"amble/internal/handlers"
	"amble/internal/logging"
	"amble/internal/middleware"
	"amble/internal/preflight"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Amble companion server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, LLM: %s, Memory: %s, Timezone: %s)",
		cfg.Port, cfg.LLMProvider, cfg.SemanticMemory, cfg.DefaultTimezone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{
		Registerer:   prometheus.DefaultRegisterer,
		RequireModel: true,
	})
	if err != nil {
		log.Fatalf("❌ Failed to start: %v", err)
	}
	defer app.Close()

	if results := preflight.NewChecker(app.Store, cfg).RunAll(ctx); preflight.HasFailures(results) {
		log.Fatal("❌ Pre-flight checks failed, refusing to start")
	}

	// Hot-reload external alert channels
	go config.WatchDelivery(ctx, cfg.DeliveryFile, func(d *config.DeliveryConfig) {
		app.Router.ApplyDelivery(d, app.Publisher())
	})

	if cfg.SchedulerEnabled {
		if err := app.Scheduler.Start(); err != nil {
			log.Fatalf("❌ Failed to start scheduler: %v", err)
		}
	} else {
		log.Println("⏸️  Scheduler disabled (SCHEDULER_ENABLED=false)")
	}

	server := fiber.New(fiber.Config{
		AppName:      "Amble v1.0",
		ReadTimeout:  cfg.TurnTimeout + 30*time.Second,
		WriteTimeout: cfg.TurnTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Middleware
	server.Use(recover.New())
	server.Use(logger.New())

	// Prometheus metrics middleware
	prom := fiberprometheus.New("amble")
	prom.RegisterAt(server, "/metrics")
	server.Use(prom.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.LoadRateLimitConfig()
	if cfg.ChatRateLimit > 0 && os.Getenv("RATE_LIMIT_CHAT") == "" {
		rateLimitConfig.ChatMax = cfg.ChatRateLimit
	}
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Chat=%d/min, Jobs=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.ChatMax,
		rateLimitConfig.JobRunMax,
		rateLimitConfig.WebSocketMax,
	)

	allowedOrigins := cfg.AllowedOrigins
	server.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
		AllowCredentials: allowedOrigins != "*" && !strings.Contains(allowedOrigins, "*"),
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", allowedOrigins)

	server.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(app.Sessions, app.Hub)
	chatHandler := handlers.NewChatHandler(app.Turns)
	stateHandler := handlers.NewStateHandler(app.Store, cfg.StateEntryLimit)
	alertHandler := handlers.NewAlertHandler(app.Store, app.Hub)
	wellnessHandler := handlers.NewWellnessHandler(app.Analyzer)
	schedulerHandler := handlers.NewSchedulerHandler(app.Scheduler)

	server.Get("/health", healthHandler.Handle)

	api := server.Group("/api")
	api.Post("/chat", middleware.ChatRateLimiter(rateLimitConfig), chatHandler.Handle)
	api.Get("/state/:userKey", stateHandler.Get)
	api.Get("/alerts/:userKey", alertHandler.List)
	api.Post("/alerts/:userKey/:id/read", alertHandler.MarkRead)
	api.Get("/wellness/:userKey", wellnessHandler.Get)
	api.Get("/scheduler/status", schedulerHandler.Status)
	api.Post("/scheduler/jobs/:name/run", middleware.JobRunRateLimiter(rateLimitConfig), schedulerHandler.Run)

	server.Use("/ws/alerts", middleware.WebSocketRateLimiter(rateLimitConfig))
	server.Use("/ws/alerts", alertHandler.Upgrade)
	server.Get("/ws/alerts/:userKey", websocket.New(alertHandler.Stream))

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("💬 Chat endpoint: http://localhost:%s/api/chat", cfg.Port)
	log.Printf("🔔 Live alerts: ws://localhost:%s/ws/alerts/:userKey", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop background jobs before the store closes
		app.Scheduler.Stop()
		cancel()

		if err := server.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := server.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
