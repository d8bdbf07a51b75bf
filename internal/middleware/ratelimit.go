package middleware

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Conversation turns (per user key). Each turn may call the model several times.
	ChatMax        int
	ChatExpiration time.Duration

	// Manual job triggers (per IP)
	JobRunMax        int
	JobRunExpiration time.Duration

	// Live alert stream connection attempts (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		// 20 turns/min is well above human typing speed
		ChatMax:        20,
		ChatExpiration: 1 * time.Minute,

		JobRunMax:        10,
		JobRunExpiration: 1 * time.Minute,

		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	override := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	override("RATE_LIMIT_GLOBAL_API", &config.GlobalAPIMax)
	override("RATE_LIMIT_CHAT", &config.ChatMax)
	override("RATE_LIMIT_JOB_RUN", &config.JobRunMax)
	override("RATE_LIMIT_WEBSOCKET", &config.WebSocketMax)

	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.ChatMax = 200
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func tooMany(c *fiber.Ctx, msg string, window time.Duration) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       msg,
		"retry_after": int(window.Seconds()),
	})
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return tooMany(c, "Too many requests. Please slow down.", config.GlobalAPIExpiration)
		},
	})
}

// ChatKey extracts the user key from a chat body, falling back to the client IP.
func ChatKey(c *fiber.Ctx) string {
	var body struct {
		UserKey string `json:"userKey"`
	}
	if err := json.Unmarshal(c.Body(), &body); err == nil && body.UserKey != "" {
		return "chat:" + body.UserKey
	}
	return "chat-ip:" + c.IP()
}

// ChatRateLimiter limits conversation turns per user key.
func ChatRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          config.ChatMax,
		Expiration:   config.ChatExpiration,
		KeyGenerator: ChatKey,
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Chat limit reached for %s", ChatKey(c))
			return tooMany(c, "You're sending messages very quickly. Please wait a moment.", config.ChatExpiration)
		},
	})
}

// JobRunRateLimiter limits manual scheduler triggers.
func JobRunRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.JobRunMax,
		Expiration: config.JobRunExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "jobrun:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Job trigger limit reached for IP: %s on %s", c.IP(), c.Path())
			return tooMany(c, "Too many job triggers. Please wait.", config.JobRunExpiration)
		},
	})
}

// WebSocketRateLimiter for WebSocket connection attempts
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WebSocketMax,
		Expiration: config.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ws:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] WebSocket connection limit reached for IP: %s", c.IP())
			return tooMany(c, "Too many connection attempts. Please wait before reconnecting.", config.WebSocketExpiration)
		},
	})
}
