package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Counter reports a live count, such as sessions or websocket subscribers.
type Counter interface {
	Count() int
}

// HealthHandler handles health check requests
type HealthHandler struct {
	sessions    Counter
	subscribers Counter
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(sessions, subscribers Counter) *HealthHandler {
	return &HealthHandler{sessions: sessions, subscribers: subscribers}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"sessions":    h.sessions.Count(),
		"connections": h.subscribers.Count(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
