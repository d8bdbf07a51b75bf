package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"amble/internal/alerts"
	"amble/internal/store"
)

// AlertHandler serves alert history, read receipts and the live stream.
type AlertHandler struct {
	store store.AlertStore
	hub   *alerts.Hub
	now   func() time.Time
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(st store.AlertStore, hub *alerts.Hub) *AlertHandler {
	return &AlertHandler{store: st, hub: hub, now: time.Now}
}

// List returns alerts from the last ?days= days, newest first.
func (h *AlertHandler) List(c *fiber.Ctx) error {
	userKey := c.Params("userKey")
	days := c.QueryInt("days", 7)
	if days <= 0 || days > 365 {
		days = 7
	}

	list, err := h.store.ListAlerts(c.UserContext(), userKey, store.Recent(h.now(), time.Duration(days)*24*time.Hour))
	if err != nil {
		log.Printf("❌ [ALERTS] Failed to list alerts for %s: %v", userKey, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load alerts",
		})
	}
	return c.JSON(fiber.Map{
		"userKey": userKey,
		"days":    days,
		"alerts":  list,
	})
}

// MarkRead flags one alert as read.
func (h *AlertHandler) MarkRead(c *fiber.Ctx) error {
	userKey, id := c.Params("userKey"), c.Params("id")
	err := h.store.MarkAlertRead(c.UserContext(), userKey, id)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Alert not found"})
	}
	if err != nil {
		log.Printf("❌ [ALERTS] Failed to mark alert %s read: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update alert",
		})
	}
	return c.JSON(fiber.Map{"id": id, "read": true})
}

// Upgrade rejects plain HTTP requests to the live stream.
func (h *AlertHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Stream pushes each new alert for the user as a JSON frame until the client leaves.
func (h *AlertHandler) Stream(c *websocket.Conn) {
	userKey := c.Params("userKey")
	sub := h.hub.Subscribe(uuid.New().String(), userKey)
	defer h.hub.Unsubscribe(sub.ID)

	// Reads only detect the close; clients never send frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case a, ok := <-sub.Alerts:
			if !ok {
				return
			}
			if err := c.WriteJSON(a); err != nil {
				log.Printf("⚠️  [ALERTS] Write to live subscriber %s failed: %v", sub.ID, err)
				return
			}
		case <-done:
			return
		}
	}
}
