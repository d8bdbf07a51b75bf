package handlers

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"amble/internal/orchestrator"
)

// TurnRunner runs one conversation turn.
type TurnRunner interface {
	RunTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	UserKey   string `json:"userKey"`
	SessionID string `json:"sessionId,omitempty"`
}

// ChatHandler handles conversation turns
type ChatHandler struct {
	turns TurnRunner
}

// NewChatHandler creates a new chat handler
func NewChatHandler(turns TurnRunner) *ChatHandler {
	return &ChatHandler{turns: turns}
}

// Handle runs one turn. Degraded turns still answer 200 with the fixed reply.
func (h *ChatHandler) Handle(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.Message = strings.TrimSpace(req.Message)
	req.UserKey = strings.TrimSpace(req.UserKey)
	if req.Message == "" || req.UserKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "message and userKey are required",
		})
	}

	res, err := h.turns.RunTurn(c.UserContext(), orchestrator.TurnRequest{
		UserKey:   req.UserKey,
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if errors.Is(err, orchestrator.ErrInvalidRequest) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		log.Printf("❌ [CHAT] Turn failed for user %s: %v", req.UserKey, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}
	if res.Degraded {
		log.Printf("⚠️  [CHAT] Degraded reply for user %s (session %s)", req.UserKey, res.SessionID)
	}

	return c.JSON(res)
}
