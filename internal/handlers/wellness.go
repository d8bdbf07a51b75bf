package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"amble/internal/wellness"
)

// ReportSource produces wellness reports.
type ReportSource interface {
	Analyze(ctx context.Context, userKey string, lookbackDays int, now time.Time) (*wellness.Report, error)
}

// WellnessHandler exposes the pattern analyzer.
type WellnessHandler struct {
	analyzer ReportSource
}

// NewWellnessHandler creates a new wellness handler
func NewWellnessHandler(analyzer ReportSource) *WellnessHandler {
	return &WellnessHandler{analyzer: analyzer}
}

// Get returns the report for ?days= (default 7, capped at 90).
func (h *WellnessHandler) Get(c *fiber.Ctx) error {
	userKey := c.Params("userKey")
	days := wellness.ClampLookback(c.QueryInt("days", wellness.DefaultLookbackDays))

	report, err := h.analyzer.Analyze(c.UserContext(), userKey, days, time.Now())
	if err != nil {
		log.Printf("❌ [WELLNESS] Analysis failed for %s: %v", userKey, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to analyse wellness",
		})
	}
	return c.JSON(report)
}
