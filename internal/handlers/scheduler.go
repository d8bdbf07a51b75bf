package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"amble/internal/jobs"
)

// JobRunner is the scheduler surface exposed over HTTP.
type JobRunner interface {
	GetStatus() []jobs.JobStatus
	RunNow(ctx context.Context, name string) (int, error)
}

// SchedulerHandler reports job status and triggers jobs manually.
type SchedulerHandler struct {
	jobs JobRunner
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(runner JobRunner) *SchedulerHandler {
	return &SchedulerHandler{jobs: runner}
}

// Status lists every registered job.
func (h *SchedulerHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"jobs": h.jobs.GetStatus()})
}

// Run triggers a job for every user now.
func (h *SchedulerHandler) Run(c *fiber.Ctx) error {
	name := c.Params("name")
	users, err := h.jobs.RunNow(c.UserContext(), name)
	if errors.Is(err, jobs.ErrUnknownJob) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown job: " + name})
	}
	if err != nil {
		log.Printf("⚠️  [SCHEDULER] Manual run of %s finished with errors: %v", name, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"job":   name,
			"users": users,
		})
	}
	return c.JSON(fiber.Map{"job": name, "users": users, "status": "completed"})
}
