package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"amble/internal/models"
	"amble/internal/store"
)

// StateHandler serves a read-only snapshot of everything stored for a user.
type StateHandler struct {
	store        store.Store
	defaultLimit int
}

// NewStateHandler creates a new state handler
func NewStateHandler(st store.Store, defaultLimit int) *StateHandler {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &StateHandler{store: st, defaultLimit: defaultLimit}
}

// StateSnapshot is the body of GET /api/state/:userKey.
type StateSnapshot struct {
	UserKey      string               `json:"userKey"`
	Profile      *models.UserProfile  `json:"profile"`
	Expenses     []models.Expense     `json:"expenses"`
	Moods        []models.MoodEntry   `json:"moods"`
	Activities   []models.Activity    `json:"activities"`
	Appointments []models.Appointment `json:"appointments"`
	Alerts       []models.Alert       `json:"alerts"`
	Facts        []models.Fact        `json:"facts"`
	Turns        []models.TurnRecord  `json:"conversations"`
}

// Get reads every collection concurrently.
func (h *StateHandler) Get(c *fiber.Ctx) error {
	userKey := c.Params("userKey")
	if userKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "userKey is required"})
	}
	limit := c.QueryInt("limit", h.defaultLimit)
	if limit <= 0 || limit > 500 {
		limit = h.defaultLimit
	}

	snap := StateSnapshot{UserKey: userKey}
	r := store.Latest(limit)
	g, ctx := errgroup.WithContext(c.UserContext())

	g.Go(func() error {
		p, err := h.store.GetProfile(ctx, userKey)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		snap.Profile = p
		return err
	})
	g.Go(func() (err error) {
		snap.Expenses, err = h.store.ListExpenses(ctx, userKey, r)
		return err
	})
	g.Go(func() (err error) {
		snap.Moods, err = h.store.ListMoods(ctx, userKey, r)
		return err
	})
	g.Go(func() (err error) {
		snap.Activities, err = h.store.ListActivities(ctx, userKey, r)
		return err
	})
	g.Go(func() (err error) {
		snap.Appointments, err = h.store.ListAppointments(ctx, userKey, store.AppointmentFilter{Newest: true, Limit: limit})
		return err
	})
	g.Go(func() (err error) {
		snap.Alerts, err = h.store.ListAlerts(ctx, userKey, r)
		return err
	})
	g.Go(func() (err error) {
		snap.Facts, err = h.store.SearchFacts(ctx, userKey, store.FactQuery{Limit: limit})
		return err
	})
	g.Go(func() (err error) {
		snap.Turns, err = h.store.ListTurns(ctx, userKey, r)
		return err
	})

	if err := g.Wait(); err != nil {
		log.Printf("❌ [STATE] Failed to read state for %s: %v", userKey, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load state",
		})
	}
	return c.JSON(snap)
}
