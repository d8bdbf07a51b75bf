package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amble/internal/alerts"
	"amble/internal/database"
	"amble/internal/jobs"
	"amble/internal/models"
	"amble/internal/orchestrator"
	"amble/internal/session"
	"amble/internal/store"
	"amble/internal/tools"
	"amble/internal/wellness"
)

func setupTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	st := store.NewSQLStore(db)
	t.Cleanup(func() { st.Close() })
	return st
}

func decode(t *testing.T, body io.Reader, v interface{}) {
	t.Helper()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

type fakeTurns struct {
	got orchestrator.TurnRequest
	res *orchestrator.TurnResult
	err error
}

func (f *fakeTurns) RunTurn(_ context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error) {
	f.got = req
	return f.res, f.err
}

func TestHealthHandler(t *testing.T) {
	app := fiber.New()
	sessions := session.NewStore(time.Hour)
	sessions.Resolve("", "asha")
	hub := alerts.NewHub(nil)

	app.Get("/health", NewHealthHandler(sessions, hub).Handle)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	decode(t, resp.Body, &body)
	if body["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", body["status"])
	}
	assert.EqualValues(t, 1, body["sessions"])
	assert.EqualValues(t, 0, body["connections"])
}

func TestChatHandler(t *testing.T) {
	turns := &fakeTurns{res: &orchestrator.TurnResult{
		SessionID:    "s-1",
		Text:         "Noted! ₹200.00 for medicines.",
		MemoriesUsed: 2,
		Actions:      []tools.Domain{tools.DomainExpenses},
	}}
	app := fiber.New()
	app.Post("/api/chat", NewChatHandler(turns).Handle)

	t.Run("runs a turn", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/chat",
			strings.NewReader(`{"message":"  I spent 200 on medicines ","userKey":"asha"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		decode(t, resp.Body, &body)
		assert.Equal(t, "s-1", body["sessionId"])
		assert.Equal(t, "Noted! ₹200.00 for medicines.", body["response"])
		assert.EqualValues(t, 2, body["memoriesUsed"])
		assert.Equal(t, []interface{}{"expenses"}, body["actions"])
		assert.Equal(t, "I spent 200 on medicines", turns.got.Message)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		for _, payload := range []string{`{"message":"hi"}`, `{"userKey":"asha","message":"   "}`, `not json`} {
			req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Errorf("Expected 400 for %q, got %d", payload, resp.StatusCode)
			}
		}
	})

	t.Run("internal failure", func(t *testing.T) {
		turns.err = errors.New("store closed")
		defer func() { turns.err = nil }()
		req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{"message":"hi","userKey":"asha"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	})
}

func TestStateHandler(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.UpsertProfile(ctx, &models.UserProfile{UserKey: "asha", Name: "Asha", Timezone: "Asia/Kolkata", CreatedAt: now}))
	require.NoError(t, st.AddExpense(ctx, &models.Expense{ID: uuid.NewString(), UserKey: "asha", Amount: 120, Category: models.ExpenseGroceries, CreatedAt: now}))
	require.NoError(t, st.AddMood(ctx, &models.MoodEntry{ID: uuid.NewString(), UserKey: "asha", Mood: models.MoodHappy, EnergyLevel: 7, CreatedAt: now}))
	require.NoError(t, st.AddExpense(ctx, &models.Expense{ID: uuid.NewString(), UserKey: "ravi", Amount: 999, Category: models.ExpenseOther, CreatedAt: now}))

	app := fiber.New()
	app.Get("/api/state/:userKey", NewStateHandler(st, 20).Get)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/state/asha?limit=5", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var snap StateSnapshot
	decode(t, resp.Body, &snap)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "Asha", snap.Profile.Name)
	require.Len(t, snap.Expenses, 1)
	assert.Equal(t, 120.0, snap.Expenses[0].Amount)
	assert.Len(t, snap.Moods, 1)
	assert.Empty(t, snap.Alerts)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/state/nobody", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var empty StateSnapshot
	decode(t, resp.Body, &empty)
	assert.Nil(t, empty.Profile)
}

func TestStateHandlerReturnsNewestAppointments(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Booked in order old-1, old-2, newest; the newest booking has the earliest date.
	for i, title := range []string{"old-1", "old-2", "newest"} {
		require.NoError(t, st.AddAppointment(ctx, &models.Appointment{
			ID: uuid.NewString(), UserKey: "asha", Title: title, Type: models.AppointmentDoctor,
			DateTime:  base.Add(time.Duration(10-i) * 24 * time.Hour),
			Status:    models.AppointmentScheduled,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	app := fiber.New()
	app.Get("/api/state/:userKey", NewStateHandler(st, 20).Get)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/state/asha?limit=2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var snap StateSnapshot
	decode(t, resp.Body, &snap)
	require.Len(t, snap.Appointments, 2)
	if snap.Appointments[0].Title != "newest" || snap.Appointments[1].Title != "old-2" {
		t.Errorf("Expected [newest old-2], got [%s %s]", snap.Appointments[0].Title, snap.Appointments[1].Title)
	}
}

func TestAlertHandler(t *testing.T) {
	st := setupTestStore(t)
	hub := alerts.NewHub(nil)
	router := alerts.NewRouter(st, st, alerts.RouterOptions{Hub: hub})

	_, a, err := router.Route(context.Background(), "asha", "Asha has not checked in today", models.UrgencyMedium, models.AlertCategoryInactivity)
	require.NoError(t, err)

	h := NewAlertHandler(st, hub)
	app := fiber.New()
	app.Get("/api/alerts/:userKey", h.List)
	app.Post("/api/alerts/:userKey/:id/read", h.MarkRead)
	app.Get("/ws/alerts/:userKey", h.Upgrade)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/alerts/asha?days=3", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list struct {
		Days   int            `json:"days"`
		Alerts []models.Alert `json:"alerts"`
	}
	decode(t, resp.Body, &list)
	assert.Equal(t, 3, list.Days)
	require.Len(t, list.Alerts, 1)
	assert.False(t, list.Alerts[0].Read)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/alerts/asha/"+a.ID+"/read", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/alerts/ravi/"+a.ID+"/read", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "alerts are scoped to their user")

	resp, err = app.Test(httptest.NewRequest("GET", "/ws/alerts/asha", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestWellnessHandler(t *testing.T) {
	st := setupTestStore(t)
	app := fiber.New()
	app.Get("/api/wellness/:userKey", NewWellnessHandler(wellness.NewAnalyzer(st)).Get)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/wellness/asha?days=400", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var report wellness.Report
	decode(t, resp.Body, &report)
	assert.Equal(t, "asha", report.UserKey)
	assert.Equal(t, wellness.ClampLookback(400), report.LookbackDays)
}

type fakeJobs struct {
	ran string
}

func (f *fakeJobs) GetStatus() []jobs.JobStatus {
	return []jobs.JobStatus{{Name: jobs.MorningGreeting, Schedule: "0 8 * * *"}}
}

func (f *fakeJobs) RunNow(_ context.Context, name string) (int, error) {
	if name != jobs.MorningGreeting {
		return 0, jobs.ErrUnknownJob
	}
	f.ran = name
	return 3, nil
}

func TestSchedulerHandler(t *testing.T) {
	fj := &fakeJobs{}
	h := NewSchedulerHandler(fj)
	app := fiber.New()
	app.Get("/api/scheduler/status", h.Status)
	app.Post("/api/scheduler/jobs/:name/run", h.Run)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/scheduler/status", nil))
	require.NoError(t, err)
	var status struct {
		Jobs []jobs.JobStatus `json:"jobs"`
	}
	decode(t, resp.Body, &status)
	require.Len(t, status.Jobs, 1)
	assert.Equal(t, jobs.MorningGreeting, status.Jobs[0].Name)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/scheduler/jobs/"+jobs.MorningGreeting+"/run", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var run map[string]interface{}
	decode(t, resp.Body, &run)
	assert.EqualValues(t, 3, run["users"])
	assert.Equal(t, jobs.MorningGreeting, fj.ran)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/scheduler/jobs/nightly_backup/run", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
