package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amble/internal/database"
	"amble/internal/models"
	"amble/internal/session"
	"amble/internal/store"
	"amble/internal/wellness"
)

type fakeRouter struct {
	routed []models.Alert
	st     store.AlertStore
}

func (f *fakeRouter) Route(ctx context.Context, userKey, message string, urgency models.Urgency, category string) (bool, *models.Alert, error) {
	if category == "" {
		category = models.AlertCategoryWellness
	}
	a := &models.Alert{ID: newID(), UserKey: userKey, Message: message, Urgency: urgency, Category: category, CreatedAt: time.Now().UTC()}
	if err := f.st.AddAlert(ctx, a); err != nil {
		return false, nil, err
	}
	f.routed = append(f.routed, *a)
	return true, a, nil
}

type harness struct {
	reg    *Registry
	store  *store.SQLStore
	router *fakeRouter
	now    time.Time
	state  *session.State
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	st := store.NewSQLStore(db)
	t.Cleanup(func() { st.Close() })

	router := &fakeRouter{st: st}
	reg := NewDomainRegistry(Deps{
		Store:      st,
		Analyzer:   wellness.NewAnalyzer(st),
		Router:     router,
		DefaultLoc: time.UTC,
	})
	sessions := session.NewStore(time.Hour)
	state, _ := sessions.Resolve("s1", "u1")
	return &harness{
		reg:    reg,
		store:  st,
		router: router,
		now:    time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		state:  state,
	}
}

func (h *harness) call(t *testing.T, name string, args interface{}) Result {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return h.reg.Dispatch(context.Background(), Invocation{UserKey: "u1", State: h.state, Now: h.now}, Call{Name: name, Arguments: raw})
}

func TestDomainRegistryHasEveryTool(t *testing.T) {
	h := newHarness(t)
	want := []string{
		"get_user_profile", "update_user_profile",
		"track_expense", "get_expense_summary",
		"track_mood", "get_mood_history",
		"record_activity", "get_activity_history",
		"schedule_appointment", "get_upcoming_appointments", "cancel_appointment",
		"analyze_wellness_patterns", "send_family_alert", "get_family_alerts_history",
		"remember_fact", "recall_memories",
		"get_daily_summary", "get_activity_suggestions",
	}
	var got []string
	for _, tool := range h.reg.List() {
		got = append(got, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
		assert.Equal(t, "object", tool.Parameters["type"], tool.Name)
	}
	assert.Equal(t, want, got)
}

func TestProfileTools(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "get_user_profile", map[string]interface{}{})
	assert.Equal(t, StatusNotFound, res.Status)

	res = h.call(t, "update_user_profile", map[string]interface{}{"timezone": "Mars/Olympus"})
	assert.Equal(t, StatusError, res.Status)

	res = h.call(t, "update_user_profile", map[string]interface{}{
		"name":      "Asha",
		"timezone":  "Asia/Kolkata",
		"interests": []string{"gardening", " music ", "Gardening"},
	})
	require.Equal(t, StatusSuccess, res.Status, res.Message)
	assert.Equal(t, "Asha", h.state.GetString(session.KeyUserName))

	res = h.call(t, "get_user_profile", map[string]interface{}{})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "Asha", res.Data["name"])
	assert.Equal(t, []string{"gardening", "music"}, res.Data["interests"])
}

func TestUpdateProfileKeepsFieldsWrittenElsewhere(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.call(t, "update_user_profile", map[string]interface{}{"name": "Asha", "interests": []string{"music"}})
	require.Equal(t, StatusSuccess, res.Status, res.Message)

	// Another session records medications between the two tool calls.
	other := "Pune"
	_, err := h.store.UpdateProfileFields(ctx, "u1", store.ProfileUpdate{
		Location:    &other,
		Preferences: map[string]interface{}{models.PrefMedications: []string{"Amlodipine 5mg"}},
	})
	require.NoError(t, err)

	res = h.call(t, "update_user_profile", map[string]interface{}{"emergency_contact_phone": "+91 98000 00000"})
	require.Equal(t, StatusSuccess, res.Status, res.Message)

	p, err := h.store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Pune", p.Location)
	assert.Equal(t, []string{"Amlodipine 5mg"}, p.StringList(models.PrefMedications))
	assert.Equal(t, []string{"music"}, p.StringList(models.PrefInterests))
	assert.Equal(t, "+91 98000 00000", p.String(models.PrefEmergencyPhone))
	assert.Equal(t, "Pune", h.state.GetString(session.KeyUserLocation))
}

func TestTrackExpenseRunningTotal(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "track_expense", map[string]interface{}{"amount": 120, "category": "groceries", "description": "vegetables"})
	require.Equal(t, StatusSuccess, res.Status, res.Message)
	assert.Equal(t, "Noted! ₹120.00 for vegetables. Total today is ₹120.00.", res.Message)

	res = h.call(t, "track_expense", map[string]interface{}{"amount": 45.5, "category": "pharmacy", "description": "BP tablets"})
	assert.Equal(t, "Noted! ₹45.50 for BP tablets. Total today is ₹165.50.", res.Message)

	for _, bad := range []map[string]interface{}{
		{"amount": 0, "category": "groceries", "description": "x"},
		{"amount": 10, "category": "jewellery", "description": "x"},
	} {
		assert.Equal(t, StatusError, h.call(t, "track_expense", bad).Status)
	}

	res = h.call(t, "get_expense_summary", map[string]interface{}{"period": "today"})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 165.5, res.Data["total"])
	assert.Equal(t, 2, res.Data["transaction_count"])
	assert.Equal(t, map[string]float64{"groceries": 120, "pharmacy": 45.5}, res.Data["by_category"])

	assert.Equal(t, StatusError, h.call(t, "get_expense_summary", map[string]interface{}{"period": "decade"}).Status)
}

func TestMoodTools(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "track_mood", map[string]interface{}{"mood": "lonely", "energy_level": 3})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.Message, "call with someone")

	assert.Equal(t, StatusError, h.call(t, "track_mood", map[string]interface{}{"mood": "lonely", "energy_level": 11}).Status)
	assert.Equal(t, StatusError, h.call(t, "track_mood", map[string]interface{}{"mood": "grumpy"}).Status)

	h.call(t, "track_mood", map[string]interface{}{"mood": "sad"})
	h.call(t, "track_mood", map[string]interface{}{"mood": "happy", "energy_level": 7})

	res = h.call(t, "get_mood_history", map[string]interface{}{"days": 7})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "concerning", res.Data["trend"])
	assert.Equal(t, 3, res.Data["total_entries"])
	assert.Equal(t, 5.0, res.Data["average_energy"])
}

func TestActivityTools(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "record_activity", map[string]interface{}{"activity_name": "Evening walk", "activity_type": "walking", "duration_minutes": 30})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.Message, "30 minutes of Evening walk")

	assert.Equal(t, StatusError, h.call(t, "record_activity", map[string]interface{}{"activity_name": "x", "activity_type": "walking", "duration_minutes": -5}).Status)

	h.call(t, "record_activity", map[string]interface{}{"activity_name": "Call with Ravi", "activity_type": "phone_call", "duration_minutes": 15})

	res = h.call(t, "get_activity_history", map[string]interface{}{})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 45, res.Data["total_active_minutes"])
	byType := res.Data["by_type"].(map[string]typeTotals)
	assert.Equal(t, typeTotals{Count: 1, Minutes: 30}, byType["walking"])
}

func TestAppointmentLifecycle(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "schedule_appointment", map[string]interface{}{
		"title": "Eye check-up", "appointment_type": "doctor", "date_time": "2026-03-09 10:00",
	})
	assert.Equal(t, StatusError, res.Status, "past times are rejected")

	res = h.call(t, "schedule_appointment", map[string]interface{}{
		"title": "Eye check-up", "appointment_type": "doctor", "date_time": "tomorrow 10:30", "location": "City Clinic",
	})
	require.Equal(t, StatusSuccess, res.Status, res.Message)
	id := res.Data["appointment_id"].(string)

	res = h.call(t, "get_upcoming_appointments", map[string]interface{}{"days_ahead": 3})
	require.Equal(t, StatusSuccess, res.Status)
	list := res.Data["appointments"].([]map[string]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "2026-03-11T10:30:00Z", list[0]["date_time"])

	first := h.call(t, "cancel_appointment", map[string]interface{}{"appointment_id": id})
	require.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, true, first.Data["changed"])

	second := h.call(t, "cancel_appointment", map[string]interface{}{"appointment_id": id})
	require.Equal(t, StatusSuccess, second.Status)
	assert.Equal(t, false, second.Data["changed"])

	res = h.call(t, "get_upcoming_appointments", map[string]interface{}{})
	assert.Empty(t, res.Data["appointments"])

	assert.Equal(t, StatusNotFound, h.call(t, "cancel_appointment", map[string]interface{}{"appointment_id": "nope"}).Status)
}

func TestRememberAndRecall(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "remember_fact", map[string]interface{}{"fact": "My grandson's name is Rahul", "category": "family"})
	require.Equal(t, StatusSuccess, res.Status)
	h.call(t, "remember_fact", map[string]interface{}{"fact": "I worked as a school teacher"})

	res = h.call(t, "recall_memories", map[string]interface{}{"query": "what is my grandson called?"})
	require.Equal(t, StatusSuccess, res.Status, res.Message)
	memories := res.Data["memories"].([]map[string]interface{})
	require.Len(t, memories, 1)
	assert.Equal(t, "My grandson's name is Rahul", memories[0]["fact"])

	res = h.call(t, "recall_memories", map[string]interface{}{"category": "general"})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, res.Data["memories"], 1)

	assert.Equal(t, StatusNotFound, h.call(t, "recall_memories", map[string]interface{}{"query": "piano"}).Status)
}

func TestFamilyAlerts(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "send_family_alert", map[string]interface{}{"message": "Mum skipped lunch"})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "low", res.Data["urgency"])
	assert.Equal(t, models.AlertCategoryWellness, res.Data["category"])

	assert.Equal(t, StatusError, h.call(t, "send_family_alert", map[string]interface{}{"message": "x", "urgency": "panic"}).Status)
	require.Len(t, h.router.routed, 1)

	h.now = time.Now()
	res = h.call(t, "get_family_alerts_history", map[string]interface{}{})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, res.Data["alerts"], 1)
}

func TestDailySummaryReadsOwnWrites(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "get_daily_summary", map[string]interface{}{})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "not tracked", res.Data["mood_trend"])

	h.call(t, "record_activity", map[string]interface{}{"activity_name": "Yoga", "activity_type": "exercise", "duration_minutes": 20})
	h.call(t, "track_mood", map[string]interface{}{"mood": "content", "energy_level": 6})
	h.call(t, "track_expense", map[string]interface{}{"amount": 60, "category": "transport", "description": "auto"})

	res = h.call(t, "get_daily_summary", map[string]interface{}{})
	assert.Equal(t, "positive", res.Data["mood_trend"])
	assert.Equal(t, 20, res.Data["total_active_minutes"])
	assert.Equal(t, 60.0, res.Data["expenses_total"])
}

func TestPickSuggestions(t *testing.T) {
	tests := []struct {
		name      string
		slot      string
		energy    int
		mood      string
		interests []string
		wantFirst string
	}{
		{"lonely favours calls", "afternoon", 5, "lonely", nil, "Calling a friend or family member for a chat"},
		{"interests win", "morning", 5, "happy", []string{"gardening"}, "Tending to the plants"},
		{"low energy stays calm", "evening", 2, "tired", []string{"walk"}, "Reading a few chapters of a favourite book"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pickSuggestions(tt.slot, tt.energy, tt.mood, tt.interests, 3)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.wantFirst, got[0].Title)
			for _, s := range got {
				if tt.energy <= 3 {
					assert.Zero(t, s.Energy)
				}
			}
		})
	}
}
