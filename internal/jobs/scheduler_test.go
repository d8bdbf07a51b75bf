package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"amble/internal/database"
	"amble/internal/models"
	"amble/internal/store"
	"amble/internal/wellness"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// recordingRouter stores alerts stamped with the test clock.
type recordingRouter struct {
	st    store.AlertStore
	clock *clock
	mu    sync.Mutex
	sent  []models.Alert
}

func (r *recordingRouter) Route(ctx context.Context, userKey, message string, urgency models.Urgency, category string) (bool, *models.Alert, error) {
	a := &models.Alert{ID: uuid.New().String(), UserKey: userKey, Message: message, Urgency: urgency, Category: category, CreatedAt: r.clock.Now().UTC()}
	if err := r.st.AddAlert(ctx, a); err != nil {
		return false, nil, err
	}
	r.mu.Lock()
	r.sent = append(r.sent, *a)
	r.mu.Unlock()
	return true, a, nil
}

func (r *recordingRouter) byCategory(category string) []models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Alert
	for _, a := range r.sent {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

type env struct {
	path   string
	store  *store.SQLStore
	clock  *clock
	router *recordingRouter
	loc    *time.Location
}

func newEnv(t *testing.T) *env {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	e := &env{path: filepath.Join(t.TempDir(), "jobs.db"), loc: loc}
	e.store = openStore(t, e.path)
	e.clock = &clock{now: time.Date(2026, 3, 10, 8, 5, 0, 0, loc)}
	e.router = &recordingRouter{st: e.store, clock: e.clock}

	p := &models.UserProfile{UserKey: "u1", Name: "Asha", Location: "Pune", Timezone: "Asia/Kolkata", CreatedAt: e.clock.Now()}
	p.SetPreference(models.PrefMedications, []string{"Metformin 500mg"})
	require.NoError(t, e.store.UpsertProfile(context.Background(), p))
	return e
}

func openStore(t *testing.T, path string) *store.SQLStore {
	t.Helper()
	db, err := database.New(path)
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	st := store.NewSQLStore(db)
	t.Cleanup(func() { st.Close() })
	return st
}

func (e *env) scheduler(st *store.SQLStore, router AlertRouter) *JobScheduler {
	s := NewJobScheduler(Options{
		Profiles:   st,
		State:      st,
		Tick:       time.Minute,
		DefaultLoc: time.UTC,
		Now:        e.clock.Now,
	})
	for _, j := range CompanionJobs(CompanionDeps{Store: st, Router: router, Analyzer: wellness.NewAnalyzer(st), Grace: time.Hour}) {
		s.Register(j)
	}
	return s
}

func TestCronTriggerDue(t *testing.T) {
	trig := mustCron("0 8 * * *", time.Hour)
	slot := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		now     time.Time
		last    time.Time
		hasRun  bool
		wantDue bool
	}{
		{"before slot", slot.Add(-time.Minute), time.Time{}, false, false},
		{"at slot", slot, time.Time{}, false, true},
		{"within grace", slot.Add(59 * time.Minute), slot.Add(-24 * time.Hour), true, true},
		{"already ran slot", slot.Add(10 * time.Minute), slot, true, false},
		{"past grace", slot.Add(2 * time.Hour), time.Time{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mark, due := trig.Due(tt.now, time.UTC, tt.last, tt.hasRun)
			if due != tt.wantDue {
				t.Fatalf("Expected due: %v, got: %v", tt.wantDue, due)
			}
			if due && !mark.Equal(slot) {
				t.Errorf("Expected mark: %v, got: %v", slot, mark)
			}
		})
	}
}

func TestPeriodTriggerDue(t *testing.T) {
	trig := PeriodTrigger{Period: 4 * time.Hour}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, due := trig.Due(now, time.UTC, time.Time{}, false)
	assert.True(t, due, "never run")
	_, due = trig.Due(now, time.UTC, now.Add(-3*time.Hour), true)
	assert.False(t, due)
	_, due = trig.Due(now, time.UTC, now.Add(-4*time.Hour), true)
	assert.True(t, due)
}

func TestTickIsIdempotent(t *testing.T) {
	e := newEnv(t)
	s := e.scheduler(e.store, e.router)
	ctx := context.Background()

	s.Tick(ctx)
	e.clock.Set(e.clock.Now().Add(time.Minute))
	s.Tick(ctx)

	assert.Len(t, e.router.byCategory(models.AlertCategoryGreeting), 1)
}

func TestTickSurvivesRestart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.scheduler(e.store, e.router).Tick(ctx)
	require.Len(t, e.router.byCategory(models.AlertCategoryGreeting), 1)

	// A fresh process over the same database must not greet again for this slot.
	reopened := openStore(t, e.path)
	router := &recordingRouter{st: reopened, clock: e.clock}
	e.clock.Set(e.clock.Now().Add(10 * time.Minute))
	e.scheduler(reopened, router).Tick(ctx)
	assert.Empty(t, router.byCategory(models.AlertCategoryGreeting))

	// The next day's slot fires.
	e.clock.Set(e.clock.Now().Add(24 * time.Hour))
	e.scheduler(reopened, router).Tick(ctx)
	assert.Len(t, router.byCategory(models.AlertCategoryGreeting), 1)
}

func TestMedicationReminderAtNine(t *testing.T) {
	e := newEnv(t)
	e.clock.Set(time.Date(2026, 3, 10, 9, 1, 0, 0, e.loc))

	e.scheduler(e.store, e.router).Tick(context.Background())

	meds := e.router.byCategory(models.AlertCategoryMedication)
	require.Len(t, meds, 1)
	assert.Equal(t, models.UrgencyMedium, meds[0].Urgency)
	assert.Contains(t, meds[0].Message, "Metformin 500mg")
}

func TestAfternoonCheckInOnlyWhenInactive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.clock.Set(time.Date(2026, 3, 10, 14, 2, 0, 0, e.loc))

	require.NoError(t, e.store.AddActivity(ctx, &models.Activity{
		ID: "a1", UserKey: "u1", Name: "Walk", Type: models.ActivityWalking, DurationMinutes: 20,
		CreatedAt: time.Date(2026, 3, 10, 7, 0, 0, 0, e.loc),
	}))
	e.scheduler(e.store, e.router).Tick(ctx)
	assert.Empty(t, e.router.byCategory(models.AlertCategoryCheckIn))

	e.clock.Set(time.Date(2026, 3, 11, 14, 2, 0, 0, e.loc))
	e.scheduler(e.store, e.router).Tick(ctx)
	assert.Len(t, e.router.byCategory(models.AlertCategoryCheckIn), 1)
}

func TestAppointmentReminderDedup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.clock.Set(time.Date(2026, 3, 10, 18, 0, 0, 0, e.loc))

	require.NoError(t, e.store.AddAppointment(ctx, &models.Appointment{
		ID: "ap1", UserKey: "u1", Title: "Eye check-up", Type: models.AppointmentDoctor,
		DateTime: time.Date(2026, 3, 11, 10, 30, 0, 0, e.loc), Location: "City Clinic",
		Status: models.AppointmentScheduled, CreatedAt: e.clock.Now(),
	}))

	// Two instances ticking at once still send exactly one reminder.
	a := e.scheduler(e.store, e.router)
	b := e.scheduler(e.store, e.router)
	var wg sync.WaitGroup
	for _, s := range []*JobScheduler{a, b} {
		wg.Add(1)
		go func(s *JobScheduler) {
			defer wg.Done()
			s.Tick(ctx)
		}(s)
	}
	wg.Wait()
	a.Tick(ctx)

	reminders := e.router.byCategory(models.AlertCategoryAppointment)
	require.Len(t, reminders, 1)
	assert.Equal(t, "Reminder: Eye check-up tomorrow at 10:30 AM at City Clinic.", reminders[0].Message)
}

func TestInactivityCheck(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.scheduler(e.store, e.router)

	// No activity ever: skipped.
	s.Tick(ctx)
	assert.Empty(t, e.router.byCategory(models.AlertCategoryInactivity))

	last := e.clock.Now()
	require.NoError(t, e.store.AddActivity(ctx, &models.Activity{
		ID: "a1", UserKey: "u1", Name: "Walk", Type: models.ActivityWalking, CreatedAt: last,
	}))

	e.clock.Set(last.Add(5 * time.Hour))
	_, err := s.RunNow(ctx, InactivityCheck)
	require.NoError(t, err)
	nudges := e.router.byCategory(models.AlertCategoryInactivity)
	require.Len(t, nudges, 1)
	assert.Equal(t, models.UrgencyLow, nudges[0].Urgency)

	e.clock.Set(last.Add(25 * time.Hour))
	_, err = s.RunNow(ctx, InactivityCheck)
	require.NoError(t, err)
	all := e.router.byCategory(models.AlertCategoryInactivity)
	require.Len(t, all, 2)
	assert.Equal(t, models.UrgencyCritical, all[1].Urgency)

	// The critical alert goes out once per stretch of inactivity.
	e.clock.Set(last.Add(30 * time.Hour))
	_, err = s.RunNow(ctx, InactivityCheck)
	require.NoError(t, err)
	all = e.router.byCategory(models.AlertCategoryInactivity)
	require.Len(t, all, 3)
	assert.Equal(t, models.UrgencyLow, all[2].Urgency)
}

func TestWeeklyScanRoutesSummary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, e.store.AddActivity(ctx, &models.Activity{
			ID: uuid.New().String(), UserKey: "u1", Name: "Walk", Type: models.ActivityWalking, DurationMinutes: 60,
			CreatedAt: e.clock.Now().Add(-time.Duration(i+1) * 24 * time.Hour),
		}))
	}

	_, err := e.scheduler(e.store, e.router).RunNow(ctx, WeeklyWellnessScan)
	require.NoError(t, err)

	summaries := e.router.byCategory(models.AlertCategoryWeeklyReport)
	require.Len(t, summaries, 1)
	assert.Contains(t, summaries[0].Message, "180 active minutes")
	assert.Contains(t, summaries[0].Message, "weekly goal was met")

	// No social activity in the window.
	assert.Len(t, e.router.byCategory(wellness.KindSocialIsolation), 1)
}

type failingRouter struct{}

func (failingRouter) Route(context.Context, string, string, models.Urgency, string) (bool, *models.Alert, error) {
	return false, nil, errors.New("store down")
}

func TestFailedRunStillRecordsLastRun(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.scheduler(e.store, failingRouter{}).Tick(ctx)

	last, ok, err := e.store.LastRun(ctx, MorningGreeting, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(time.Date(2026, 3, 10, 8, 0, 0, 0, e.loc)))
}

// cancellingRouter records the alert and then cancels the tick context, as
// Stop does when it races a running job.
type cancellingRouter struct {
	*recordingRouter
	cancel context.CancelFunc
}

func (r cancellingRouter) Route(ctx context.Context, userKey, message string, urgency models.Urgency, category string) (bool, *models.Alert, error) {
	ok, a, err := r.recordingRouter.Route(ctx, userKey, message, urgency, category)
	r.cancel()
	return ok, a, err
}

func TestCancelledRunStillRecordsLastRun(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.scheduler(e.store, cancellingRouter{recordingRouter: e.router, cancel: cancel}).Tick(ctx)
	require.Len(t, e.router.byCategory(models.AlertCategoryGreeting), 1)

	last, ok, err := e.store.LastRun(context.Background(), MorningGreeting, "u1")
	require.NoError(t, err)
	require.True(t, ok, "last run must be recorded after the alert went out")
	assert.True(t, last.Equal(time.Date(2026, 3, 10, 8, 0, 0, 0, e.loc)))

	// A restarted scheduler does not greet twice for the same slot.
	e.clock.Set(e.clock.Now().Add(5 * time.Minute))
	e.scheduler(e.store, e.router).Tick(context.Background())
	assert.Len(t, e.router.byCategory(models.AlertCategoryGreeting), 1)
}

func TestRunNowUnknownJob(t *testing.T) {
	e := newEnv(t)
	_, err := e.scheduler(e.store, e.router).RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestGetStatus(t *testing.T) {
	e := newEnv(t)
	status := e.scheduler(e.store, e.router).GetStatus()
	require.Len(t, status, 6)
	assert.Equal(t, AfternoonCheckIn, status[0].Name)
	assert.Equal(t, "cron 0 14 * * *", status[0].Schedule)
}

func TestStartStopDoesNotLeak(t *testing.T) {
	e := newEnv(t)
	s := e.scheduler(e.store, e.router)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()
}
