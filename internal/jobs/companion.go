package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"amble/internal/models"
	"amble/internal/store"
	"amble/internal/wellness"
)

// Job names.
const (
	MorningGreeting     = "morning_greeting"
	AfternoonCheckIn    = "afternoon_checkin"
	MedicationReminder  = "medication_reminder"
	AppointmentReminder = "appointment_reminder"
	InactivityCheck     = "inactivity_check"
	WeeklyWellnessScan  = "weekly_wellness_scan"
)

const (
	inactivityNudgeAfter = 4 * time.Hour
	inactivityAlertAfter = 24 * time.Hour
	reminderLeadTime     = 2 * time.Hour
	weeklyActiveMinutes  = 150
)

// AlertRouter is the only way jobs reach the user or the family.
type AlertRouter interface {
	Route(ctx context.Context, userKey, message string, urgency models.Urgency, category string) (bool, *models.Alert, error)
}

// Analyzer produces the weekly wellness report.
type Analyzer interface {
	Analyze(ctx context.Context, userKey string, lookbackDays int, now time.Time) (*wellness.Report, error)
}

// CompanionDeps are the collaborators of the companion jobs.
type CompanionDeps struct {
	Store    store.Store
	Router   AlertRouter
	Analyzer Analyzer
	Grace    time.Duration
}

type companion struct {
	CompanionDeps
}

// CompanionJobs returns the six proactive jobs in evaluation order.
func CompanionJobs(deps CompanionDeps) []*Job {
	c := &companion{CompanionDeps: deps}
	return []*Job{
		{
			Name:        MorningGreeting,
			Description: "Personalised good-morning message with today's appointments",
			Trigger:     mustCron("0 8 * * *", deps.Grace),
			Run:         c.morningGreeting,
		},
		{
			Name:        AfternoonCheckIn,
			Description: "Gentle check-in when nothing has been logged today",
			Trigger:     mustCron("0 14 * * *", deps.Grace),
			Run:         c.afternoonCheckIn,
		},
		{
			Name:        MedicationReminder,
			Description: "Medication reminder for users with medications on their profile",
			Trigger:     mustCron("0 9,14,20 * * *", deps.Grace),
			Run:         c.medicationReminder,
		},
		{
			Name:        AppointmentReminder,
			Description: "One reminder per appointment, the day before or two hours ahead",
			Trigger:     EveryTick{},
			Run:         c.appointmentReminder,
		},
		{
			Name:        InactivityCheck,
			Description: "Nudge after 4h without activity, family alert after 24h",
			Trigger:     PeriodTrigger{Period: 4 * time.Hour},
			Run:         c.inactivityCheck,
		},
		{
			Name:        WeeklyWellnessScan,
			Description: "Weekly pattern analysis and wellness summary",
			Trigger:     PeriodTrigger{Period: 7 * 24 * time.Hour},
			Run:         c.weeklyScan,
		},
	}
}

func displayName(p *models.UserProfile) string {
	if p == nil || p.Name == "" {
		return "Friend"
	}
	return p.Name
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (c *companion) morningGreeting(ctx context.Context, u UserRun) error {
	local := u.Now.In(u.Loc)
	day := startOfDay(local)
	appts, err := c.Store.ListAppointments(ctx, u.UserKey, store.AppointmentFilter{
		Status: models.AppointmentScheduled,
		From:   u.Now,
		To:     day.AddDate(0, 0, 1),
	})
	if err != nil {
		return fmt.Errorf("failed to load today's appointments: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Good morning, %s! I hope you slept well.", displayName(u.Profile))
	switch len(appts) {
	case 0:
		b.WriteString(" Nothing is scheduled today, so it's a good day for something you enjoy.")
	case 1:
		fmt.Fprintf(&b, " You have %s at %s today.", appts[0].Title, appts[0].DateTime.In(u.Loc).Format("3:04 PM"))
	default:
		fmt.Fprintf(&b, " You have %d appointments today; the first is %s at %s.",
			len(appts), appts[0].Title, appts[0].DateTime.In(u.Loc).Format("3:04 PM"))
	}

	_, _, err = c.Router.Route(ctx, u.UserKey, b.String(), models.UrgencyLow, models.AlertCategoryGreeting)
	return err
}

func (c *companion) afternoonCheckIn(ctx context.Context, u UserRun) error {
	today := store.Range{Since: startOfDay(u.Now.In(u.Loc)), Until: u.Now, Limit: 1}
	acts, err := c.Store.ListActivities(ctx, u.UserKey, today)
	if err != nil {
		return fmt.Errorf("failed to load today's activities: %w", err)
	}
	if len(acts) > 0 {
		u.Logger.Debug("user already active today, skipping check-in")
		return nil
	}

	msg := fmt.Sprintf("Good afternoon, %s. How has your day been? A short walk or a call with someone you love might be nice.", displayName(u.Profile))
	_, _, err = c.Router.Route(ctx, u.UserKey, msg, models.UrgencyLow, models.AlertCategoryCheckIn)
	return err
}

func (c *companion) medicationReminder(ctx context.Context, u UserRun) error {
	meds := u.Profile.StringList(models.PrefMedications)
	if len(meds) == 0 {
		return nil
	}
	msg := fmt.Sprintf("%s, it's time to check your medicines: %s.", displayName(u.Profile), strings.Join(meds, ", "))
	_, _, err := c.Router.Route(ctx, u.UserKey, msg, models.UrgencyMedium, models.AlertCategoryMedication)
	return err
}

// appointmentReminder relies on the reminded flag: whoever claims it sends.
func (c *companion) appointmentReminder(ctx context.Context, u UserRun) error {
	local := u.Now.In(u.Loc)
	tomorrow := startOfDay(local).AddDate(0, 0, 1)
	appts, err := c.Store.ListAppointments(ctx, u.UserKey, store.AppointmentFilter{
		Status: models.AppointmentScheduled,
		From:   u.Now,
		To:     tomorrow.AddDate(0, 0, 1),
	})
	if err != nil {
		return fmt.Errorf("failed to load appointments: %w", err)
	}

	var firstErr error
	for _, a := range appts {
		if a.Reminded {
			continue
		}
		at := a.DateTime.In(u.Loc)
		isTomorrow := startOfDay(at).Equal(tomorrow)
		soon := at.Sub(u.Now) <= reminderLeadTime
		if !isTomorrow && !soon {
			continue
		}

		won, err := c.Store.ClaimReminder(ctx, u.UserKey, a.ID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !won {
			continue
		}

		when := "tomorrow at " + at.Format("3:04 PM")
		if !isTomorrow {
			when = "today at " + at.Format("3:04 PM")
		}
		msg := fmt.Sprintf("Reminder: %s %s", a.Title, when)
		if a.Location != "" {
			msg += " at " + a.Location
		}
		msg += "."
		if _, _, err := c.Router.Route(ctx, u.UserKey, msg, models.UrgencyMedium, models.AlertCategoryAppointment); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *companion) inactivityCheck(ctx context.Context, u UserRun) error {
	latest, err := c.Store.ListActivities(ctx, u.UserKey, store.Latest(1))
	if err != nil {
		return fmt.Errorf("failed to load last activity: %w", err)
	}
	if len(latest) == 0 {
		return nil
	}
	last := latest[0].CreatedAt
	idle := u.Now.Sub(last)
	if idle < inactivityNudgeAfter {
		return nil
	}

	if idle >= inactivityAlertAfter {
		sent, err := c.alertedSince(ctx, u.UserKey, last)
		if err != nil {
			return err
		}
		if !sent {
			msg := fmt.Sprintf("%s has not logged any activity for %d hours. You may want to check in with them.",
				displayName(u.Profile), int(idle.Hours()))
			_, _, err := c.Router.Route(ctx, u.UserKey, msg, models.UrgencyCritical, models.AlertCategoryInactivity)
			return err
		}
	}

	msg := fmt.Sprintf("Hello %s, I haven't heard about your day in a while. Would you like to stretch your legs or tell me what you've been up to?", displayName(u.Profile))
	_, _, err = c.Router.Route(ctx, u.UserKey, msg, models.UrgencyLow, models.AlertCategoryInactivity)
	return err
}

// alertedSince reports whether a critical inactivity alert already went out
// for the current stretch of inactivity.
func (c *companion) alertedSince(ctx context.Context, userKey string, since time.Time) (bool, error) {
	alerts, err := c.Store.ListAlerts(ctx, userKey, store.Range{Since: since})
	if err != nil {
		return false, fmt.Errorf("failed to load alerts: %w", err)
	}
	for _, a := range alerts {
		if a.Category == models.AlertCategoryInactivity && a.Urgency == models.UrgencyCritical {
			return true, nil
		}
	}
	return false, nil
}

func (c *companion) weeklyScan(ctx context.Context, u UserRun) error {
	report, err := c.Analyzer.Analyze(ctx, u.UserKey, 7, u.Now)
	if err != nil {
		return fmt.Errorf("failed to analyse wellness: %w", err)
	}

	for _, sig := range report.Signals {
		if _, _, err := c.Router.Route(ctx, u.UserKey, sig.Message, sig.Severity, sig.Kind); err != nil {
			u.Logger.Warn("failed to route wellness signal", "kind", sig.Kind, "error", err)
		}
	}

	sum := report.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "Weekly summary for %s: %d activities on %d day(s), %d active minutes",
		displayName(u.Profile), sum.Activities, sum.ActiveDays, sum.ActiveMinutes)
	if sum.ActiveMinutes >= weeklyActiveMinutes {
		fmt.Fprintf(&b, " (the %d-minute weekly goal was met).", weeklyActiveMinutes)
	} else {
		fmt.Fprintf(&b, " (%d short of the %d-minute weekly goal).", weeklyActiveMinutes-sum.ActiveMinutes, weeklyActiveMinutes)
	}
	if sum.MoodsLogged > 0 {
		fmt.Fprintf(&b, " %d mood check-in(s), average energy %.1f/10.", sum.MoodsLogged, sum.AverageEnergy)
	}
	if n := len(report.Signals); n > 0 {
		fmt.Fprintf(&b, " %d concern(s) were flagged.", n)
	}

	_, _, err = c.Router.Route(ctx, u.UserKey, b.String(), models.UrgencyLow, models.AlertCategoryWeeklyReport)
	return err
}
