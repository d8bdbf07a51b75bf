package tools

import (
	"context"
	"time"

	"github.com/google/uuid"

	"amble/internal/models"
	"amble/internal/session"
	"amble/internal/store"
	"amble/internal/wellness"
)

// Analyzer is the wellness pattern analysis the tools expose.
type Analyzer interface {
	Analyze(ctx context.Context, userKey string, lookbackDays int, now time.Time) (*wellness.Report, error)
}

// AlertRouter records and delivers alerts.
type AlertRouter interface {
	Route(ctx context.Context, userKey, message string, urgency models.Urgency, category string) (bool, *models.Alert, error)
}

// Deps are the collaborators behind the domain tools.
type Deps struct {
	Store      store.Store
	Analyzer   Analyzer
	Router     AlertRouter
	DefaultLoc *time.Location
}

type domainTools struct {
	Deps
}

// NewDomainRegistry registers every companion tool against deps.
func NewDomainRegistry(deps Deps) *Registry {
	if deps.DefaultLoc == nil {
		deps.DefaultLoc = time.UTC
	}
	d := &domainTools{Deps: deps}
	r := NewRegistry()

	for _, t := range []*Tool{
		d.getUserProfileTool(),
		d.updateUserProfileTool(),
		d.trackExpenseTool(),
		d.expenseSummaryTool(),
		d.trackMoodTool(),
		d.moodHistoryTool(),
		d.recordActivityTool(),
		d.activityHistoryTool(),
		d.scheduleAppointmentTool(),
		d.upcomingAppointmentsTool(),
		d.cancelAppointmentTool(),
		d.analyzeWellnessTool(),
		d.sendFamilyAlertTool(),
		d.familyAlertsHistoryTool(),
		d.rememberFactTool(),
		d.recallMemoriesTool(),
		d.dailySummaryTool(),
		d.activitySuggestionsTool(),
	} {
		_ = r.Register(t)
	}
	return r
}

// location resolves the user's timezone from the session, then the stored
// profile, then the configured default.
func (d *domainTools) location(ctx context.Context, inv Invocation) *time.Location {
	if inv.State != nil {
		if tz := inv.State.GetString(session.KeyUserTimezone); tz != "" {
			if loc, err := time.LoadLocation(tz); err == nil {
				return loc
			}
		}
	}
	if p, err := d.Store.GetProfile(ctx, inv.UserKey); err == nil {
		return p.Loc(d.DefaultLoc)
	}
	return d.DefaultLoc
}

func startOfDay(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, t.Location())
}

func daysOrDefault(days, def int) int {
	if days <= 0 {
		return def
	}
	if days > 365 {
		return 365
	}
	return days
}

func newID() string {
	return uuid.New().String()
}
