// Package store is the typed record surface shared by conversation turns,
// tools and scheduler jobs. Every query is scoped by user key, and every
// mutation is a single atomic statement against one record.
package store

import (
	"context"
	"errors"
	"time"

	"amble/internal/models"
)

// ErrNotFound is returned when a record does not exist for the given user.
var ErrNotFound = errors.New("record not found")

// Range bounds a time-ordered query. Zero Since/Until means unbounded; zero Limit means no limit.
type Range struct {
	Since time.Time
	Until time.Time
	Limit int
}

// Recent returns a range over the last d before now.
func Recent(now time.Time, d time.Duration) Range {
	return Range{Since: now.Add(-d), Until: now}
}

// Latest returns an unbounded range limited to the n newest records.
func Latest(n int) Range {
	return Range{Limit: n}
}

// AppointmentFilter narrows ListAppointments. Results are ordered by DateTime
// ascending unless Newest is set, which orders by creation time descending.
type AppointmentFilter struct {
	Status models.AppointmentStatus // empty matches every status
	From   time.Time
	To     time.Time
	Newest bool
	Limit  int
}

// FactQuery narrows SearchFacts. Terms match case-insensitively; any term matching selects the fact.
type FactQuery struct {
	Category models.FactCategory
	Terms    []string
	Limit    int
}

// ProfileUpdate changes individual profile fields in place. Nil fields and
// preference keys that are absent are left as stored.
type ProfileUpdate struct {
	Name              *string
	Age               *int
	Location          *string
	Timezone          *string
	PreferredLanguage *string
	Preferences       map[string]interface{}
	UpdatedAt         time.Time
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Age == nil && u.Location == nil && u.Timezone == nil &&
		u.PreferredLanguage == nil && len(u.Preferences) == 0
}

// Apply copies the update onto p.
func (u ProfileUpdate) Apply(p *models.UserProfile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Location != nil {
		p.Location = *u.Location
	}
	if u.Timezone != nil {
		p.Timezone = *u.Timezone
	}
	if u.PreferredLanguage != nil {
		p.PreferredLanguage = *u.PreferredLanguage
	}
	for k, v := range u.Preferences {
		p.SetPreference(k, v)
	}
	if !u.UpdatedAt.IsZero() {
		p.UpdatedAt = u.UpdatedAt
	}
}

// ProfileStore holds user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userKey string) (*models.UserProfile, error)
	UpsertProfile(ctx context.Context, p *models.UserProfile) error
	// UpdateProfileFields writes only the fields named by u and returns the
	// stored profile. It returns ErrNotFound when the user has no profile.
	UpdateProfileFields(ctx context.Context, userKey string, u ProfileUpdate) (*models.UserProfile, error)
	ListUserKeys(ctx context.Context) ([]string, error)
}

// EntryStore holds the append-only tracked entries. List methods return newest first.
type EntryStore interface {
	AddExpense(ctx context.Context, e *models.Expense) error
	ListExpenses(ctx context.Context, userKey string, r Range) ([]models.Expense, error)

	AddMood(ctx context.Context, m *models.MoodEntry) error
	ListMoods(ctx context.Context, userKey string, r Range) ([]models.MoodEntry, error)

	AddActivity(ctx context.Context, a *models.Activity) error
	ListActivities(ctx context.Context, userKey string, r Range) ([]models.Activity, error)
}

// AppointmentStore holds appointments and their two guarded transitions.
type AppointmentStore interface {
	AddAppointment(ctx context.Context, a *models.Appointment) error
	GetAppointment(ctx context.Context, userKey, id string) (*models.Appointment, error)
	ListAppointments(ctx context.Context, userKey string, f AppointmentFilter) ([]models.Appointment, error)
	// CancelAppointment moves a scheduled appointment to cancelled. It reports
	// whether this call made the change; an already cancelled appointment is
	// (false, nil) and an unknown id is ErrNotFound.
	CancelAppointment(ctx context.Context, userKey, id string) (bool, error)
	// ClaimReminder sets the reminded flag on a scheduled appointment and
	// reports whether this caller won the flag.
	ClaimReminder(ctx context.Context, userKey, id string) (bool, error)
}

// AlertStore holds routed alerts. Only the Alert Router writes them.
type AlertStore interface {
	AddAlert(ctx context.Context, a *models.Alert) error
	ListAlerts(ctx context.Context, userKey string, r Range) ([]models.Alert, error)
	MarkAlertRead(ctx context.Context, userKey, id string) error
}

// FactStore is the exact-match fact ledger.
type FactStore interface {
	AddFact(ctx context.Context, f *models.Fact) error
	SearchFacts(ctx context.Context, userKey string, q FactQuery) ([]models.Fact, error)
}

// TranscriptStore persists completed turns.
type TranscriptStore interface {
	AddTurn(ctx context.Context, t *models.TurnRecord) error
	ListTurns(ctx context.Context, userKey string, r Range) ([]models.TurnRecord, error)
}

// Store is the full record surface.
type Store interface {
	ProfileStore
	EntryStore
	AppointmentStore
	AlertStore
	FactStore
	TranscriptStore
	Close() error
}

// JobState is the durable lastRun table behind scheduler idempotency.
type JobState interface {
	LastRun(ctx context.Context, job, userKey string) (time.Time, bool, error)
	SetLastRun(ctx context.Context, job, userKey string, at time.Time) error
}
