// Package wellness derives concern signals from a user's recent moods,
// activities, appointments and alerts.
package wellness

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"amble/internal/models"
	"amble/internal/store"
)

// Signal kinds, in the order a report lists them.
const (
	KindMoodDecline        = "mood_decline"
	KindActivityDrop       = "activity_drop"
	KindSocialIsolation    = "social_isolation"
	KindMissedAppointments = "missed_appointments"
	KindLowEnergy          = "low_energy"
)

const (
	DefaultLookbackDays = 7
	MaxLookbackDays     = 90

	moodDeclineThreshold  = 0.75
	activityDropThreshold = 0.5
	lowEnergyThreshold    = 4.0
)

// Signal is one detected concern.
type Signal struct {
	Kind            string         `json:"kind"`
	Severity        models.Urgency `json:"severity"`
	Value           float64        `json:"value"`
	Threshold       float64        `json:"threshold"`
	Message         string         `json:"message"`
	SuggestedAction string         `json:"suggested_action"`
}

// Summary holds the window's headline numbers.
type Summary struct {
	Activities    int     `json:"activities"`
	ActiveMinutes int     `json:"active_minutes"`
	ActiveDays    int     `json:"active_days"`
	MoodsLogged   int     `json:"moods_logged"`
	AverageEnergy float64 `json:"average_energy"`
	Appointments  int     `json:"appointments"`
}

// Report is the analyzer output for one user and window.
type Report struct {
	UserKey      string    `json:"user_key"`
	LookbackDays int       `json:"lookback_days"`
	GeneratedAt  time.Time `json:"generated_at"`
	Signals      []Signal  `json:"signals"`
	Summary      Summary   `json:"summary"`
}

// Records is the read surface the analyzer needs.
type Records interface {
	ListMoods(ctx context.Context, userKey string, r store.Range) ([]models.MoodEntry, error)
	ListActivities(ctx context.Context, userKey string, r store.Range) ([]models.Activity, error)
	ListAppointments(ctx context.Context, userKey string, f store.AppointmentFilter) ([]models.Appointment, error)
	ListAlerts(ctx context.Context, userKey string, r store.Range) ([]models.Alert, error)
}

// Analyzer is stateless apart from its record source.
type Analyzer struct {
	records Records
}

func NewAnalyzer(records Records) *Analyzer {
	return &Analyzer{records: records}
}

// ClampLookback applies the default and the upper bound.
func ClampLookback(days int) int {
	if days <= 0 {
		return DefaultLookbackDays
	}
	if days > MaxLookbackDays {
		return MaxLookbackDays
	}
	return days
}

// Analyze inspects the lookback window ending at now. The result depends only
// on the stored records and now.
func (a *Analyzer) Analyze(ctx context.Context, userKey string, lookbackDays int, now time.Time) (*Report, error) {
	days := ClampLookback(lookbackDays)
	window := time.Duration(days) * 24 * time.Hour
	start := now.Add(-window)
	rng := store.Range{Since: start, Until: now}

	moods, err := a.records.ListMoods(ctx, userKey, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to load moods: %w", err)
	}
	activities, err := a.records.ListActivities(ctx, userKey, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}
	appts, err := a.records.ListAppointments(ctx, userKey, store.AppointmentFilter{
		Status: models.AppointmentScheduled, From: start, To: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}
	alerts, err := a.records.ListAlerts(ctx, userKey, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	sortMoods(moods)
	sortActivities(activities)

	report := &Report{
		UserKey:      userKey,
		LookbackDays: days,
		GeneratedAt:  now,
		Signals:      []Signal{},
		Summary:      summarize(moods, activities, appts, now.Location()),
	}

	alerted := make(map[string]bool, len(alerts))
	for _, al := range alerts {
		alerted[al.Category] = true
	}
	emit := func(s *Signal, excess float64) {
		if s == nil {
			return
		}
		s.Severity = severity(excess)
		if alerted[s.Kind] {
			s.Severity = s.Severity.Escalate()
		}
		report.Signals = append(report.Signals, *s)
	}

	emit(moodDecline(moods, start, now))
	emit(activityDrop(activities, days, now))
	emit(socialIsolation(activities, days))
	emit(missedAppointments(appts, activities, moods, now))
	emit(lowEnergy(moods))

	return report, nil
}

// severity maps the relative excess over a threshold to an urgency.
func severity(excess float64) models.Urgency {
	switch {
	case excess < 0.5:
		return models.UrgencyLow
	case excess < 1:
		return models.UrgencyMedium
	case excess < 2:
		return models.UrgencyHigh
	default:
		return models.UrgencyCritical
	}
}

func moodDecline(moods []models.MoodEntry, start, now time.Time) (*Signal, float64) {
	mid := start.Add(now.Sub(start) / 2)
	var firstSum, secondSum float64
	var firstN, secondN int
	for _, m := range moods {
		if m.CreatedAt.Before(mid) {
			firstSum += m.Mood.Valence()
			firstN++
		} else {
			secondSum += m.Mood.Valence()
			secondN++
		}
	}
	if firstN == 0 || secondN == 0 {
		return nil, 0
	}
	drop := firstSum/float64(firstN) - secondSum/float64(secondN)
	if drop < moodDeclineThreshold {
		return nil, 0
	}
	return &Signal{
		Kind:            KindMoodDecline,
		Value:           round2(drop),
		Threshold:       moodDeclineThreshold,
		Message:         "I've noticed you've been feeling lower lately than earlier in the week. I'm here for you. Would you like to talk?",
		SuggestedAction: "Consider talking to a loved one or professional",
	}, (drop - moodDeclineThreshold) / moodDeclineThreshold
}

func activityDrop(activities []models.Activity, days int, now time.Time) (*Signal, float64) {
	if len(activities) == 0 {
		return nil, 0
	}
	expected := 2 * float64(len(activities)) / float64(days)
	recentStart := now.Add(-48 * time.Hour)
	recent := 0
	for _, a := range activities {
		if !a.CreatedAt.Before(recentStart) {
			recent++
		}
	}
	ratio := float64(recent) / expected
	if ratio >= activityDropThreshold {
		return nil, 0
	}
	return &Signal{
		Kind:            KindActivityDrop,
		Value:           round2(ratio),
		Threshold:       activityDropThreshold,
		Message:         "I noticed you've been less active over the last couple of days. Would a gentle stroll today be nice?",
		SuggestedAction: "Consider a 15-minute walk today",
	}, (1-ratio)/activityDropThreshold - 1
}

func socialIsolation(activities []models.Activity, days int) (*Signal, float64) {
	for _, a := range activities {
		if a.Type.IsSocial() {
			return nil, 0
		}
	}
	return &Signal{
		Kind:            KindSocialIsolation,
		Value:           0,
		Threshold:       1,
		Message:         fmt.Sprintf("It seems you haven't had much social contact in the last %d days. Would you like to call someone?", days),
		SuggestedAction: "Consider calling a friend or family member",
	}, float64(days)/7 - 0.5
}

func missedAppointments(appts []models.Appointment, activities []models.Activity, moods []models.MoodEntry, now time.Time) (*Signal, float64) {
	var corpus []string
	for _, a := range activities {
		corpus = append(corpus, strings.ToLower(a.Name+" "+a.Notes))
	}
	for _, m := range moods {
		corpus = append(corpus, strings.ToLower(m.Details))
	}

	var missed []string
	for _, ap := range appts {
		if !ap.DateTime.Before(now) {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(ap.Title))
		id := strings.ToLower(ap.ID)
		seen := false
		for _, text := range corpus {
			if (title != "" && strings.Contains(text, title)) || (id != "" && strings.Contains(text, id)) {
				seen = true
				break
			}
		}
		if !seen {
			missed = append(missed, ap.Title)
		}
	}
	if len(missed) == 0 {
		return nil, 0
	}
	n := len(missed)
	return &Signal{
		Kind:            KindMissedAppointments,
		Value:           float64(n),
		Threshold:       1,
		Message:         fmt.Sprintf("I couldn't find any note about %d past appointment(s): %s. Did they go well?", n, strings.Join(missed, ", ")),
		SuggestedAction: "Confirm whether the appointments were attended and reschedule if needed",
	}, float64(n-1) / 2
}

func lowEnergy(moods []models.MoodEntry) (*Signal, float64) {
	if len(moods) == 0 {
		return nil, 0
	}
	avg := averageEnergy(moods)
	if avg >= lowEnergyThreshold {
		return nil, 0
	}
	return &Signal{
		Kind:            KindLowEnergy,
		Value:           round2(avg),
		Threshold:       lowEnergyThreshold,
		Message:         "Your energy levels have been lower than usual. Are you getting enough rest?",
		SuggestedAction: "Ensure adequate sleep and hydration",
	}, (lowEnergyThreshold - avg) / lowEnergyThreshold
}

func summarize(moods []models.MoodEntry, activities []models.Activity, appts []models.Appointment, loc *time.Location) Summary {
	s := Summary{
		Activities:   len(activities),
		MoodsLogged:  len(moods),
		Appointments: len(appts),
	}
	days := map[string]bool{}
	for _, a := range activities {
		s.ActiveMinutes += a.DurationMinutes
		days[a.CreatedAt.In(loc).Format("2006-01-02")] = true
	}
	s.ActiveDays = len(days)
	if len(moods) > 0 {
		s.AverageEnergy = round2(averageEnergy(moods))
	}
	return s
}

func averageEnergy(moods []models.MoodEntry) float64 {
	total := 0
	for _, m := range moods {
		total += m.EnergyLevel
	}
	return float64(total) / float64(len(moods))
}

func sortMoods(m []models.MoodEntry) {
	sort.SliceStable(m, func(i, j int) bool {
		if !m[i].CreatedAt.Equal(m[j].CreatedAt) {
			return m[i].CreatedAt.Before(m[j].CreatedAt)
		}
		return m[i].ID < m[j].ID
	})
}

func sortActivities(a []models.Activity) {
	sort.SliceStable(a, func(i, j int) bool {
		if !a[i].CreatedAt.Equal(a[j].CreatedAt) {
			return a[i].CreatedAt.Before(a[j].CreatedAt)
		}
		return a[i].ID < a[j].ID
	})
}

func round2(v float64) float64 {
	if v < 0 {
		return -round2(-v)
	}
	return float64(int64(v*100+0.5)) / 100
}
