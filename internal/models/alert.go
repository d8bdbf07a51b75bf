package models

import (
	"fmt"
	"time"
)

// Urgency controls how widely an alert is delivered.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Urgencies lists every level from least to most urgent.
var Urgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}

// ParseUrgency validates an urgency level.
func ParseUrgency(s string) (Urgency, error) {
	for _, u := range Urgencies {
		if string(u) == s {
			return u, nil
		}
	}
	return "", fmt.Errorf("invalid urgency %q", s)
}

// Rank orders urgencies; low is 0.
func (u Urgency) Rank() int {
	for i, v := range Urgencies {
		if v == u {
			return i
		}
	}
	return 0
}

// Escalate returns the next level up, saturating at critical.
func (u Urgency) Escalate() Urgency {
	r := u.Rank()
	if r+1 >= len(Urgencies) {
		return UrgencyCritical
	}
	return Urgencies[r+1]
}

// Alert categories used by jobs and the analyzer. Tools may send any category.
const (
	AlertCategoryGreeting     = "greeting"
	AlertCategoryCheckIn      = "check_in"
	AlertCategoryMedication   = "medication"
	AlertCategoryAppointment  = "appointment"
	AlertCategoryInactivity   = "inactivity"
	AlertCategoryWellness     = "wellness"
	AlertCategoryWeeklyReport = "weekly_summary"
)

// Alert is the durable record of a routed message.
type Alert struct {
	ID        string    `bson:"_id" json:"id"`
	UserKey   string    `bson:"userKey" json:"user_key"`
	Message   string    `bson:"message" json:"message"`
	Urgency   Urgency   `bson:"urgency" json:"urgency"`
	Category  string    `bson:"category" json:"category"`
	Read      bool      `bson:"read" json:"read"`
	CreatedAt time.Time `bson:"createdAt" json:"timestamp"`
}
