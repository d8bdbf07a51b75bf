package models

import (
	"time"
)

// Preference keys stored in UserProfile.Preferences.
const (
	PrefInterests        = "interests"
	PrefHealthConditions = "health_conditions"
	PrefMedications      = "medications"
	PrefEmergencyName    = "emergency_contact_name"
	PrefEmergencyPhone   = "emergency_contact_phone"
	PrefRoutine          = "daily_routine_preferences"
	PrefFamilyRecipients = "family_recipients"
)

// UserProfile is the long-lived identity record of the person using the companion.
type UserProfile struct {
	UserKey           string                 `bson:"_id" json:"user_key"`
	Name              string                 `bson:"name" json:"name"`
	Age               int                    `bson:"age,omitempty" json:"age,omitempty"`
	Location          string                 `bson:"location" json:"location"`
	Timezone          string                 `bson:"timezone" json:"timezone"`
	PreferredLanguage string                 `bson:"preferredLanguage" json:"preferred_language"`
	Preferences       map[string]interface{} `bson:"preferences" json:"preferences"`
	CreatedAt         time.Time              `bson:"createdAt" json:"created_at"`
	UpdatedAt         time.Time              `bson:"updatedAt" json:"updated_at"`
}

// Loc returns the profile's time zone, or fallback when unset or unknown.
func (p *UserProfile) Loc(fallback *time.Location) *time.Location {
	if p != nil && p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// StringList reads a preference that holds a list of strings.
// Values decoded from JSON or BSON arrive as []interface{} or primitive arrays, so both are accepted.
func (p *UserProfile) StringList(key string) []string {
	if p == nil || p.Preferences == nil {
		return nil
	}
	switch v := p.Preferences[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// String reads a string preference.
func (p *UserProfile) String(key string) string {
	if p == nil || p.Preferences == nil {
		return ""
	}
	if s, ok := p.Preferences[key].(string); ok {
		return s
	}
	return ""
}

// SetPreference sets one preference value, allocating the map on first use.
func (p *UserProfile) SetPreference(key string, value interface{}) {
	if p.Preferences == nil {
		p.Preferences = make(map[string]interface{})
	}
	p.Preferences[key] = value
}
