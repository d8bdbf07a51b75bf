// Package persona loads the template used to bootstrap a new user's profile
// and seed their first memories.
package persona

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"amble/internal/models"
)

//go:embed default_persona.yaml
var defaultPersona []byte

// Template is a bootstrap profile plus memories to seed.
type Template struct {
	Profile         ProfileTemplate `yaml:"profile"`
	InitialMemories []string        `yaml:"initial_memories"`
}

// ProfileTemplate mirrors the profile fields a template may set.
type ProfileTemplate struct {
	Name              string   `yaml:"name"`
	Age               int      `yaml:"age"`
	Location          string   `yaml:"location"`
	Timezone          string   `yaml:"timezone"`
	PreferredLanguage string   `yaml:"preferred_language"`
	Interests         []string `yaml:"interests"`
	HealthConditions  []string `yaml:"health_conditions"`
	Medications       []string `yaml:"medications"`
	EmergencyContact  struct {
		Name  string `yaml:"name"`
		Phone string `yaml:"phone"`
	} `yaml:"emergency_contact"`
	DailyRoutine     string   `yaml:"daily_routine"`
	FamilyRecipients []string `yaml:"family_recipients"`
}

// Fallback is used when no template can be read.
func Fallback() *Template {
	return &Template{
		Profile: ProfileTemplate{
			Name:              "Friend",
			Location:          "your city",
			PreferredLanguage: "en",
			Interests:         []string{"reading", "walking", "family time"},
		},
	}
}

// Default returns the embedded template.
func Default() *Template {
	t, err := parse(defaultPersona)
	if err != nil {
		log.Printf("⚠️ [PERSONA] Embedded template invalid, using fallback: %v", err)
		return Fallback()
	}
	return t
}

// Load reads a template file. An empty path selects the embedded template;
// an unreadable or invalid file degrades to the fallback.
func Load(path string) *Template {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("⚠️ [PERSONA] Failed to read %s, using fallback: %v", path, err)
		return Fallback()
	}
	t, err := parse(data)
	if err != nil {
		log.Printf("⚠️ [PERSONA] Failed to parse %s, using fallback: %v", path, err)
		return Fallback()
	}
	log.Printf("✅ [PERSONA] Loaded template from %s (%s)", path, t.Profile.Name)
	return t
}

func parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse persona YAML: %w", err)
	}
	if strings.TrimSpace(t.Profile.Name) == "" {
		return nil, fmt.Errorf("persona profile name is required")
	}
	return &t, nil
}

// NewProfile builds a profile for userKey from the template. An empty
// template timezone takes defaultTZ.
func (t *Template) NewProfile(userKey, defaultTZ string, now time.Time) *models.UserProfile {
	tp := t.Profile
	p := &models.UserProfile{
		UserKey:           userKey,
		Name:              tp.Name,
		Age:               tp.Age,
		Location:          tp.Location,
		Timezone:          tp.Timezone,
		PreferredLanguage: tp.PreferredLanguage,
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}
	if p.Timezone == "" {
		p.Timezone = defaultTZ
	}
	if p.Location == "" {
		p.Location = "your city"
	}
	if p.PreferredLanguage == "" {
		p.PreferredLanguage = "en"
	}

	setList := func(key string, v []string) {
		if len(v) > 0 {
			p.SetPreference(key, append([]string(nil), v...))
		}
	}
	setList(models.PrefInterests, tp.Interests)
	setList(models.PrefHealthConditions, tp.HealthConditions)
	setList(models.PrefMedications, tp.Medications)
	setList(models.PrefFamilyRecipients, tp.FamilyRecipients)
	if tp.EmergencyContact.Name != "" {
		p.SetPreference(models.PrefEmergencyName, tp.EmergencyContact.Name)
	}
	if tp.EmergencyContact.Phone != "" {
		p.SetPreference(models.PrefEmergencyPhone, tp.EmergencyContact.Phone)
	}
	if tp.DailyRoutine != "" {
		p.SetPreference(models.PrefRoutine, tp.DailyRoutine)
	}
	return p
}
