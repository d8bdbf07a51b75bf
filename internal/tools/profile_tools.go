package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"amble/internal/models"
	"amble/internal/store"
)

func (d *domainTools) getUserProfileTool() *Tool {
	return &Tool{
		Name:        "get_user_profile",
		Description: "Retrieves the user's stored profile: name, location, interests, health conditions, medications and emergency contact.",
		Parameters:  object(map[string]interface{}{}),
		Domain:      DomainProfile,
		Handler: Typed(func(ctx context.Context, inv Invocation, _ struct{}) Result {
			p, err := d.Store.GetProfile(ctx, inv.UserKey)
			if errors.Is(err, store.ErrNotFound) {
				return NotFound("No profile found yet. Ask the user for their name and where they live.")
			}
			if err != nil {
				return Errorf("could not load profile: %v", err)
			}
			return Success(fmt.Sprintf("Profile for %s.", p.Name), profileData(p))
		}),
	}
}

type updateProfileArgs struct {
	Name                  *string  `json:"name"`
	Age                   *int     `json:"age"`
	Location              *string  `json:"location"`
	Timezone              *string  `json:"timezone"`
	PreferredLanguage     *string  `json:"preferred_language"`
	EmergencyContactName  *string  `json:"emergency_contact_name"`
	EmergencyContactPhone *string  `json:"emergency_contact_phone"`
	Interests             []string `json:"interests"`
	HealthConditions      []string `json:"health_conditions"`
	Medications           []string `json:"medications"`
}

func (d *domainTools) updateUserProfileTool() *Tool {
	return &Tool{
		Name:        "update_user_profile",
		Description: "Updates the user's profile. Only the fields provided are changed. Lists replace the stored list.",
		Parameters: object(map[string]interface{}{
			"name":                    str("The user's preferred name"),
			"age":                     integer("Age in years"),
			"location":                str("City or area where the user lives"),
			"timezone":                str("IANA timezone, e.g. 'Asia/Kolkata'"),
			"preferred_language":      str("Preferred language code or name"),
			"emergency_contact_name":  str("Name of the emergency contact"),
			"emergency_contact_phone": str("Phone number of the emergency contact"),
			"interests":               strList("Hobbies and interests"),
			"health_conditions":       strList("Known health conditions"),
			"medications":             strList("Regular medications with timing"),
		}),
		Domain:  DomainProfile,
		Mutates: true,
		Handler: Typed(d.updateUserProfile),
	}
}

func (d *domainTools) updateUserProfile(ctx context.Context, inv Invocation, args updateProfileArgs) Result {
	u := store.ProfileUpdate{Preferences: map[string]interface{}{}, UpdatedAt: inv.Now.UTC()}

	var changed []string
	setStr := func(field string, dst **string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			trimmed := strings.TrimSpace(*v)
			*dst = &trimmed
			changed = append(changed, field)
		}
	}
	setStr("name", &u.Name, args.Name)
	setStr("location", &u.Location, args.Location)
	setStr("preferred_language", &u.PreferredLanguage, args.PreferredLanguage)

	if args.Timezone != nil && *args.Timezone != "" {
		if _, err := time.LoadLocation(*args.Timezone); err != nil {
			return Errorf("invalid timezone %q, use a name like 'Asia/Kolkata'", *args.Timezone)
		}
		u.Timezone = args.Timezone
		changed = append(changed, "timezone")
	}
	if args.Age != nil {
		if *args.Age <= 0 || *args.Age > 130 {
			return Errorf("age must be between 1 and 130")
		}
		u.Age = args.Age
		changed = append(changed, "age")
	}

	setPref := func(field, key string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			u.Preferences[key] = strings.TrimSpace(*v)
			changed = append(changed, field)
		}
	}
	setPref("emergency_contact_name", models.PrefEmergencyName, args.EmergencyContactName)
	setPref("emergency_contact_phone", models.PrefEmergencyPhone, args.EmergencyContactPhone)

	setList := func(field, key string, v []string) {
		if v != nil {
			u.Preferences[key] = cleanList(v)
			changed = append(changed, field)
		}
	}
	setList("interests", models.PrefInterests, args.Interests)
	setList("health_conditions", models.PrefHealthConditions, args.HealthConditions)
	setList("medications", models.PrefMedications, args.Medications)

	if u.Empty() {
		return Errorf("no profile fields were provided")
	}

	p, err := d.Store.UpdateProfileFields(ctx, inv.UserKey, u)
	if errors.Is(err, store.ErrNotFound) {
		p = &models.UserProfile{
			UserKey:           inv.UserKey,
			Name:              "Friend",
			Location:          "your city",
			Timezone:          d.DefaultLoc.String(),
			PreferredLanguage: "en",
			CreatedAt:         inv.Now.UTC(),
		}
		u.Apply(p)
		err = d.Store.UpsertProfile(ctx, p)
	}
	if err != nil {
		return Errorf("could not save profile: %v", err)
	}
	if inv.State != nil {
		inv.State.LoadProfile(p)
	}

	return Success(fmt.Sprintf("I've updated your %s.", strings.Join(changed, ", ")), profileData(p))
}

func profileData(p *models.UserProfile) map[string]interface{} {
	return map[string]interface{}{
		"name":                    p.Name,
		"age":                     p.Age,
		"location":                p.Location,
		"timezone":                p.Timezone,
		"preferred_language":      p.PreferredLanguage,
		"interests":               p.StringList(models.PrefInterests),
		"health_conditions":       p.StringList(models.PrefHealthConditions),
		"medications":             p.StringList(models.PrefMedications),
		"emergency_contact_name":  p.String(models.PrefEmergencyName),
		"emergency_contact_phone": p.String(models.PrefEmergencyPhone),
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}
