package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

var localLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 3:04 PM",
	"2006-01-02 3:04PM",
	"02/01/2006 15:04",
	"2006-01-02",
}

var relativeDay = regexp.MustCompile(`^(today|tomorrow)(?:\s+at)?\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)

// ParseDateTime reads an appointment time in the user's location. Accepted
// forms, in order: RFC3339, fixed local layouts, "today|tomorrow HH:MM" with
// optional am/pm, then free-form natural language relative to now.
func ParseDateTime(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date_time is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			if layout == "2006-01-02" {
				t = t.Add(9 * time.Hour)
			}
			return t, nil
		}
	}
	if t, ok := parseRelativeDay(strings.ToLower(s), now); ok {
		return t, nil
	}

	parsed, err := dps.Parse(&dps.Configuration{CurrentTime: now, DefaultTimezone: loc}, s)
	if err != nil || parsed.Time.IsZero() {
		return time.Time{}, fmt.Errorf("could not understand the date and time %q, try a form like '2026-03-14 10:30' or 'tomorrow 10:30'", s)
	}
	return parsed.Time.In(loc), nil
}

func parseRelativeDay(s string, now time.Time) (time.Time, bool) {
	m := relativeDay.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	hour, _ := strconv.Atoi(m[2])
	minute := 0
	if m[3] != "" {
		minute, _ = strconv.Atoi(m[3])
	}
	switch m[4] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	day := startOfDay(now)
	if m[1] == "tomorrow" {
		day = day.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), true
}
